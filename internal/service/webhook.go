package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"WaBlast/config"
	"WaBlast/internal/cache"
	"WaBlast/internal/model"
	"WaBlast/internal/repository"
	"WaBlast/pkg/logger"
	"WaBlast/pkg/metrics"
	"WaBlast/storage/database"
	"WaBlast/utils"
)

// WebhookPayload provider 回调的外层结构：entry[].changes[].value
type WebhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string      `json:"field"`
			Value ChangeValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ChangeValue 单个变更：零或多条入站消息、零或多条状态事件
type ChangeValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Messages         []InboundMessage `json:"messages"`
	Statuses         []StatusEvent    `json:"statuses"`
}

// InboundMessage 入站消息
type InboundMessage struct {
	From string `json:"from"`
	ID   string `json:"id"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
	Button struct {
		Text string `json:"text"`
	} `json:"button"`
	Interactive struct {
		Type        string `json:"type"`
		ButtonReply struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
}

// StatusEvent 投递状态事件
type StatusEvent struct {
	ID          string        `json:"id"`
	Status      string        `json:"status"` // sent, delivered, read, failed, undelivered
	RecipientID string        `json:"recipient_id"`
	Errors      []StatusError `json:"errors"`
}

// StatusError 状态事件携带的错误明细
type StatusError struct {
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// 关键词升级词表：修剪并大写后精确匹配
var escalationKeywords = map[string]string{
	"PAY":  "Customer wants to pay, send payment link",
	"HELP": "Customer asked for help",
	"CALL": "Customer requested a phone call",
}

type webhookLogStore interface {
	Create(ctx context.Context, log *model.MessageLog) error
	GetOutboundByMessageID(ctx context.Context, messageID string) (*model.MessageLog, error)
	UpdateStatus(ctx context.Context, id int64, status, errorCode, rawPayload string) error
}

type webhookQueueStore interface {
	FindByMessageID(ctx context.Context, messageID string) (*model.QueueLine, error)
	FindByRecipient(ctx context.Context, campaignID, recipientID int64) (*model.QueueLine, error)
	Update(ctx context.Context, id int64, patch map[string]interface{}) error
}

type webhookRecipientStore interface {
	GetByID(ctx context.Context, id int64) (*model.Recipient, error)
	FindByMobile(ctx context.Context, mobile string) (*model.Recipient, error)
	LatestOrder(ctx context.Context, recipientID int64) (*model.Order, error)
}

type webhookFollowUpStore interface {
	CreateNote(ctx context.Context, note *model.ContactNote) error
	CreateTask(ctx context.Context, task *model.FollowUpTask) error
}

// WebhookService 入站回调的业务处理：消息落库、状态回写、升级跟进
type WebhookService struct {
	logs       webhookLogStore
	queue      webhookQueueStore
	recipients webhookRecipientStore
	followups  webhookFollowUpStore

	now            func() time.Time
	escalateFailed bool
	// markEvent 状态事件去重标记（仅日志降噪，重复事件仍 last-write-wins）
	markEvent func(ctx context.Context, messageID, status string) (bool, error)
}

var (
	webhookService *WebhookService
	webhookOnce    sync.Once
)

func Webhook() *WebhookService {
	webhookOnce.Do(func() {
		db := database.DB()
		webhookService = NewWebhookService(
			repository.NewMessageLogRepository(db),
			repository.NewQueueRepository(db),
			repository.NewRecipientRepository(db),
			repository.NewFollowUpRepository(db),
			time.Now,
			config.Cfg.AutoEscalateFailed,
			cache.MarkStatusEvent,
		)
	})
	return webhookService
}

func NewWebhookService(
	logs webhookLogStore,
	queue webhookQueueStore,
	recipients webhookRecipientStore,
	followups webhookFollowUpStore,
	now func() time.Time,
	escalateFailed bool,
	markEvent func(ctx context.Context, messageID, status string) (bool, error),
) *WebhookService {
	return &WebhookService{
		logs:           logs,
		queue:          queue,
		recipients:     recipients,
		followups:      followups,
		now:            now,
		escalateFailed: escalateFailed,
		markEvent:      markEvent,
	}
}

// Process 处理一次已通过签名校验的回调。
// 单条消息/事件的处理失败只记日志，不中断同批其他条目。
func (s *WebhookService) Process(ctx context.Context, payload *WebhookPayload, raw []byte) {
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for i := range change.Value.Messages {
				if err := s.handleInbound(ctx, &change.Value.Messages[i]); err != nil {
					logger.Logger.Error("Failed to handle inbound message",
						zap.String("message_id", change.Value.Messages[i].ID),
						zap.Error(err),
					)
				}
			}
			for i := range change.Value.Statuses {
				if err := s.handleStatus(ctx, &change.Value.Statuses[i], raw); err != nil {
					logger.Logger.Error("Failed to handle status event",
						zap.String("message_id", change.Value.Statuses[i].ID),
						zap.Error(err),
					)
				}
			}
		}
	}
}

// inboundBody 提取入站文本：普通文本、模板按钮回复、交互回复
func inboundBody(msg *InboundMessage) string {
	if msg.Text.Body != "" {
		return msg.Text.Body
	}
	if msg.Button.Text != "" {
		return msg.Button.Text
	}
	if msg.Interactive.ButtonReply.Title != "" {
		return msg.Interactive.ButtonReply.Title
	}
	return msg.Interactive.ListReply.Title
}

func (s *WebhookService) handleInbound(ctx context.Context, msg *InboundMessage) error {
	body := inboundBody(msg)
	metrics.RecordWebhookEvent("inbound", msg.Type)

	recipient, err := s.recipients.FindByMobile(ctx, msg.From)
	if err != nil {
		return err
	}

	var order *model.Order
	if recipient != nil {
		order, err = s.recipients.LatestOrder(ctx, recipient.ID)
		if err != nil {
			return err
		}
	}

	// 无论是否识别出收件人都追加入站日志
	inboundLog := &model.MessageLog{
		MessageID: msg.ID,
		Direction: model.DirectionInbound,
		Mobile:    msg.From,
		Body:      body,
		Status:    "received",
	}
	if recipient != nil {
		inboundLog.RecipientID = &recipient.ID
	}
	if err := s.logs.Create(ctx, inboundLog); err != nil {
		return err
	}

	if recipient == nil {
		logger.Logger.Info("Inbound message from unknown sender",
			zap.String("from", msg.From),
			zap.String("type", msg.Type),
		)
		return nil
	}

	// 把消息内容以备注形式挂到最近单据上，没有单据就挂到收件人
	note := &model.ContactNote{
		RecipientID: &recipient.ID,
		Body:        fmt.Sprintf("WhatsApp message from %s: %s", msg.From, body),
	}
	if order != nil {
		note.OrderID = &order.ID
	}
	if err := s.followups.CreateNote(ctx, note); err != nil {
		return err
	}

	return s.escalateKeyword(ctx, recipient, order, body)
}

// escalateKeyword 词表精确命中时给归属用户排跟进任务，未命中忽略
func (s *WebhookService) escalateKeyword(ctx context.Context, recipient *model.Recipient, order *model.Order, body string) error {
	keyword := utils.NormalizeKeyword(body)
	noteText, ok := escalationKeywords[keyword]
	if !ok {
		return nil
	}

	if recipient.OwnerID == 0 {
		logger.Logger.Warn("Keyword escalation skipped, recipient has no owner",
			zap.Int64("recipient_id", recipient.ID),
			zap.String("keyword", keyword),
		)
		return nil
	}

	task := &model.FollowUpTask{
		OwnerID:     recipient.OwnerID,
		RecipientID: &recipient.ID,
		Summary:     fmt.Sprintf("WhatsApp keyword %q from %s", keyword, recipient.Mobile),
		Note:        noteText,
		Severity:    model.SeverityInfo,
		DueAt:       s.now().Add(24 * time.Hour),
	}
	if order != nil {
		task.OrderID = &order.ID
	}

	if err := s.followups.CreateTask(ctx, task); err != nil {
		return err
	}

	logger.Logger.Info("Keyword escalation task created",
		zap.Int64("recipient_id", recipient.ID),
		zap.Int64("owner_id", recipient.OwnerID),
		zap.String("keyword", keyword),
	)
	return nil
}

func statusIsFailure(ev *StatusEvent) bool {
	return ev.Status == "failed" || ev.Status == "undelivered" || len(ev.Errors) > 0
}

// errorSummary 把事件错误拼成 "[code] title; [code] title" 形式
func errorSummary(ev *StatusEvent) string {
	if len(ev.Errors) == 0 {
		return fmt.Sprintf("delivery %s", ev.Status)
	}
	parts := make([]string, 0, len(ev.Errors))
	for _, e := range ev.Errors {
		title := e.Title
		if title == "" {
			title = e.Message
		}
		parts = append(parts, fmt.Sprintf("[%d] %s", e.Code, title))
	}
	return strings.Join(parts, "; ")
}

func (s *WebhookService) handleStatus(ctx context.Context, ev *StatusEvent, raw []byte) error {
	metrics.RecordWebhookEvent("status", ev.Status)

	log, err := s.logs.GetOutboundByMessageID(ctx, ev.ID)
	if err != nil {
		return err
	}
	if log == nil {
		// 未知 message ID：记录后忽略，不算错误
		logger.Logger.Info("Status event for unknown message, ignoring",
			zap.String("message_id", ev.ID),
			zap.String("status", ev.Status),
		)
		return nil
	}

	if s.markEvent != nil {
		first, markErr := s.markEvent(ctx, ev.ID, ev.Status)
		if markErr != nil {
			logger.Logger.Warn("Failed to mark status event", zap.Error(markErr))
		} else if !first {
			logger.Logger.Debug("Duplicate status event redelivered",
				zap.String("message_id", ev.ID),
				zap.String("status", ev.Status),
			)
		}
	}

	errorCode := ""
	if len(ev.Errors) > 0 {
		errorCode = strconv.Itoa(ev.Errors[0].Code)
	}

	if err := s.logs.UpdateStatus(ctx, log.ID, ev.Status, errorCode, string(raw)); err != nil {
		return err
	}

	if log.CampaignID != nil {
		if err := s.mirrorToQueueLine(ctx, log, ev); err != nil {
			return err
		}
	}

	if statusIsFailure(ev) && s.escalateFailed {
		return s.escalateFailure(ctx, log, ev)
	}

	return nil
}

// mirrorToQueueLine 把状态事件回写到关联队列行。
// 先按 message ID 找行，找不到再退回同活动内按收件人匹配。
func (s *WebhookService) mirrorToQueueLine(ctx context.Context, log *model.MessageLog, ev *StatusEvent) error {
	line, err := s.queue.FindByMessageID(ctx, ev.ID)
	if err != nil {
		return err
	}
	if line == nil && log.RecipientID != nil {
		line, err = s.queue.FindByRecipient(ctx, *log.CampaignID, *log.RecipientID)
		if err != nil {
			return err
		}
	}
	if line == nil {
		return nil
	}

	if statusIsFailure(ev) {
		return s.queue.Update(ctx, line.ID, map[string]interface{}{
			"status":     model.QueueStatusFailed,
			"last_error": errorSummary(ev),
		})
	}

	if ev.Status == "delivered" || ev.Status == "read" {
		// 幂等覆盖：即使行已是 sent 也写一次，防止投递确认先于同步路径到达时行卡在 pending
		return s.queue.Update(ctx, line.ID, map[string]interface{}{
			"status": model.QueueStatusSent,
		})
	}

	return nil
}

// escalateFailure 投递失败升级：挂备注，归属用户存在时排 warning 级跟进任务
func (s *WebhookService) escalateFailure(ctx context.Context, log *model.MessageLog, ev *StatusEvent) error {
	if log.RecipientID == nil {
		return nil
	}

	recipient, err := s.recipients.GetByID(ctx, *log.RecipientID)
	if err != nil {
		return err
	}
	if recipient == nil {
		return nil
	}

	order, err := s.recipients.LatestOrder(ctx, recipient.ID)
	if err != nil {
		return err
	}

	summary := errorSummary(ev)
	note := &model.ContactNote{
		RecipientID: &recipient.ID,
		Body:        fmt.Sprintf("WhatsApp delivery failed for message %s: %s", ev.ID, summary),
	}
	if order != nil {
		note.OrderID = &order.ID
	}
	if err := s.followups.CreateNote(ctx, note); err != nil {
		return err
	}

	if recipient.OwnerID == 0 {
		return nil
	}

	task := &model.FollowUpTask{
		OwnerID:     recipient.OwnerID,
		RecipientID: &recipient.ID,
		Summary:     fmt.Sprintf("WhatsApp delivery failed (message %s)", ev.ID),
		Note:        summary,
		Severity:    model.SeverityWarning,
		DueAt:       s.now().Add(24 * time.Hour),
	}
	if order != nil {
		task.OrderID = &order.ID
	}

	return s.followups.CreateTask(ctx, task)
}
