package service

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"WaBlast/config"
	"WaBlast/internal/model"
	"WaBlast/internal/repository"
	"WaBlast/pkg/errors"
	"WaBlast/pkg/logger"
	"WaBlast/pkg/metrics"
	"WaBlast/pkg/whatsapp"
	"WaBlast/storage/database"
	"WaBlast/utils"
)

// claimLease 认领后行在可选集合外停留的时间，发送和落库必须在此窗口内完成
const claimLease = 10 * time.Minute

type dispatchQueueStore interface {
	GetByID(ctx context.Context, id int64) (*model.QueueLine, error)
	Claim(ctx context.Context, id int64, attempts int, leaseUntil time.Time) (bool, error)
	Update(ctx context.Context, id int64, patch map[string]interface{}) error
}

type dispatchCampaignStore interface {
	GetByID(ctx context.Context, id int64) (*model.Campaign, error)
	GetStep(ctx context.Context, stepID int64) (*model.CampaignStep, error)
	NextStep(ctx context.Context, campaignID int64, afterSequence int) (*model.CampaignStep, error)
}

type dispatchRecipientStore interface {
	GetByID(ctx context.Context, id int64) (*model.Recipient, error)
}

type dispatchLogStore interface {
	Create(ctx context.Context, log *model.MessageLog) error
}

// DispatchService 队列行的单次发送单元
type DispatchService struct {
	queue      dispatchQueueStore
	campaigns  dispatchCampaignStore
	recipients dispatchRecipientStore
	logs       dispatchLogStore
	client     whatsapp.Client

	now             func() time.Time
	maxAttempts     int
	defaultMediaURL string
}

var (
	dispatchService *DispatchService
	dispatchOnce    sync.Once
)

func Dispatch() *DispatchService {
	dispatchOnce.Do(func() {
		db := database.DB()
		dispatchService = NewDispatchService(
			repository.NewQueueRepository(db),
			repository.NewCampaignRepository(db),
			repository.NewRecipientRepository(db),
			repository.NewMessageLogRepository(db),
			whatsapp.GetClient(),
			time.Now,
			config.Cfg.DispatchMaxAttempts,
			config.Cfg.WhatsAppDefaultMedia,
		)
	})
	return dispatchService
}

func NewDispatchService(
	queue dispatchQueueStore,
	campaigns dispatchCampaignStore,
	recipients dispatchRecipientStore,
	logs dispatchLogStore,
	client whatsapp.Client,
	now func() time.Time,
	maxAttempts int,
	defaultMediaURL string,
) *DispatchService {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &DispatchService{
		queue:           queue,
		campaigns:       campaigns,
		recipients:      recipients,
		logs:            logs,
		client:          client,
		now:             now,
		maxAttempts:     maxAttempts,
		defaultMediaURL: defaultMediaURL,
	}
}

// effectivePayload 步骤覆盖活动默认值后的实际发送内容
type effectivePayload struct {
	mode     model.MessageMode
	body     string
	template string
	lang     string
	mediaURL string
}

// ProcessLine 对一个队列行做恰好一次发送尝试。
// 返回非 nil 仅表示基础设施故障（DB 不可用等），消费者据此重投；
// 业务失败全部落到行状态上，不向外冒泡。
func (s *DispatchService) ProcessLine(ctx context.Context, msg model.DispatchMessage) error {
	line, err := s.queue.GetByID(ctx, msg.QueueLineID)
	if err != nil {
		return err
	}
	if line == nil || line.Status != model.QueueStatusPending {
		logger.Logger.Info("Queue line no longer dispatchable, skipping",
			zap.Int64("queue_line_id", msg.QueueLineID),
		)
		return nil
	}

	// 网络调用前必须认领：把行挪出可选集合，attempts 快照不符说明已被处理
	claimed, err := s.queue.Claim(ctx, line.ID, msg.Attempts, s.now().Add(claimLease))
	if err != nil {
		return err
	}
	if !claimed {
		logger.Logger.Info("Queue line already claimed elsewhere, skipping",
			zap.Int64("queue_line_id", line.ID),
			zap.Int("attempts_snapshot", msg.Attempts),
		)
		return nil
	}

	campaign, err := s.campaigns.GetByID(ctx, line.CampaignID)
	if err != nil {
		return err
	}
	if campaign == nil {
		logger.Logger.Warn("Campaign vanished for queue line, skipping",
			zap.Int64("queue_line_id", line.ID),
			zap.Int64("campaign_id", line.CampaignID),
		)
		return nil
	}

	recipient, err := s.recipients.GetByID(ctx, line.RecipientID)
	if err != nil {
		return err
	}

	// 收件人校验失败直接终态，不消耗退避重试
	if verr := validateRecipient(recipient); verr != nil {
		return s.queue.Update(ctx, line.ID, map[string]interface{}{
			"status":     model.QueueStatusFailed,
			"attempts":   line.Attempts + 1,
			"last_error": verr.Error(),
		})
	}

	payload, perr := s.resolvePayload(ctx, campaign, line)

	sendStart := s.now()
	var result *whatsapp.SendResult
	sendErr := perr
	if sendErr == nil {
		result, sendErr = s.send(ctx, recipient.Mobile, payload)
	}
	sendDuration := s.now().Sub(sendStart).Seconds()

	attempts := line.Attempts + 1
	if sendErr != nil {
		metrics.RecordMessageFailed(string(payload.mode), errorCode(sendErr), sendDuration)
		return s.applyFailure(ctx, line, payload.mode, attempts, sendErr)
	}

	metrics.RecordMessageSent(string(payload.mode), sendDuration)
	return s.applySuccess(ctx, campaign, line, recipient, payload, result, attempts)
}

func validateRecipient(recipient *model.Recipient) error {
	if recipient == nil {
		return errors.RecipientNotFound
	}
	if !utils.ValidateMobile(recipient.Mobile) {
		return errors.InvalidMobile
	}
	if !recipient.OptIn {
		return errors.OptInRequired
	}
	return nil
}

// resolvePayload 内容解析：步骤覆盖 → 活动默认 → 图片模式回退到配置的默认配图
func (s *DispatchService) resolvePayload(ctx context.Context, campaign *model.Campaign, line *model.QueueLine) (effectivePayload, error) {
	payload := effectivePayload{
		mode:     campaign.Mode,
		body:     campaign.DefaultBody,
		template: campaign.TemplateName,
		lang:     campaign.TemplateLang,
		mediaURL: campaign.DefaultMediaURL,
	}

	if line.StepID != nil {
		step, err := s.campaigns.GetStep(ctx, *line.StepID)
		if err != nil {
			return payload, err
		}
		if step != nil {
			payload.mode = step.Mode
			if step.Body != "" {
				payload.body = step.Body
			}
			if step.TemplateName != "" {
				payload.template = step.TemplateName
			}
			if step.TemplateLang != "" {
				payload.lang = step.TemplateLang
			}
			if step.MediaURL != "" {
				payload.mediaURL = step.MediaURL
			}
		}
	}

	if payload.mode == model.ModeMediaImage && payload.mediaURL == "" {
		payload.mediaURL = s.defaultMediaURL
	}

	// 模式前置条件：缺失时与传输错误走同一失败路径
	switch payload.mode {
	case model.ModeText, model.ModeInteractive:
		if payload.body == "" {
			return payload, errors.BodyRequired
		}
	case model.ModeTemplate:
		if payload.template == "" {
			return payload, errors.TemplateRequired
		}
	case model.ModeMediaImage:
		if payload.mediaURL == "" {
			return payload, errors.MediaURLRequired
		}
	}

	return payload, nil
}

// 交互模式的固定回复按钮，与入站关键词升级词表保持一致
var interactiveButtons = []whatsapp.Button{
	{ID: "pay", Title: "Pay"},
	{ID: "help", Title: "Help"},
	{ID: "call", Title: "Call me"},
}

func (s *DispatchService) send(ctx context.Context, mobile string, payload effectivePayload) (*whatsapp.SendResult, error) {
	switch payload.mode {
	case model.ModeTemplate:
		return s.client.SendTemplate(ctx, mobile, payload.template, payload.lang, nil)
	case model.ModeMediaImage:
		return s.client.SendImage(ctx, mobile, payload.mediaURL, payload.body)
	case model.ModeInteractive:
		return s.client.SendInteractiveButtons(ctx, mobile, payload.body, interactiveButtons)
	default:
		return s.client.SendText(ctx, mobile, payload.body)
	}
}

// errorCode 提取业务错误码用于指标标签
func errorCode(err error) string {
	var def errors.Definition
	if stderrors.As(err, &def) {
		return def.Code
	}
	return "INTERNAL_ERROR"
}

// applyFailure 失败路径：自增 attempts 并套用退避策略，错误文本原样记录
func (s *DispatchService) applyFailure(ctx context.Context, line *model.QueueLine, mode model.MessageMode, attempts int, sendErr error) error {
	outcome := NextRetry(attempts, s.maxAttempts)

	patch := map[string]interface{}{
		"attempts":   attempts,
		"last_error": sendErr.Error(),
	}
	if outcome.Terminal {
		patch["status"] = model.QueueStatusFailed
	} else {
		patch["next_attempt_at"] = s.now().Add(outcome.Delay)
		metrics.RecordMessageRetry(string(mode))
	}

	logger.Logger.Warn("Send attempt failed",
		zap.Int64("queue_line_id", line.ID),
		zap.Int("attempts", attempts),
		zap.Bool("terminal", outcome.Terminal),
		zap.Error(sendErr),
	)

	return s.queue.Update(ctx, line.ID, patch)
}

// applySuccess 成功路径：置 sent、记日志、推进 drip
func (s *DispatchService) applySuccess(
	ctx context.Context,
	campaign *model.Campaign,
	line *model.QueueLine,
	recipient *model.Recipient,
	payload effectivePayload,
	result *whatsapp.SendResult,
	attempts int,
) error {
	if err := s.queue.Update(ctx, line.ID, map[string]interface{}{
		"status":     model.QueueStatusSent,
		"attempts":   attempts,
		"message_id": result.MessageID,
		"last_error": "",
	}); err != nil {
		return err
	}

	campaignID := campaign.ID
	recipientID := recipient.ID
	if err := s.logs.Create(ctx, &model.MessageLog{
		MessageID:   result.MessageID,
		Direction:   model.DirectionOutbound,
		RecipientID: &recipientID,
		CampaignID:  &campaignID,
		Mobile:      recipient.Mobile,
		Body:        payload.body,
		Status:      "sent",
	}); err != nil {
		logger.Logger.Error("Failed to append outbound message log",
			zap.String("message_id", result.MessageID),
			zap.Error(err),
		)
	}

	logger.Logger.Info("Message sent",
		zap.Int64("queue_line_id", line.ID),
		zap.Int64("campaign_id", campaign.ID),
		zap.String("message_id", result.MessageID),
		zap.String("mode", string(payload.mode)),
	)

	return s.advanceDrip(ctx, line)
}

// advanceDrip 发送成功后推进到下一步骤；没有后续步骤时保持 sent（终态成功），
// 重复调用是 no-op。
func (s *DispatchService) advanceDrip(ctx context.Context, line *model.QueueLine) error {
	if line.StepID == nil {
		return nil
	}

	current, err := s.campaigns.GetStep(ctx, *line.StepID)
	if err != nil {
		return err
	}
	if current == nil {
		return nil
	}

	next, err := s.campaigns.NextStep(ctx, line.CampaignID, current.Sequence)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}

	nextAttempt := s.now().Add(time.Duration(next.DelayHours) * time.Hour)
	err = s.queue.Update(ctx, line.ID, map[string]interface{}{
		"status":          model.QueueStatusPending,
		"attempts":        0,
		"last_error":      "",
		"message_id":      "",
		"step_id":         next.ID,
		"next_attempt_at": nextAttempt,
	})
	if err != nil {
		return err
	}

	logger.Logger.Info("Queue line advanced to next step",
		zap.Int64("queue_line_id", line.ID),
		zap.Int("next_sequence", next.Sequence),
		zap.Int("delay_hours", next.DelayHours),
	)

	return nil
}
