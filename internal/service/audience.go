package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"WaBlast/internal/model"
	"WaBlast/internal/repository"
	"WaBlast/pkg/logger"
	"WaBlast/storage/database"
)

// audienceRecipientStore 受众解析需要的收件人查询能力
type audienceRecipientStore interface {
	FindByAudience(ctx context.Context, audience model.Audience) ([]model.Recipient, error)
}

// audienceQueueStore 受众解析需要的队列写入能力
type audienceQueueStore interface {
	ExistingRecipientIDs(ctx context.Context, campaignID int64) (map[int64]struct{}, error)
	CreateIgnoreDuplicate(ctx context.Context, line *model.QueueLine) (bool, error)
}

// audienceStepStore 首步查询能力
type audienceStepStore interface {
	FirstStep(ctx context.Context, campaignID int64) (*model.CampaignStep, error)
}

// AudienceService 把活动受众定义解析为去重的 pending 队列行
type AudienceService struct {
	recipients audienceRecipientStore
	queue      audienceQueueStore
	steps      audienceStepStore
	now        func() time.Time
}

var (
	audienceService *AudienceService
	audienceOnce    sync.Once
)

func Audience() *AudienceService {
	audienceOnce.Do(func() {
		db := database.DB()
		audienceService = NewAudienceService(
			repository.NewRecipientRepository(db),
			repository.NewQueueRepository(db),
			repository.NewCampaignRepository(db),
			time.Now,
		)
	})
	return audienceService
}

func NewAudienceService(recipients audienceRecipientStore, queue audienceQueueStore, steps audienceStepStore, now func() time.Time) *AudienceService {
	return &AudienceService{
		recipients: recipients,
		queue:      queue,
		steps:      steps,
		now:        now,
	}
}

// GenerateQueue 解析受众并补齐队列行，返回新建行数。
// 过滤器不可解析时整体失败（fail closed），不会静默匹配全部收件人。
// 重复调用幂等：已存在的 (campaign, recipient) 行被跳过。
func (s *AudienceService) GenerateQueue(ctx context.Context, campaign *model.Campaign) (int, error) {
	recipients, err := s.recipients.FindByAudience(ctx, campaign.Audience)
	if err != nil {
		logger.Logger.Warn("Audience resolution aborted",
			zap.Int64("campaign_id", campaign.ID),
			zap.Error(err),
		)
		return 0, err
	}

	existing, err := s.queue.ExistingRecipientIDs(ctx, campaign.ID)
	if err != nil {
		return 0, err
	}

	firstStep, err := s.steps.FirstStep(ctx, campaign.ID)
	if err != nil {
		return 0, err
	}

	var stepID *int64
	if firstStep != nil {
		stepID = &firstStep.ID
	}

	now := s.now()
	created := 0
	for i := range recipients {
		recipient := &recipients[i]
		if _, ok := existing[recipient.ID]; ok {
			continue
		}

		line := &model.QueueLine{
			CampaignID:    campaign.ID,
			RecipientID:   recipient.ID,
			Status:        model.QueueStatusPending,
			NextAttemptAt: &now,
			StepID:        stepID,
		}

		inserted, err := s.queue.CreateIgnoreDuplicate(ctx, line)
		if err != nil {
			return created, err
		}
		if inserted {
			created++
		}
	}

	logger.Logger.Info("Queue generation completed",
		zap.Int64("campaign_id", campaign.ID),
		zap.Int("matched", len(recipients)),
		zap.Int("created", created),
		zap.Int("skipped", len(recipients)-created),
	)

	return created, nil
}
