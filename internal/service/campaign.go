package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"WaBlast/internal/model"
	"WaBlast/internal/repository"
	"WaBlast/pkg/errors"
	"WaBlast/pkg/logger"
	"WaBlast/storage/database"
)

type campaignStore interface {
	Create(ctx context.Context, campaign *model.Campaign) error
	GetByID(ctx context.Context, id int64) (*model.Campaign, error)
	List(ctx context.Context) ([]model.Campaign, error)
	TransitionState(ctx context.Context, id int64, from []model.CampaignState, to model.CampaignState) (bool, error)
	Delete(ctx context.Context, id int64) error
}

type campaignQueueStore interface {
	CountByStatus(ctx context.Context, campaignID int64) (map[model.QueueStatus]int64, error)
}

// CampaignService 活动的管理操作：创建、生命周期、统计、队列生成
type CampaignService struct {
	campaigns campaignStore
	queue     campaignQueueStore
	audience  *AudienceService
}

var (
	campaignService *CampaignService
	campaignOnce    sync.Once
)

func Campaign() *CampaignService {
	campaignOnce.Do(func() {
		db := database.DB()
		campaignService = NewCampaignService(
			repository.NewCampaignRepository(db),
			repository.NewQueueRepository(db),
			Audience(),
		)
	})
	return campaignService
}

func NewCampaignService(campaigns campaignStore, queue campaignQueueStore, audience *AudienceService) *CampaignService {
	return &CampaignService{
		campaigns: campaigns,
		queue:     queue,
		audience:  audience,
	}
}

// Create 建活动（含步骤），步骤 sequence 在活动内必须唯一
func (s *CampaignService) Create(ctx context.Context, campaign *model.Campaign) error {
	seen := make(map[int]struct{}, len(campaign.Steps))
	for _, step := range campaign.Steps {
		if _, dup := seen[step.Sequence]; dup {
			return errors.StepSequenceConflict
		}
		seen[step.Sequence] = struct{}{}
	}

	if campaign.State == "" {
		campaign.State = model.CampaignStateDraft
	}

	if err := s.campaigns.Create(ctx, campaign); err != nil {
		return err
	}

	logger.Logger.Info("Campaign created",
		zap.Int64("campaign_id", campaign.ID),
		zap.String("name", campaign.Name),
		zap.Int("steps", len(campaign.Steps)),
	)
	return nil
}

func (s *CampaignService) Get(ctx context.Context, id int64) (*model.Campaign, error) {
	campaign, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, errors.CampaignNotFound
	}
	return campaign, nil
}

func (s *CampaignService) List(ctx context.Context) ([]model.Campaign, error) {
	return s.campaigns.List(ctx)
}

// Stats 活动各状态队列行计数
func (s *CampaignService) Stats(ctx context.Context, id int64) (map[model.QueueStatus]int64, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.queue.CountByStatus(ctx, id)
}

// Start draft/paused → running
func (s *CampaignService) Start(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	ok, err := s.campaigns.TransitionState(ctx, id,
		[]model.CampaignState{model.CampaignStateDraft, model.CampaignStatePaused},
		model.CampaignStateRunning,
	)
	if err != nil {
		return err
	}
	if !ok {
		return errors.CampaignStateInvalid
	}

	logger.Logger.Info("Campaign started", zap.Int64("campaign_id", id))
	return nil
}

// Pause running → paused
func (s *CampaignService) Pause(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	ok, err := s.campaigns.TransitionState(ctx, id,
		[]model.CampaignState{model.CampaignStateRunning},
		model.CampaignStatePaused,
	)
	if err != nil {
		return err
	}
	if !ok {
		return errors.CampaignStateInvalid
	}

	logger.Logger.Info("Campaign paused", zap.Int64("campaign_id", id))
	return nil
}

// GenerateQueue 运行受众解析，补齐队列行
func (s *CampaignService) GenerateQueue(ctx context.Context, id int64) (int, error) {
	campaign, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return s.audience.GenerateQueue(ctx, campaign)
}

// Delete 删除活动，级联步骤与队列行
func (s *CampaignService) Delete(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.campaigns.Delete(ctx, id)
}
