package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"WaBlast/internal/model"
)

// CampaignRepository 活动及步骤的持久化访问
type CampaignRepository struct {
	db *gorm.DB
}

func NewCampaignRepository(db *gorm.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

func (r *CampaignRepository) Create(ctx context.Context, campaign *model.Campaign) error {
	return r.db.WithContext(ctx).Create(campaign).Error
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	var campaign model.Campaign
	err := r.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("sequence ASC") }).
		First(&campaign, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &campaign, nil
}

func (r *CampaignRepository) List(ctx context.Context) ([]model.Campaign, error) {
	var campaigns []model.Campaign
	err := r.db.WithContext(ctx).Order("id DESC").Find(&campaigns).Error
	return campaigns, err
}

// ListByState 按状态列出活动（调度器扫描 running 用）
func (r *CampaignRepository) ListByState(ctx context.Context, state model.CampaignState) ([]model.Campaign, error) {
	var campaigns []model.Campaign
	err := r.db.WithContext(ctx).
		Where("state = ?", state).
		Order("id ASC").
		Find(&campaigns).Error
	return campaigns, err
}

func (r *CampaignRepository) UpdateState(ctx context.Context, id int64, state model.CampaignState) error {
	return r.db.WithContext(ctx).
		Model(&model.Campaign{}).
		Where("id = ?", id).
		Update("state", state).Error
}

// TransitionState 带前置状态校验的状态迁移，返回是否生效
func (r *CampaignRepository) TransitionState(ctx context.Context, id int64, from []model.CampaignState, to model.CampaignState) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Campaign{}).
		Where("id = ? AND state IN ?", id, from).
		Update("state", to)
	return result.RowsAffected > 0, result.Error
}

func (r *CampaignRepository) StampLastRun(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.Campaign{}).
		Where("id = ?", id).
		Update("last_run_at", at).Error
}

func (r *CampaignRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("campaign_id = ?", id).Delete(&model.CampaignStep{}).Error; err != nil {
			return err
		}
		if err := tx.Where("campaign_id = ?", id).Delete(&model.QueueLine{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Campaign{}, id).Error
	})
}

func (r *CampaignRepository) GetStep(ctx context.Context, stepID int64) (*model.CampaignStep, error) {
	var step model.CampaignStep
	err := r.db.WithContext(ctx).First(&step, stepID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &step, nil
}

// FirstStep 返回活动的最小 sequence 步骤，无步骤返回 nil
func (r *CampaignRepository) FirstStep(ctx context.Context, campaignID int64) (*model.CampaignStep, error) {
	var step model.CampaignStep
	err := r.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("sequence ASC").
		First(&step).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &step, nil
}

// NextStep 返回 sequence 严格大于 afterSequence 的最小步骤，无后续返回 nil
func (r *CampaignRepository) NextStep(ctx context.Context, campaignID int64, afterSequence int) (*model.CampaignStep, error) {
	var step model.CampaignStep
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND sequence > ?", campaignID, afterSequence).
		Order("sequence ASC").
		First(&step).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &step, nil
}
