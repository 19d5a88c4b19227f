package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"WaBlast/internal/model"
)

// QueueRepository 队列行的持久化访问
type QueueRepository struct {
	db *gorm.DB
}

func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// CreateIgnoreDuplicate 建行，撞唯一索引 (campaign_id, recipient_id) 时静默跳过。
// 返回是否实际插入。
func (r *QueueRepository) CreateIgnoreDuplicate(ctx context.Context, line *model.QueueLine) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "recipient_id"}},
			DoNothing: true,
		}).
		Create(line)
	return result.RowsAffected > 0, result.Error
}

func (r *QueueRepository) GetByID(ctx context.Context, id int64) (*model.QueueLine, error) {
	var line model.QueueLine
	err := r.db.WithContext(ctx).First(&line, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &line, nil
}

// ExistingRecipientIDs 活动现有队列行的收件人 ID 集合（去重预检）
func (r *QueueRepository) ExistingRecipientIDs(ctx context.Context, campaignID int64) (map[int64]struct{}, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.QueueLine{}).
		Where("campaign_id = ?", campaignID).
		Pluck("recipient_id", &ids).Error
	if err != nil {
		return nil, err
	}

	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// DueLines 按创建顺序取到期的 pending 行，上限 limit
func (r *QueueRepository) DueLines(ctx context.Context, campaignID int64, now time.Time, limit int) ([]model.QueueLine, error) {
	var lines []model.QueueLine
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND status = ? AND next_attempt_at <= ?",
			campaignID, model.QueueStatusPending, now).
		Order("id ASC").
		Limit(limit).
		Find(&lines).Error
	return lines, err
}

// CountPending 活动剩余 pending 行数（含未到期的）
func (r *QueueRepository) CountPending(ctx context.Context, campaignID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.QueueLine{}).
		Where("campaign_id = ? AND status = ?", campaignID, model.QueueStatusPending).
		Count(&count).Error
	return count, err
}

// Claim 把行从可选集合中挪出（next_attempt_at 推到租约之后），发送前必须成功。
// attempts 快照不匹配或状态已变化时认领失败，防止同一行被重复派发。
func (r *QueueRepository) Claim(ctx context.Context, id int64, attempts int, leaseUntil time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.QueueLine{}).
		Where("id = ? AND status = ? AND attempts = ?", id, model.QueueStatusPending, attempts).
		Update("next_attempt_at", leaseUntil)
	return result.RowsAffected > 0, result.Error
}

// Update 按字段补丁更新队列行
func (r *QueueRepository) Update(ctx context.Context, id int64, patch map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&model.QueueLine{}).
		Where("id = ?", id).
		Updates(patch).Error
}

// FindByMessageID 按 provider message ID 找行
func (r *QueueRepository) FindByMessageID(ctx context.Context, messageID string) (*model.QueueLine, error) {
	var line model.QueueLine
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		First(&line).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &line, nil
}

// FindByRecipient message ID 未命中时的回退：同一活动内按收件人找行
func (r *QueueRepository) FindByRecipient(ctx context.Context, campaignID, recipientID int64) (*model.QueueLine, error) {
	var line model.QueueLine
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND recipient_id = ?", campaignID, recipientID).
		First(&line).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &line, nil
}

// CountByStatus 活动各状态的行数统计
func (r *QueueRepository) CountByStatus(ctx context.Context, campaignID int64) (map[model.QueueStatus]int64, error) {
	type row struct {
		Status model.QueueStatus
		Count  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&model.QueueLine{}).
		Select("status, count(*) as count").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[model.QueueStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
