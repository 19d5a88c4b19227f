package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"WaBlast/internal/model"
)

// MessageLogRepository 出入站消息审计记录的持久化访问
type MessageLogRepository struct {
	db *gorm.DB
}

func NewMessageLogRepository(db *gorm.DB) *MessageLogRepository {
	return &MessageLogRepository{db: db}
}

func (r *MessageLogRepository) Create(ctx context.Context, log *model.MessageLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// GetOutboundByMessageID 按 provider message ID 找出站日志，未知 ID 返回 nil
func (r *MessageLogRepository) GetOutboundByMessageID(ctx context.Context, messageID string) (*model.MessageLog, error) {
	var log model.MessageLog
	err := r.db.WithContext(ctx).
		Where("message_id = ? AND direction = ?", messageID, model.DirectionOutbound).
		First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &log, nil
}

// UpdateStatus 状态事件落库：覆盖状态、错误码和原始载荷（last-write-wins）
func (r *MessageLogRepository) UpdateStatus(ctx context.Context, id int64, status, errorCode, rawPayload string) error {
	return r.db.WithContext(ctx).
		Model(&model.MessageLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"error_code":  errorCode,
			"raw_payload": rawPayload,
		}).Error
}
