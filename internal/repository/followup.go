package repository

import (
	"context"

	"gorm.io/gorm"

	"WaBlast/internal/model"
)

// FollowUpRepository 备注与跟进任务的持久化访问
type FollowUpRepository struct {
	db *gorm.DB
}

func NewFollowUpRepository(db *gorm.DB) *FollowUpRepository {
	return &FollowUpRepository{db: db}
}

func (r *FollowUpRepository) CreateNote(ctx context.Context, note *model.ContactNote) error {
	return r.db.WithContext(ctx).Create(note).Error
}

func (r *FollowUpRepository) CreateTask(ctx context.Context, task *model.FollowUpTask) error {
	return r.db.WithContext(ctx).Create(task).Error
}
