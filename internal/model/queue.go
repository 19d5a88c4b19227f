package model

import "time"

// QueueStatus 队列行状态枚举
type QueueStatus string

const (
	QueueStatusPending QueueStatus = "pending"
	QueueStatusSent    QueueStatus = "sent"
	QueueStatusFailed  QueueStatus = "failed"
)

// QueueLine 单个收件人在活动中的进度，(campaign_id, recipient_id) 唯一
type QueueLine struct {
	BaseModel
	CampaignID    int64       `gorm:"not null;uniqueIndex:uniq_queue_lines_campaign_recipient;index:idx_queue_lines_due" json:"campaign_id"`
	RecipientID   int64       `gorm:"not null;uniqueIndex:uniq_queue_lines_campaign_recipient" json:"recipient_id"`
	Status        QueueStatus `gorm:"type:varchar(16);not null;default:'pending';index:idx_queue_lines_due" json:"status"`
	Attempts      int         `gorm:"not null;default:0" json:"attempts"`
	LastError     string      `gorm:"type:text" json:"last_error"`
	NextAttemptAt *time.Time  `gorm:"type:timestamptz;index:idx_queue_lines_due" json:"next_attempt_at,omitempty"`
	StepID        *int64      `gorm:"index" json:"step_id,omitempty"` // 为空表示使用活动默认内容
	MessageID     string      `gorm:"type:varchar(128);index" json:"message_id"`
}

// TableName 指定表名
func (QueueLine) TableName() string {
	return "queue_lines"
}
