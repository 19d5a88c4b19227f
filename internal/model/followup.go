package model

import "time"

// ContactNote webhook 管道写到单据或收件人上的人类可读备注
type ContactNote struct {
	BaseModel
	RecipientID *int64 `gorm:"index" json:"recipient_id,omitempty"`
	OrderID     *int64 `gorm:"index" json:"order_id,omitempty"`
	Body        string `gorm:"type:text;not null" json:"body"`
}

// TableName 指定表名
func (ContactNote) TableName() string {
	return "contact_notes"
}

// TaskSeverity 跟进任务严重级别
type TaskSeverity string

const (
	SeverityInfo    TaskSeverity = "info"
	SeverityWarning TaskSeverity = "warning"
)

// FollowUpTask 升级跟进任务：关键词命中或投递失败时指派给归属用户
type FollowUpTask struct {
	BaseModel
	OwnerID     int64        `gorm:"not null;index" json:"owner_id"`
	RecipientID *int64       `gorm:"index" json:"recipient_id,omitempty"`
	OrderID     *int64       `gorm:"index" json:"order_id,omitempty"`
	Summary     string       `gorm:"type:varchar(256);not null" json:"summary"`
	Note        string       `gorm:"type:text" json:"note"`
	Severity    TaskSeverity `gorm:"type:varchar(16);not null;default:'info'" json:"severity"`
	DueAt       time.Time    `gorm:"type:timestamptz;not null" json:"due_at"`
}

// TableName 指定表名
func (FollowUpTask) TableName() string {
	return "follow_up_tasks"
}
