package model

// MessageDirection 消息方向
type MessageDirection string

const (
	DirectionOutbound MessageDirection = "outbound"
	DirectionInbound  MessageDirection = "inbound"
)

// MessageLog 出入站消息的审计记录。
// 出站行的 message_id 唯一，是后续状态事件的唯一关联键。
type MessageLog struct {
	BaseModel
	MessageID   string           `gorm:"type:varchar(128);index:idx_message_logs_message_id" json:"message_id"`
	Direction   MessageDirection `gorm:"type:varchar(16);not null" json:"direction"`
	RecipientID *int64           `gorm:"index" json:"recipient_id,omitempty"`
	CampaignID  *int64           `gorm:"index" json:"campaign_id,omitempty"`
	Mobile      string           `gorm:"type:varchar(32)" json:"mobile"`
	Body        string           `gorm:"type:text" json:"body"`
	Status      string           `gorm:"type:varchar(32)" json:"status"`
	ErrorCode   string           `gorm:"type:varchar(64)" json:"error_code"`
	RawPayload  string           `gorm:"type:text" json:"raw_payload"` // 最近一次事件的原始载荷，供排障
}

// TableName 指定表名
func (MessageLog) TableName() string {
	return "message_logs"
}
