package model

import "time"

// Recipient 收件人，对引擎只读
type Recipient struct {
	BaseModel
	Name    string   `gorm:"type:varchar(128)" json:"name"`
	Mobile  string   `gorm:"type:varchar(32);index" json:"mobile"`
	OptIn   bool     `gorm:"not null;default:false" json:"opt_in"`
	OwnerID int64    `gorm:"index" json:"owner_id"`
	Tags    []string `gorm:"serializer:json;type:jsonb" json:"tags,omitempty"`
}

// TableName 指定表名
func (Recipient) TableName() string {
	return "recipients"
}

// Order 收件人最近的业务单据，入站消息落注释用，对引擎只读
type Order struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RecipientID int64     `gorm:"not null;index" json:"recipient_id"`
	Reference   string    `gorm:"type:varchar(64)" json:"reference"`
	OwnerID     int64     `json:"owner_id"`
	CreatedAt   time.Time `gorm:"not null;default:now()" json:"created_at"`
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}
