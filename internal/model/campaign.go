package model

import "time"

// MessageMode 消息模式枚举
type MessageMode string

const (
	ModeText        MessageMode = "text"        // 纯文本
	ModeTemplate    MessageMode = "template"    // 模板消息
	ModeMediaImage  MessageMode = "media_image" // 图片消息
	ModeInteractive MessageMode = "interactive" // 按钮交互消息
)

// CampaignState 活动生命周期状态
type CampaignState string

const (
	CampaignStateDraft   CampaignState = "draft"
	CampaignStateRunning CampaignState = "running"
	CampaignStatePaused  CampaignState = "paused"
	CampaignStateDone    CampaignState = "done"
)

// Predicate 受众过滤的类型化谓词，取代自由表达式
type Predicate struct {
	Field    string `json:"field"`    // mobile, name, opt_in, owner_id
	Operator string `json:"operator"` // eq, neq, contains, set, not_set
	Value    string `json:"value"`
}

// Audience 受众定义：标签集合 + 谓词过滤
type Audience struct {
	Tags    []string    `json:"tags,omitempty"`
	Filters []Predicate `json:"filters,omitempty"`
}

// Campaign 营销活动模型
type Campaign struct {
	BaseModel
	Name            string        `gorm:"type:varchar(128);not null" json:"name"`
	Mode            MessageMode   `gorm:"type:varchar(16);not null;default:'text'" json:"mode"`
	DefaultBody     string        `gorm:"type:text" json:"default_body"`
	TemplateName    string        `gorm:"type:varchar(128)" json:"template_name"`
	TemplateLang    string        `gorm:"type:varchar(16);default:'en_US'" json:"template_lang"`
	DefaultMediaURL string        `gorm:"type:text" json:"default_media_url"`
	Audience        Audience      `gorm:"serializer:json;type:jsonb" json:"audience"`
	BatchSize       int           `gorm:"not null;default:50" json:"batch_size"`
	WindowStartHour float64       `gorm:"not null;default:0" json:"window_start_hour"`
	WindowEndHour   float64       `gorm:"not null;default:0" json:"window_end_hour"` // start == end 表示全天
	State           CampaignState `gorm:"type:varchar(16);not null;default:'draft';index" json:"state"`
	LastRunAt       *time.Time    `gorm:"type:timestamptz" json:"last_run_at,omitempty"`

	Steps []CampaignStep `gorm:"foreignKey:CampaignID;constraint:OnDelete:CASCADE" json:"steps,omitempty"`
	Lines []QueueLine    `gorm:"foreignKey:CampaignID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName 指定表名
func (Campaign) TableName() string {
	return "campaigns"
}

// CampaignStep 多步（drip）活动的单个步骤，sequence 在活动内严格有序
type CampaignStep struct {
	BaseModel
	CampaignID   int64       `gorm:"not null;uniqueIndex:uniq_campaign_steps_seq" json:"campaign_id"`
	Sequence     int         `gorm:"not null;uniqueIndex:uniq_campaign_steps_seq" json:"sequence"`
	Mode         MessageMode `gorm:"type:varchar(16);not null;default:'text'" json:"mode"`
	Body         string      `gorm:"type:text" json:"body"`
	TemplateName string      `gorm:"type:varchar(128)" json:"template_name"`
	TemplateLang string      `gorm:"type:varchar(16)" json:"template_lang"`
	MediaURL     string      `gorm:"type:text" json:"media_url"`
	DelayHours   int         `gorm:"not null;default:0" json:"delay_hours"` // 上一步成功后的延迟
}

// TableName 指定表名
func (CampaignStep) TableName() string {
	return "campaign_steps"
}
