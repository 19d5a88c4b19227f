package model

// CreateCampaignStepRequest drip 步骤定义
type CreateCampaignStepRequest struct {
	Sequence     int         `json:"sequence"`
	Mode         MessageMode `json:"mode"`
	Body         string      `json:"body"`
	TemplateName string      `json:"template_name"`
	TemplateLang string      `json:"template_lang"`
	MediaURL     string      `json:"media_url"`
	DelayHours   int         `json:"delay_hours"`
}

// CreateCampaignRequest 创建活动请求
type CreateCampaignRequest struct {
	Name            string                      `json:"name"`
	Mode            MessageMode                 `json:"mode"`
	DefaultBody     string                      `json:"default_body"`
	TemplateName    string                      `json:"template_name"`
	TemplateLang    string                      `json:"template_lang"`
	DefaultMediaURL string                      `json:"default_media_url"`
	Audience        Audience                    `json:"audience"`
	BatchSize       int                         `json:"batch_size"`
	WindowStartHour float64                     `json:"window_start_hour"`
	WindowEndHour   float64                     `json:"window_end_hour"`
	Steps           []CreateCampaignStepRequest `json:"steps"`
}

// ToCampaign 请求转实体，零值字段交由 gorm 默认值处理
func (r *CreateCampaignRequest) ToCampaign() *Campaign {
	campaign := &Campaign{
		Name:            r.Name,
		Mode:            r.Mode,
		DefaultBody:     r.DefaultBody,
		TemplateName:    r.TemplateName,
		TemplateLang:    r.TemplateLang,
		DefaultMediaURL: r.DefaultMediaURL,
		Audience:        r.Audience,
		BatchSize:       r.BatchSize,
		WindowStartHour: r.WindowStartHour,
		WindowEndHour:   r.WindowEndHour,
		State:           CampaignStateDraft,
	}
	for _, step := range r.Steps {
		campaign.Steps = append(campaign.Steps, CampaignStep{
			Sequence:     step.Sequence,
			Mode:         step.Mode,
			Body:         step.Body,
			TemplateName: step.TemplateName,
			TemplateLang: step.TemplateLang,
			MediaURL:     step.MediaURL,
			DelayHours:   step.DelayHours,
		})
	}
	return campaign
}

// CampaignStatsResponse 活动队列统计
type CampaignStatsResponse struct {
	CampaignID int64            `json:"campaign_id"`
	State      CampaignState    `json:"state"`
	Counts     map[string]int64 `json:"counts"`
}

// GenerateQueueResponse 队列生成结果
type GenerateQueueResponse struct {
	CampaignID int64 `json:"campaign_id"`
	Created    int   `json:"created"`
}
