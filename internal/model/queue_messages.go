package model

// DispatchMessage 调度器发给派发 worker 的单行发送任务
type DispatchMessage struct {
	MessageID   string `json:"message_id"` // 消息唯一ID，用于幂等性检查
	BatchID     string `json:"batch_id"`
	CampaignID  int64  `json:"campaign_id"`
	QueueLineID int64  `json:"queue_line_id"`
	// Attempts 扫描时的尝试次数快照，claim 时校验防止重复派发
	Attempts     int    `json:"attempts"`
	ScheduledAt  string `json:"scheduled_at"`
	DelaySeconds int    `json:"delay_seconds"`
}
