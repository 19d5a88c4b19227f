package metrics

import (
	"context"
)

// 包级包装函数：指标未初始化（otel 关闭）时全部是 no-op

// RecordMessageSent 记录消息发送成功
func RecordMessageSent(mode string, duration float64) {
	ctx := context.Background()
	m := GetMetrics()
	if m != nil {
		m.RecordMessageSent(ctx, mode, duration)
	}
}

// RecordMessageFailed 记录消息发送失败
func RecordMessageFailed(mode, errorCode string, duration float64) {
	ctx := context.Background()
	m := GetMetrics()
	if m != nil {
		m.RecordMessageFailed(ctx, mode, errorCode, duration)
	}
}

// RecordMessageRetry 记录消息重试
func RecordMessageRetry(mode string) {
	ctx := context.Background()
	m := GetMetrics()
	if m != nil {
		m.RecordMessageRetry(ctx, mode)
	}
}

// RecordWebhookEvent 记录回调事件
func RecordWebhookEvent(kind, status string) {
	ctx := context.Background()
	m := GetMetrics()
	if m != nil {
		m.RecordWebhookEvent(ctx, kind, status)
	}
}

// RecordDispatchBatch 记录批次派发行数
func RecordDispatchBatch(campaignID int64, size int) {
	ctx := context.Background()
	m := GetMetrics()
	if m != nil {
		m.RecordDispatchBatch(ctx, campaignID, int64(size))
	}
}
