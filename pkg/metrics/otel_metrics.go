package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics OpenTelemetry 指标集合
type OTelMetrics struct {
	// 消息发送相关指标
	MessageSentTotal    metric.Int64Counter
	MessageSendDuration metric.Float64Histogram
	MessageRetryTotal   metric.Int64Counter

	// 回调相关指标
	WebhookEventsTotal metric.Int64Counter

	// 调度相关指标
	DispatchBatchSize metric.Int64Histogram
}

var (
	// 全局指标实例
	metrics *OTelMetrics
	// meter 用于创建指标
	meter = otel.Meter("wablast")
)

// InitMetrics 初始化 OpenTelemetry 指标
func InitMetrics() error {
	var err error

	metrics = &OTelMetrics{}

	metrics.MessageSentTotal, err = meter.Int64Counter(
		"messages_sent_total",
		metric.WithDescription("Total number of outbound message attempts"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	metrics.MessageSendDuration, err = meter.Float64Histogram(
		"message_send_duration_seconds",
		metric.WithDescription("Time spent sending a message in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	metrics.MessageRetryTotal, err = meter.Int64Counter(
		"message_retry_total",
		metric.WithDescription("Total number of message retry attempts"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return err
	}

	metrics.WebhookEventsTotal, err = meter.Int64Counter(
		"webhook_events_total",
		metric.WithDescription("Total number of webhook events received"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	metrics.DispatchBatchSize, err = meter.Int64Histogram(
		"dispatch_batch_size",
		metric.WithDescription("Number of queue lines dispatched per campaign batch"),
		metric.WithUnit("{line}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// GetMetrics 获取全局指标实例
func GetMetrics() *OTelMetrics {
	return metrics
}

// RecordMessageSent 记录消息发送成功
func (m *OTelMetrics) RecordMessageSent(ctx context.Context, mode string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("mode", mode),
		attribute.String("status", "success"),
	}

	m.MessageSentTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.MessageSendDuration.Record(ctx, duration, metric.WithAttributes(
		attribute.String("mode", mode),
	))
}

// RecordMessageFailed 记录消息发送失败
func (m *OTelMetrics) RecordMessageFailed(ctx context.Context, mode, errorCode string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("mode", mode),
		attribute.String("status", "failed"),
		attribute.String("error_code", errorCode),
	}

	m.MessageSentTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.MessageSendDuration.Record(ctx, duration, metric.WithAttributes(
		attribute.String("mode", mode),
	))
}

// RecordMessageRetry 记录消息重试
func (m *OTelMetrics) RecordMessageRetry(ctx context.Context, mode string) {
	m.MessageRetryTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
	))
}

// RecordWebhookEvent 记录回调事件
func (m *OTelMetrics) RecordWebhookEvent(ctx context.Context, kind, status string) {
	m.WebhookEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordDispatchBatch 记录批次派发行数
func (m *OTelMetrics) RecordDispatchBatch(ctx context.Context, campaignID int64, size int64) {
	m.DispatchBatchSize.Record(ctx, size, metric.WithAttributes(
		attribute.Int64("campaign_id", campaignID),
	))
}
