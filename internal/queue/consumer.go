package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"WaBlast/config"
	"WaBlast/internal/cache"
	"WaBlast/internal/model"
	"WaBlast/internal/service"
	"WaBlast/pkg/errors"
	"WaBlast/pkg/logger"
	"WaBlast/storage/mq"
)

// 派发任务由 scheduler 投递、worker 消费，一个消息对应一个队列行的一次发送尝试

// StartDispatchConsumer 启动派发消费者
func StartDispatchConsumer(ctx context.Context) error {
	handler := func(body []byte) error {
		var msg model.DispatchMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("failed to unmarshal dispatch message: %w", err)
		}

		processing, err := cache.TryMarkDispatchProcessing(ctx, msg.MessageID, 24*time.Hour)
		if err != nil {
			logger.Logger.Warn("Failed to check dispatch processed status",
				zap.String("message_id", msg.MessageID),
				zap.Error(err),
			)
			// 检查失败时继续处理（不阻塞业务），行认领兜底防止重复发送
		} else if !processing {
			logger.Logger.Info("Dispatch already processed or being processed, skipping",
				zap.String("message_id", msg.MessageID),
				zap.String("batch_id", msg.BatchID),
			)
			return &errors.SkipMessageError{Reason: fmt.Sprintf("Dispatch %s already processed", msg.MessageID)}
		}

		logger.Logger.Info("Processing dispatch",
			zap.String("message_id", msg.MessageID),
			zap.String("batch_id", msg.BatchID),
			zap.Int64("campaign_id", msg.CampaignID),
			zap.Int64("queue_line_id", msg.QueueLineID),
		)

		if err := service.Dispatch().ProcessLine(ctx, msg); err != nil {
			// 基础设施故障：撤销处理标记让消息可以重投
			if unmarkErr := cache.UnmarkDispatchProcessing(ctx, msg.MessageID); unmarkErr != nil {
				logger.Logger.Warn("Failed to unmark dispatch processing",
					zap.String("message_id", msg.MessageID),
					zap.Error(unmarkErr),
				)
			}
			return fmt.Errorf("failed to process dispatch %s: %w", msg.MessageID, err)
		}

		if err := cache.MarkDispatchProcessed(ctx, msg.MessageID, 48*time.Hour); err != nil {
			logger.Logger.Warn("Failed to mark dispatch as processed",
				zap.String("message_id", msg.MessageID),
				zap.Error(err),
			)
		}

		return nil
	}

	return mq.Consume(mq.ConsumeOptions{
		Queue:         mq.DispatchQueue,
		ConsumerTag:   fmt.Sprintf("dispatch_consumer_%s", uuid.NewString()[:8]),
		PrefetchCount: config.Cfg.DispatchPrefetch,
		Handler:       handler,
	})
}

// StartAllConsumers 启动所有消费者（在 worker 启动时调用）
func StartAllConsumers(ctx context.Context) {
	var wg sync.WaitGroup

	consumers := []struct {
		name     string
		consumer func(context.Context) error
	}{
		{"campaign_dispatch", StartDispatchConsumer},
	}

	for _, c := range consumers {
		wg.Add(1)
		go func(name string, consumer func(context.Context) error) {
			defer wg.Done()

			logger.Logger.Info("Starting consumer",
				zap.String("consumer_name", name),
			)

			if err := consumer(ctx); err != nil {
				logger.Logger.Error("Consumer exited with error",
					zap.String("consumer_name", name),
					zap.Error(err),
				)
			}
		}(c.name, c.consumer)
	}

	wg.Wait()

	logger.Logger.Info("All consumers started")
}
