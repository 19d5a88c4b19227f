package queue

import (
	"fmt"
	"time"

	"WaBlast/internal/model"
	"WaBlast/pkg/logger"
	"WaBlast/storage/mq"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PublishDispatch 发布单行派发任务（延迟消息，delay 为 0 表示立即）
func PublishDispatch(msg model.DispatchMessage) error {
	if msg.MessageID == "" {
		msg.MessageID = fmt.Sprintf("dispatch_%s", uuid.NewString())
	}

	delay := time.Duration(msg.DelaySeconds) * time.Second

	err := mq.PublishDelayedMessage(
		mq.DelayedExchange,
		mq.DispatchRoutingKey,
		delay,
		msg,
	)

	if err != nil {
		logger.Logger.Error("Failed to publish dispatch message",
			zap.String("batch_id", msg.BatchID),
			zap.Int64("campaign_id", msg.CampaignID),
			zap.Int64("queue_line_id", msg.QueueLineID),
			zap.Error(err),
		)
		return err
	}

	logger.Logger.Info("Published dispatch message",
		zap.String("message_id", msg.MessageID),
		zap.String("batch_id", msg.BatchID),
		zap.Int64("campaign_id", msg.CampaignID),
		zap.Int64("queue_line_id", msg.QueueLineID),
		zap.Duration("delay", delay),
	)

	return nil
}
