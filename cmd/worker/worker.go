package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"WaBlast/config"
	"WaBlast/internal/queue"
	"WaBlast/pkg/logger"
	"WaBlast/pkg/otel"
	"WaBlast/pkg/snowflake"
	"WaBlast/pkg/whatsapp"
	"WaBlast/storage"
)

func main() {
	config.MustValidate()

	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if config.Cfg.OTelEnabled {
		shutdown, err := otel.InitOpenTelemetry(ctx, otel.Config{
			ServiceName:  "wablast-worker",
			Environment:  config.Cfg.Environment,
			OTLPEndpoint: config.Cfg.OTelEndpoint,
		})
		if err != nil {
			logger.Logger.Fatal("Failed to initialize OpenTelemetry for worker", zap.Error(err))
		}
		defer shutdown(context.Background())
	}

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	// worker 必须能发送，客户端初始化失败直接退出
	if err := whatsapp.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize WhatsApp client", zap.Error(err))
	}

	logger.Logger.Info("Worker service starting",
		zap.String("service", "wablast-worker"),
		zap.String("environment", config.Cfg.Environment),
	)

	// 启动所有的消费者部分
	queue.StartAllConsumers(ctx)

	logger.Logger.Info("Worker service shutting down gracefully")
}
