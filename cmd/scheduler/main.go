package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"WaBlast/config"
	"WaBlast/internal/schedule"
	"WaBlast/pkg/logger"
	"WaBlast/pkg/otel"
	"WaBlast/pkg/snowflake"
	"WaBlast/storage"
)

func main() {
	config.MustValidate()

	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Logger.Info("Scheduler received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if config.Cfg.OTelEnabled {
		shutdown, err := otel.InitOpenTelemetry(ctx, otel.Config{
			ServiceName:  "wablast-scheduler",
			Environment:  config.Cfg.Environment,
			OTLPEndpoint: config.Cfg.OTelEndpoint,
		})
		if err != nil {
			logger.Logger.Fatal("Failed to initialize OpenTelemetry for scheduler", zap.Error(err))
		}
		defer shutdown(context.Background())
	}

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage for scheduler", zap.Error(err))
	}
	defer storage.Close()

	// 批次号依赖 snowflake，多实例部署时 machineID 必须区分
	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake for scheduler", zap.Error(err))
	}

	logger.Logger.Info("Scheduler service starting",
		zap.String("service", "wablast-scheduler"),
		zap.String("environment", config.Cfg.Environment),
	)

	go runCampaignScanLoop(ctx)

	<-ctx.Done()

	logger.Logger.Info("Scheduler service shutting down gracefully")
}

// runCampaignScanLoop 周期性扫描 running 活动并派发到期的队列行。
// 扫描间隔由 SCHEDULER_INTERVAL_SECONDS 控制，development 环境固定 10s 方便调试。
func runCampaignScanLoop(ctx context.Context) {
	s := schedule.GetCampaignScheduler()

	interval := time.Duration(config.Cfg.SchedulerInterval) * time.Second
	if config.Cfg.IsDevelopment() {
		interval = 10 * time.Second
		logger.Logger.Info("Campaign scan loop running in development mode with 10s interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			if err := s.RunOnce(runCtx); err != nil {
				logger.Logger.Error("Campaign scan run failed", zap.Error(err))
			}
			cancel()
		}
	}
}
