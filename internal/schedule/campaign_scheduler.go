package schedule

// 活动调度器：定期扫描 running 活动，检查发送窗口，
// 把到期的队列行打包成派发任务发给 worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"WaBlast/config"
	"WaBlast/internal/cache"
	"WaBlast/internal/model"
	"WaBlast/internal/queue"
	"WaBlast/internal/repository"
	"WaBlast/pkg/logger"
	"WaBlast/pkg/metrics"
	"WaBlast/pkg/snowflake"
	"WaBlast/storage/database"
	"WaBlast/utils"
)

type schedulerCampaignStore interface {
	ListByState(ctx context.Context, state model.CampaignState) ([]model.Campaign, error)
	UpdateState(ctx context.Context, id int64, state model.CampaignState) error
	StampLastRun(ctx context.Context, id int64, at time.Time) error
}

type schedulerQueueStore interface {
	DueLines(ctx context.Context, campaignID int64, now time.Time, limit int) ([]model.QueueLine, error)
	CountPending(ctx context.Context, campaignID int64) (int64, error)
}

// CampaignScheduler 活动调度器
type CampaignScheduler struct {
	logger    *zap.Logger
	campaigns schedulerCampaignStore
	queue     schedulerQueueStore

	// 可注入：时钟、租约、发布，便于在测试中替换
	now     func() time.Time
	tryLock func(ctx context.Context, key string, ttl time.Duration) (bool, error)
	unlock  func(ctx context.Context, key string) error
	publish func(msg model.DispatchMessage) error

	leaseTTL time.Duration

	scanRunning bool
	scanMu      sync.Mutex
	lastScanAt  time.Time
}

var (
	campaignSchedulerOnce sync.Once
	campaignSchedulerInst *CampaignScheduler
)

// GetCampaignScheduler 获取活动调度器单例
func GetCampaignScheduler() *CampaignScheduler {
	campaignSchedulerOnce.Do(func() {
		db := database.DB()
		campaignSchedulerInst = NewCampaignScheduler(
			repository.NewCampaignRepository(db),
			repository.NewQueueRepository(db),
			time.Now,
			cache.TryLock,
			cache.Unlock,
			queue.PublishDispatch,
			time.Duration(config.Cfg.SchedulerLeaseTTL)*time.Second,
		)
	})
	return campaignSchedulerInst
}

func NewCampaignScheduler(
	campaigns schedulerCampaignStore,
	queueStore schedulerQueueStore,
	now func() time.Time,
	tryLock func(ctx context.Context, key string, ttl time.Duration) (bool, error),
	unlock func(ctx context.Context, key string) error,
	publish func(msg model.DispatchMessage) error,
	leaseTTL time.Duration,
) *CampaignScheduler {
	if leaseTTL <= 0 {
		leaseTTL = 2 * time.Minute
	}
	return &CampaignScheduler{
		logger:    logger.Logger,
		campaigns: campaigns,
		queue:     queueStore,
		now:       now,
		tryLock:   tryLock,
		unlock:    unlock,
		publish:   publish,
		leaseTTL:  leaseTTL,
	}
}

// RunOnce 扫描一轮所有 running 活动（定时任务调用）。
// 单个活动的失败不影响同轮其他活动。
func (s *CampaignScheduler) RunOnce(ctx context.Context) error {
	s.scanMu.Lock()
	if s.scanRunning {
		s.scanMu.Unlock()
		s.logger.Info("Campaign scan already running, skipping")
		return nil
	}
	s.scanRunning = true
	s.scanMu.Unlock()

	defer func() {
		s.scanMu.Lock()
		s.scanRunning = false
		s.scanMu.Unlock()
	}()

	startTime := s.now()
	s.lastScanAt = startTime

	campaigns, err := s.campaigns.ListByState(ctx, model.CampaignStateRunning)
	if err != nil {
		s.logger.Error("Failed to list running campaigns", zap.Error(err))
		return fmt.Errorf("failed to list running campaigns: %w", err)
	}

	if len(campaigns) == 0 {
		return nil
	}

	errCount := 0
	dispatched := 0
	for i := range campaigns {
		n, err := s.processCampaign(ctx, &campaigns[i])
		if err != nil {
			errCount++
			s.logger.Error("Campaign scan failed",
				zap.Int64("campaign_id", campaigns[i].ID),
				zap.Error(err),
			)
		}
		dispatched += n
	}

	s.logger.Info("Campaign scan completed",
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("campaign_count", len(campaigns)),
		zap.Int("dispatched", dispatched),
		zap.Int("error_count", errCount),
	)

	if errCount > 0 {
		return fmt.Errorf("campaign scan completed with %d errors", errCount)
	}
	return nil
}

// processCampaign 单个活动的一轮调度，返回派发的行数。
// 同一活动同一时刻最多一次扫描：Redis 租约挡掉并发调度器实例。
func (s *CampaignScheduler) processCampaign(ctx context.Context, campaign *model.Campaign) (int, error) {
	lockKey := cache.CampaignLockKey(campaign.ID)
	locked, err := s.tryLock(ctx, lockKey, s.leaseTTL)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire campaign lease: %w", err)
	}
	if !locked {
		s.logger.Info("Campaign lease held elsewhere, skipping",
			zap.Int64("campaign_id", campaign.ID),
		)
		return 0, nil
	}
	defer func() {
		if err := s.unlock(ctx, lockKey); err != nil {
			s.logger.Warn("Failed to release campaign lease",
				zap.Int64("campaign_id", campaign.ID),
				zap.Error(err),
			)
		}
	}()

	now := s.now()

	// 窗口外跳过本轮，活动保持 running
	if !utils.WithinWindow(now, campaign.WindowStartHour, campaign.WindowEndHour) {
		s.logger.Debug("Campaign outside send window, skipping cycle",
			zap.Int64("campaign_id", campaign.ID),
			zap.Float64("window_start", campaign.WindowStartHour),
			zap.Float64("window_end", campaign.WindowEndHour),
		)
		return 0, nil
	}

	lines, err := s.queue.DueLines(ctx, campaign.ID, now, campaign.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to select due lines: %w", err)
	}

	if len(lines) == 0 {
		// 只有整条队列都不再有 pending 行时活动才算完成；
		// 行仅仅在等退避或 drip 延迟时跳过本轮
		pending, err := s.queue.CountPending(ctx, campaign.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to count pending lines: %w", err)
		}
		if pending == 0 {
			if err := s.campaigns.UpdateState(ctx, campaign.ID, model.CampaignStateDone); err != nil {
				return 0, err
			}
			s.logger.Info("Campaign exhausted, marked done",
				zap.Int64("campaign_id", campaign.ID),
			)
		} else {
			s.logger.Debug("No lines due this cycle, waiting on backoff/drip delays",
				zap.Int64("campaign_id", campaign.ID),
				zap.Int64("pending", pending),
			)
		}
		return 0, nil
	}

	batchID, err := snowflake.NextID()
	if err != nil {
		return 0, fmt.Errorf("failed to generate batch ID: %w", err)
	}
	batch := fmt.Sprintf("campaign_%d_batch_%d", campaign.ID, batchID)

	dispatched := 0
	for i := range lines {
		line := &lines[i]
		msg := model.DispatchMessage{
			BatchID:     batch,
			CampaignID:  campaign.ID,
			QueueLineID: line.ID,
			Attempts:    line.Attempts,
			ScheduledAt: now.Format(time.RFC3339),
		}
		if err := s.publish(msg); err != nil {
			return dispatched, fmt.Errorf("failed to publish dispatch for line %d: %w", line.ID, err)
		}
		dispatched++
	}

	metrics.RecordDispatchBatch(campaign.ID, dispatched)

	if err := s.campaigns.StampLastRun(ctx, campaign.ID, now); err != nil {
		s.logger.Warn("Failed to stamp campaign last run",
			zap.Int64("campaign_id", campaign.ID),
			zap.Error(err),
		)
	}

	s.logger.Info("Campaign batch dispatched",
		zap.Int64("campaign_id", campaign.ID),
		zap.String("batch_id", batch),
		zap.Int("line_count", dispatched),
	)

	return dispatched, nil
}
