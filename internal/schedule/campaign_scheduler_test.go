package schedule

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"WaBlast/internal/model"
	"WaBlast/pkg/logger"
	"WaBlast/pkg/snowflake"
)

func TestMain(m *testing.M) {
	logger.Logger = zap.NewNop()
	if err := snowflake.Init(1, 1); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

var scanNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeSchedulerCampaigns struct {
	campaigns    []model.Campaign
	stateChanges map[int64]model.CampaignState
	stamped      map[int64]time.Time
}

func (f *fakeSchedulerCampaigns) ListByState(ctx context.Context, state model.CampaignState) ([]model.Campaign, error) {
	return f.campaigns, nil
}

func (f *fakeSchedulerCampaigns) UpdateState(ctx context.Context, id int64, state model.CampaignState) error {
	if f.stateChanges == nil {
		f.stateChanges = make(map[int64]model.CampaignState)
	}
	f.stateChanges[id] = state
	return nil
}

func (f *fakeSchedulerCampaigns) StampLastRun(ctx context.Context, id int64, at time.Time) error {
	if f.stamped == nil {
		f.stamped = make(map[int64]time.Time)
	}
	f.stamped[id] = at
	return nil
}

type fakeSchedulerQueue struct {
	due        []model.QueueLine
	pending    int64
	dueQueried bool
	dueLimit   int
}

func (f *fakeSchedulerQueue) DueLines(ctx context.Context, campaignID int64, now time.Time, limit int) ([]model.QueueLine, error) {
	f.dueQueried = true
	f.dueLimit = limit
	return f.due, nil
}

func (f *fakeSchedulerQueue) CountPending(ctx context.Context, campaignID int64) (int64, error) {
	return f.pending, nil
}

type lockRecorder struct {
	denied   bool
	acquired []string
	released []string
}

func (l *lockRecorder) tryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if l.denied {
		return false, nil
	}
	l.acquired = append(l.acquired, key)
	return true, nil
}

func (l *lockRecorder) unlock(ctx context.Context, key string) error {
	l.released = append(l.released, key)
	return nil
}

func runningCampaign(id int64, startHour, endHour float64) model.Campaign {
	c := model.Campaign{
		Name:            fmt.Sprintf("campaign %d", id),
		Mode:            model.ModeText,
		DefaultBody:     "hello",
		BatchSize:       25,
		WindowStartHour: startHour,
		WindowEndHour:   endHour,
		State:           model.CampaignStateRunning,
	}
	c.ID = id
	return c
}

func dueLine(id int64, campaignID int64, attempts int) model.QueueLine {
	l := model.QueueLine{CampaignID: campaignID, Status: model.QueueStatusPending, Attempts: attempts}
	l.ID = id
	return l
}

func newTestScheduler(campaigns *fakeSchedulerCampaigns, queue *fakeSchedulerQueue, locks *lockRecorder, published *[]model.DispatchMessage) *CampaignScheduler {
	return NewCampaignScheduler(
		campaigns,
		queue,
		func() time.Time { return scanNow },
		locks.tryLock,
		locks.unlock,
		func(msg model.DispatchMessage) error {
			*published = append(*published, msg)
			return nil
		},
		time.Minute,
	)
}

func TestRunOncePublishesDueLines(t *testing.T) {
	campaigns := &fakeSchedulerCampaigns{campaigns: []model.Campaign{runningCampaign(1, 0, 0)}}
	queue := &fakeSchedulerQueue{due: []model.QueueLine{
		dueLine(10, 1, 0),
		dueLine(11, 1, 2),
	}}
	locks := &lockRecorder{}
	var published []model.DispatchMessage
	s := newTestScheduler(campaigns, queue, locks, &published)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}

	if len(published) != 2 {
		t.Fatalf("published = %d messages, want 2", len(published))
	}
	if published[0].QueueLineID != 10 || published[0].Attempts != 0 {
		t.Errorf("first message = %+v", published[0])
	}
	if published[1].QueueLineID != 11 || published[1].Attempts != 2 {
		t.Errorf("second message should carry the line's attempts snapshot, got %+v", published[1])
	}
	if published[0].BatchID != published[1].BatchID {
		t.Error("one scan cycle should share a batch ID")
	}
	if !strings.HasPrefix(published[0].BatchID, "campaign_1_batch_") {
		t.Errorf("batch ID = %q", published[0].BatchID)
	}
	if queue.dueLimit != 25 {
		t.Errorf("due query limit = %d, want campaign batch size", queue.dueLimit)
	}

	if got, ok := campaigns.stamped[1]; !ok || !got.Equal(scanNow) {
		t.Errorf("last run stamp = %v, want %v", got, scanNow)
	}
	if len(locks.acquired) != 1 || len(locks.released) != 1 {
		t.Errorf("lease acquired %d released %d, want 1 and 1", len(locks.acquired), len(locks.released))
	}
}

func TestRunOnceSkipsOutsideWindow(t *testing.T) {
	// 扫描时刻是 12:00 UTC，窗口 [20, 8) 不含正午
	campaigns := &fakeSchedulerCampaigns{campaigns: []model.Campaign{runningCampaign(1, 20, 8)}}
	queue := &fakeSchedulerQueue{due: []model.QueueLine{dueLine(10, 1, 0)}}
	locks := &lockRecorder{}
	var published []model.DispatchMessage
	s := newTestScheduler(campaigns, queue, locks, &published)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}

	if len(published) != 0 {
		t.Fatal("nothing should be published outside the send window")
	}
	if queue.dueQueried {
		t.Error("due lines should not be queried outside the window")
	}
	if len(campaigns.stateChanges) != 0 {
		t.Error("campaign must stay running while the window is closed")
	}
	if len(locks.released) != 1 {
		t.Error("lease should still be released")
	}
}

func TestRunOnceMarksExhaustedCampaignDone(t *testing.T) {
	campaigns := &fakeSchedulerCampaigns{campaigns: []model.Campaign{runningCampaign(1, 0, 0)}}
	queue := &fakeSchedulerQueue{pending: 0}
	locks := &lockRecorder{}
	var published []model.DispatchMessage
	s := newTestScheduler(campaigns, queue, locks, &published)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}

	if campaigns.stateChanges[1] != model.CampaignStateDone {
		t.Fatalf("state changes = %+v, want campaign 1 done", campaigns.stateChanges)
	}
	if len(published) != 0 {
		t.Fatal("nothing to publish for an exhausted campaign")
	}
}

func TestRunOnceWaitsOnBackoffDelays(t *testing.T) {
	// 没有到期行但还有 pending：活动在等退避或 drip 延迟，不能标记完成
	campaigns := &fakeSchedulerCampaigns{campaigns: []model.Campaign{runningCampaign(1, 0, 0)}}
	queue := &fakeSchedulerQueue{pending: 3}
	locks := &lockRecorder{}
	var published []model.DispatchMessage
	s := newTestScheduler(campaigns, queue, locks, &published)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}

	if len(campaigns.stateChanges) != 0 {
		t.Fatalf("state changes = %+v, want none", campaigns.stateChanges)
	}
	if len(published) != 0 {
		t.Fatal("nothing should be published while lines wait on delays")
	}
}

func TestRunOnceSkipsCampaignWithHeldLease(t *testing.T) {
	campaigns := &fakeSchedulerCampaigns{campaigns: []model.Campaign{runningCampaign(1, 0, 0)}}
	queue := &fakeSchedulerQueue{due: []model.QueueLine{dueLine(10, 1, 0)}}
	locks := &lockRecorder{denied: true}
	var published []model.DispatchMessage
	s := newTestScheduler(campaigns, queue, locks, &published)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("held lease is not an error, got %v", err)
	}
	if queue.dueQueried || len(published) != 0 {
		t.Fatal("campaign with a held lease must be left alone")
	}
}

func TestRunOnceContinuesPastFailingCampaign(t *testing.T) {
	campaigns := &fakeSchedulerCampaigns{campaigns: []model.Campaign{
		runningCampaign(1, 0, 0),
		runningCampaign(2, 0, 0),
	}}
	queue := &fakeSchedulerQueue{due: []model.QueueLine{dueLine(10, 1, 0)}}
	locks := &lockRecorder{}

	var published []model.DispatchMessage
	s := NewCampaignScheduler(
		campaigns,
		queue,
		func() time.Time { return scanNow },
		locks.tryLock,
		locks.unlock,
		func(msg model.DispatchMessage) error {
			if msg.CampaignID == 1 {
				return fmt.Errorf("broker unavailable")
			}
			published = append(published, msg)
			return nil
		},
		time.Minute,
	)

	err := s.RunOnce(context.Background())
	if err == nil {
		t.Fatal("scan with a failing campaign should report an error")
	}
	// 第二个活动仍然被处理
	if len(published) != 1 || published[0].CampaignID != 2 {
		t.Fatalf("published = %+v, want one message for campaign 2", published)
	}
}
