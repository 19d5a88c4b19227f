package service

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"WaBlast/internal/model"
	"WaBlast/pkg/errors"
	"WaBlast/pkg/logger"
	"WaBlast/pkg/whatsapp"
)

func TestMain(m *testing.M) {
	logger.Logger = zap.NewNop()
	os.Exit(m.Run())
}

var testNow = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

// ---- in-memory fakes ----

type memQueue struct {
	lines map[int64]*model.QueueLine
}

func newMemQueue(lines ...*model.QueueLine) *memQueue {
	q := &memQueue{lines: make(map[int64]*model.QueueLine)}
	for _, l := range lines {
		q.lines[l.ID] = l
	}
	return q
}

func (q *memQueue) GetByID(ctx context.Context, id int64) (*model.QueueLine, error) {
	l, ok := q.lines[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (q *memQueue) Claim(ctx context.Context, id int64, attempts int, leaseUntil time.Time) (bool, error) {
	l, ok := q.lines[id]
	if !ok || l.Status != model.QueueStatusPending || l.Attempts != attempts {
		return false, nil
	}
	lease := leaseUntil
	l.NextAttemptAt = &lease
	return true, nil
}

func (q *memQueue) Update(ctx context.Context, id int64, patch map[string]interface{}) error {
	l := q.lines[id]
	for key, value := range patch {
		switch key {
		case "status":
			l.Status = value.(model.QueueStatus)
		case "attempts":
			l.Attempts = value.(int)
		case "last_error":
			l.LastError = value.(string)
		case "message_id":
			l.MessageID = value.(string)
		case "next_attempt_at":
			at := value.(time.Time)
			l.NextAttemptAt = &at
		case "step_id":
			stepID := value.(int64)
			l.StepID = &stepID
		}
	}
	return nil
}

type memCampaigns struct {
	campaigns map[int64]*model.Campaign
	steps     []model.CampaignStep
}

func (c *memCampaigns) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	campaign, ok := c.campaigns[id]
	if !ok {
		return nil, nil
	}
	return campaign, nil
}

func (c *memCampaigns) GetStep(ctx context.Context, stepID int64) (*model.CampaignStep, error) {
	for i := range c.steps {
		if c.steps[i].ID == stepID {
			return &c.steps[i], nil
		}
	}
	return nil, nil
}

func (c *memCampaigns) NextStep(ctx context.Context, campaignID int64, afterSequence int) (*model.CampaignStep, error) {
	var next *model.CampaignStep
	for i := range c.steps {
		step := &c.steps[i]
		if step.CampaignID != campaignID || step.Sequence <= afterSequence {
			continue
		}
		if next == nil || step.Sequence < next.Sequence {
			next = step
		}
	}
	return next, nil
}

type memRecipients struct {
	recipients map[int64]*model.Recipient
}

func (r *memRecipients) GetByID(ctx context.Context, id int64) (*model.Recipient, error) {
	recipient, ok := r.recipients[id]
	if !ok {
		return nil, nil
	}
	return recipient, nil
}

type memLogs struct {
	created []*model.MessageLog
}

func (l *memLogs) Create(ctx context.Context, log *model.MessageLog) error {
	l.created = append(l.created, log)
	return nil
}

// ---- fixtures ----

func textCampaign() *model.Campaign {
	c := &model.Campaign{
		Name:        "welcome blast",
		Mode:        model.ModeText,
		DefaultBody: "hello from us",
		BatchSize:   50,
	}
	c.ID = 1
	return c
}

func optedInRecipient() *model.Recipient {
	r := &model.Recipient{
		Name:   "Alice",
		Mobile: "+14155552671",
		OptIn:  true,
	}
	r.ID = 7
	return r
}

func pendingLine(id int64, attempts int) *model.QueueLine {
	l := &model.QueueLine{
		CampaignID:  1,
		RecipientID: 7,
		Status:      model.QueueStatusPending,
		Attempts:    attempts,
	}
	l.ID = id
	return l
}

func newDispatchFixture(line *model.QueueLine, campaign *model.Campaign, recipient *model.Recipient) (*DispatchService, *memQueue, *whatsapp.MockClient, *memLogs) {
	queue := newMemQueue(line)
	campaigns := &memCampaigns{campaigns: map[int64]*model.Campaign{campaign.ID: campaign}}
	recipients := &memRecipients{recipients: map[int64]*model.Recipient{recipient.ID: recipient}}
	logs := &memLogs{}
	client := whatsapp.NewMockClient()
	svc := NewDispatchService(queue, campaigns, recipients, logs, client, fixedNow, 3, "")
	return svc, queue, client, logs
}

// ---- tests ----

func TestProcessLineSendsText(t *testing.T) {
	line := pendingLine(100, 0)
	svc, queue, client, logs := newDispatchFixture(line, textCampaign(), optedInRecipient())

	msg := model.DispatchMessage{QueueLineID: 100, CampaignID: 1, Attempts: 0}
	if err := svc.ProcessLine(context.Background(), msg); err != nil {
		t.Fatalf("ProcessLine returned error: %v", err)
	}

	got := queue.lines[100]
	if got.Status != model.QueueStatusSent {
		t.Fatalf("line status = %q, want sent", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}
	if got.MessageID == "" {
		t.Error("message ID should be recorded on the line")
	}
	if got.LastError != "" {
		t.Errorf("last error should be cleared, got %q", got.LastError)
	}

	if len(client.Calls) != 1 || client.Calls[0].Kind != "text" || client.Calls[0].To != "+14155552671" {
		t.Fatalf("unexpected client calls: %+v", client.Calls)
	}
	if len(logs.created) != 1 || logs.created[0].Direction != model.DirectionOutbound {
		t.Fatalf("expected one outbound message log, got %+v", logs.created)
	}
	if logs.created[0].MessageID != got.MessageID {
		t.Error("message log should carry the provider message ID")
	}
}

func TestProcessLineOptOutFailsImmediately(t *testing.T) {
	line := pendingLine(100, 0)
	recipient := optedInRecipient()
	recipient.OptIn = false
	svc, queue, client, _ := newDispatchFixture(line, textCampaign(), recipient)

	msg := model.DispatchMessage{QueueLineID: 100, CampaignID: 1, Attempts: 0}
	if err := svc.ProcessLine(context.Background(), msg); err != nil {
		t.Fatalf("ProcessLine returned error: %v", err)
	}

	got := queue.lines[100]
	if got.Status != model.QueueStatusFailed {
		t.Fatalf("opt-out should fail the line immediately, status = %q", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}
	if got.LastError != errors.OptInRequired.Error() {
		t.Errorf("last error = %q", got.LastError)
	}
	if len(client.Calls) != 0 {
		t.Fatal("no provider call should happen for an invalid recipient")
	}
}

func TestProcessLineInvalidMobileFailsImmediately(t *testing.T) {
	line := pendingLine(100, 0)
	recipient := optedInRecipient()
	recipient.Mobile = "not-a-number"
	svc, queue, client, _ := newDispatchFixture(line, textCampaign(), recipient)

	msg := model.DispatchMessage{QueueLineID: 100, CampaignID: 1, Attempts: 0}
	if err := svc.ProcessLine(context.Background(), msg); err != nil {
		t.Fatalf("ProcessLine returned error: %v", err)
	}

	got := queue.lines[100]
	if got.Status != model.QueueStatusFailed || got.LastError != errors.InvalidMobile.Error() {
		t.Fatalf("line = %+v", got)
	}
	if len(client.Calls) != 0 {
		t.Fatal("no provider call should happen for an invalid mobile")
	}
}

func TestProcessLineTransportFailureBacksOff(t *testing.T) {
	line := pendingLine(100, 0)
	svc, queue, client, _ := newDispatchFixture(line, textCampaign(), optedInRecipient())
	client.FailNext = true

	msg := model.DispatchMessage{QueueLineID: 100, CampaignID: 1, Attempts: 0}
	if err := svc.ProcessLine(context.Background(), msg); err != nil {
		t.Fatalf("ProcessLine returned error: %v", err)
	}

	got := queue.lines[100]
	if got.Status != model.QueueStatusPending {
		t.Fatalf("first failure should keep the line pending, status = %q", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}
	if got.LastError == "" {
		t.Error("last error should record the send failure")
	}
	wantNext := testNow.Add(5 * time.Minute)
	if got.NextAttemptAt == nil || !got.NextAttemptAt.Equal(wantNext) {
		t.Errorf("next attempt = %v, want %v", got.NextAttemptAt, wantNext)
	}
}

func TestProcessLineThirdFailureIsTerminal(t *testing.T) {
	line := pendingLine(100, 2)
	svc, queue, client, _ := newDispatchFixture(line, textCampaign(), optedInRecipient())
	client.FailNext = true

	msg := model.DispatchMessage{QueueLineID: 100, CampaignID: 1, Attempts: 2}
	if err := svc.ProcessLine(context.Background(), msg); err != nil {
		t.Fatalf("ProcessLine returned error: %v", err)
	}

	got := queue.lines[100]
	if got.Status != model.QueueStatusFailed {
		t.Fatalf("third failure should be terminal, status = %q", got.Status)
	}
	if got.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", got.Attempts)
	}
}

func TestProcessLineSkipsStaleAttemptsSnapshot(t *testing.T) {
	line := pendingLine(100, 1)
	svc, queue, client, _ := newDispatchFixture(line, textCampaign(), optedInRecipient())

	// 调度消息带的是旧的 attempts 快照，认领必须失败
	msg := model.DispatchMessage{QueueLineID: 100, CampaignID: 1, Attempts: 0}
	if err := svc.ProcessLine(context.Background(), msg); err != nil {
		t.Fatalf("ProcessLine returned error: %v", err)
	}

	if len(client.Calls) != 0 {
		t.Fatal("stale dispatch should not reach the provider")
	}
	if queue.lines[100].Status != model.QueueStatusPending || queue.lines[100].Attempts != 1 {
		t.Fatalf("line should be untouched, got %+v", queue.lines[100])
	}
}

func TestProcessLineSkipsNonPendingLine(t *testing.T) {
	line := pendingLine(100, 0)
	line.Status = model.QueueStatusSent
	svc, _, client, _ := newDispatchFixture(line, textCampaign(), optedInRecipient())

	msg := model.DispatchMessage{QueueLineID: 100, CampaignID: 1, Attempts: 0}
	if err := svc.ProcessLine(context.Background(), msg); err != nil {
		t.Fatalf("ProcessLine returned error: %v", err)
	}
	if len(client.Calls) != 0 {
		t.Fatal("already-sent line should be skipped")
	}
}

func dripSteps() []model.CampaignStep {
	first := model.CampaignStep{CampaignID: 1, Sequence: 1, Mode: model.ModeText, Body: "step one"}
	first.ID = 11
	second := model.CampaignStep{CampaignID: 1, Sequence: 2, Mode: model.ModeText, Body: "step two", DelayHours: 24}
	second.ID = 12
	return []model.CampaignStep{first, second}
}

func TestProcessLineAdvancesDrip(t *testing.T) {
	line := pendingLine(100, 0)
	firstStepID := int64(11)
	line.StepID = &firstStepID

	queue := newMemQueue(line)
	campaigns := &memCampaigns{
		campaigns: map[int64]*model.Campaign{1: textCampaign()},
		steps:     dripSteps(),
	}
	recipients := &memRecipients{recipients: map[int64]*model.Recipient{7: optedInRecipient()}}
	client := whatsapp.NewMockClient()
	svc := NewDispatchService(queue, campaigns, recipients, &memLogs{}, client, fixedNow, 3, "")

	msg := model.DispatchMessage{QueueLineID: 100, CampaignID: 1, Attempts: 0}
	if err := svc.ProcessLine(context.Background(), msg); err != nil {
		t.Fatalf("ProcessLine returned error: %v", err)
	}

	got := queue.lines[100]
	if got.Status != model.QueueStatusPending {
		t.Fatalf("line should return to pending for the next step, status = %q", got.Status)
	}
	if got.Attempts != 0 {
		t.Errorf("attempts should reset to 0, got %d", got.Attempts)
	}
	if got.MessageID != "" || got.LastError != "" {
		t.Errorf("message ID and last error should be cleared, got %+v", got)
	}
	if got.StepID == nil || *got.StepID != 12 {
		t.Fatalf("step ID = %v, want 12", got.StepID)
	}
	wantNext := testNow.Add(24 * time.Hour)
	if got.NextAttemptAt == nil || !got.NextAttemptAt.Equal(wantNext) {
		t.Errorf("next attempt = %v, want %v", got.NextAttemptAt, wantNext)
	}

	// 发送内容来自步骤覆盖
	if len(client.Calls) != 1 || client.Calls[0].Body != "step one" {
		t.Fatalf("unexpected client calls: %+v", client.Calls)
	}
}

func TestProcessLineLastStepStaysSent(t *testing.T) {
	line := pendingLine(100, 0)
	lastStepID := int64(12)
	line.StepID = &lastStepID

	queue := newMemQueue(line)
	campaigns := &memCampaigns{
		campaigns: map[int64]*model.Campaign{1: textCampaign()},
		steps:     dripSteps(),
	}
	recipients := &memRecipients{recipients: map[int64]*model.Recipient{7: optedInRecipient()}}
	svc := NewDispatchService(queue, campaigns, recipients, &memLogs{}, whatsapp.NewMockClient(), fixedNow, 3, "")

	msg := model.DispatchMessage{QueueLineID: 100, CampaignID: 1, Attempts: 0}
	if err := svc.ProcessLine(context.Background(), msg); err != nil {
		t.Fatalf("ProcessLine returned error: %v", err)
	}

	got := queue.lines[100]
	if got.Status != model.QueueStatusSent {
		t.Fatalf("final step should leave the line sent, status = %q", got.Status)
	}
	if got.StepID == nil || *got.StepID != 12 {
		t.Errorf("step ID should stay on the final step, got %v", got.StepID)
	}
}

func TestProcessLineImageModeFallsBackToDefaultMedia(t *testing.T) {
	campaign := textCampaign()
	campaign.Mode = model.ModeMediaImage
	campaign.DefaultBody = "see attached"
	line := pendingLine(100, 0)

	queue := newMemQueue(line)
	campaigns := &memCampaigns{campaigns: map[int64]*model.Campaign{1: campaign}}
	recipients := &memRecipients{recipients: map[int64]*model.Recipient{7: optedInRecipient()}}
	client := whatsapp.NewMockClient()
	svc := NewDispatchService(queue, campaigns, recipients, &memLogs{}, client, fixedNow, 3, "https://cdn.example.com/default.jpg")

	msg := model.DispatchMessage{QueueLineID: 100, CampaignID: 1, Attempts: 0}
	if err := svc.ProcessLine(context.Background(), msg); err != nil {
		t.Fatalf("ProcessLine returned error: %v", err)
	}

	if len(client.Calls) != 1 || client.Calls[0].Kind != "image" {
		t.Fatalf("unexpected client calls: %+v", client.Calls)
	}
	if client.Calls[0].Link != "https://cdn.example.com/default.jpg" {
		t.Errorf("image link = %q, want configured default", client.Calls[0].Link)
	}
}

func TestProcessLineMissingBodyBacksOff(t *testing.T) {
	campaign := textCampaign()
	campaign.DefaultBody = ""
	line := pendingLine(100, 0)
	svc, queue, client, _ := newDispatchFixture(line, campaign, optedInRecipient())

	msg := model.DispatchMessage{QueueLineID: 100, CampaignID: 1, Attempts: 0}
	if err := svc.ProcessLine(context.Background(), msg); err != nil {
		t.Fatalf("ProcessLine returned error: %v", err)
	}

	got := queue.lines[100]
	if got.Status != model.QueueStatusPending || got.Attempts != 1 {
		t.Fatalf("payload precondition failure should follow the retry path, got %+v", got)
	}
	if got.LastError != errors.BodyRequired.Error() {
		t.Errorf("last error = %q", got.LastError)
	}
	if len(client.Calls) != 0 {
		t.Fatal("no provider call without a body")
	}
}
