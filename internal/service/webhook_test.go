package service

import (
	"context"
	"testing"

	"WaBlast/internal/model"
)

type fakeWebhookLogs struct {
	created  []*model.MessageLog
	outbound map[string]*model.MessageLog
	updates  []statusUpdate
}

type statusUpdate struct {
	id         int64
	status     string
	errorCode  string
	rawPayload string
}

func (f *fakeWebhookLogs) Create(ctx context.Context, log *model.MessageLog) error {
	f.created = append(f.created, log)
	return nil
}

func (f *fakeWebhookLogs) GetOutboundByMessageID(ctx context.Context, messageID string) (*model.MessageLog, error) {
	return f.outbound[messageID], nil
}

func (f *fakeWebhookLogs) UpdateStatus(ctx context.Context, id int64, status, errorCode, rawPayload string) error {
	f.updates = append(f.updates, statusUpdate{id, status, errorCode, rawPayload})
	return nil
}

type fakeWebhookQueue struct {
	byMessageID map[string]*model.QueueLine
	byRecipient map[int64]*model.QueueLine
	patches     map[int64]map[string]interface{}
}

func (f *fakeWebhookQueue) FindByMessageID(ctx context.Context, messageID string) (*model.QueueLine, error) {
	return f.byMessageID[messageID], nil
}

func (f *fakeWebhookQueue) FindByRecipient(ctx context.Context, campaignID, recipientID int64) (*model.QueueLine, error) {
	return f.byRecipient[recipientID], nil
}

func (f *fakeWebhookQueue) Update(ctx context.Context, id int64, patch map[string]interface{}) error {
	if f.patches == nil {
		f.patches = make(map[int64]map[string]interface{})
	}
	f.patches[id] = patch
	return nil
}

type fakeWebhookRecipients struct {
	byID     map[int64]*model.Recipient
	byMobile map[string]*model.Recipient
	orders   map[int64]*model.Order
}

func (f *fakeWebhookRecipients) GetByID(ctx context.Context, id int64) (*model.Recipient, error) {
	return f.byID[id], nil
}

func (f *fakeWebhookRecipients) FindByMobile(ctx context.Context, mobile string) (*model.Recipient, error) {
	return f.byMobile[mobile], nil
}

func (f *fakeWebhookRecipients) LatestOrder(ctx context.Context, recipientID int64) (*model.Order, error) {
	return f.orders[recipientID], nil
}

type fakeFollowUps struct {
	notes []*model.ContactNote
	tasks []*model.FollowUpTask
}

func (f *fakeFollowUps) CreateNote(ctx context.Context, note *model.ContactNote) error {
	f.notes = append(f.notes, note)
	return nil
}

func (f *fakeFollowUps) CreateTask(ctx context.Context, task *model.FollowUpTask) error {
	f.tasks = append(f.tasks, task)
	return nil
}

type webhookFixture struct {
	svc        *WebhookService
	logs       *fakeWebhookLogs
	queue      *fakeWebhookQueue
	recipients *fakeWebhookRecipients
	followups  *fakeFollowUps
}

func newWebhookFixture(escalateFailed bool) *webhookFixture {
	f := &webhookFixture{
		logs:       &fakeWebhookLogs{outbound: map[string]*model.MessageLog{}},
		queue:      &fakeWebhookQueue{byMessageID: map[string]*model.QueueLine{}, byRecipient: map[int64]*model.QueueLine{}},
		recipients: &fakeWebhookRecipients{byID: map[int64]*model.Recipient{}, byMobile: map[string]*model.Recipient{}, orders: map[int64]*model.Order{}},
		followups:  &fakeFollowUps{},
	}
	f.svc = NewWebhookService(f.logs, f.queue, f.recipients, f.followups, fixedNow, escalateFailed, nil)
	return f
}

func (f *webhookFixture) addRecipient(id int64, mobile string, ownerID int64) *model.Recipient {
	r := &model.Recipient{Mobile: mobile, OptIn: true, OwnerID: ownerID}
	r.ID = id
	f.recipients.byID[id] = r
	f.recipients.byMobile[mobile] = r
	return r
}

func (f *webhookFixture) addOutboundLog(messageID string, campaignID, recipientID int64) *model.MessageLog {
	log := &model.MessageLog{
		MessageID:   messageID,
		Direction:   model.DirectionOutbound,
		CampaignID:  &campaignID,
		RecipientID: &recipientID,
		Status:      "sent",
	}
	log.ID = 500
	f.logs.outbound[messageID] = log
	return log
}

func (f *webhookFixture) addQueueLine(messageID string, lineID int64) *model.QueueLine {
	line := &model.QueueLine{CampaignID: 1, RecipientID: 7, Status: model.QueueStatusSent, MessageID: messageID}
	line.ID = lineID
	f.queue.byMessageID[messageID] = line
	return line
}

func statusPayload(ev StatusEvent) *WebhookPayload {
	p := &WebhookPayload{Object: "whatsapp_business_account"}
	p.Entry = make([]struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string      `json:"field"`
			Value ChangeValue `json:"value"`
		} `json:"changes"`
	}, 1)
	p.Entry[0].Changes = make([]struct {
		Field string      `json:"field"`
		Value ChangeValue `json:"value"`
	}, 1)
	p.Entry[0].Changes[0].Field = "messages"
	p.Entry[0].Changes[0].Value = ChangeValue{Statuses: []StatusEvent{ev}}
	return p
}

func inboundPayload(msg InboundMessage) *WebhookPayload {
	p := statusPayload(StatusEvent{})
	p.Entry[0].Changes[0].Value = ChangeValue{Messages: []InboundMessage{msg}}
	return p
}

func textMessage(from, id, body string) InboundMessage {
	msg := InboundMessage{From: from, ID: id, Type: "text"}
	msg.Text.Body = body
	return msg
}

func TestProcessUnknownStatusMessageIsNoOp(t *testing.T) {
	f := newWebhookFixture(false)

	f.svc.Process(context.Background(), statusPayload(StatusEvent{ID: "wamid.unknown", Status: "delivered"}), nil)

	if len(f.logs.updates) != 0 {
		t.Fatal("unknown message ID should not update any log")
	}
	if len(f.queue.patches) != 0 {
		t.Fatal("unknown message ID should not touch the queue")
	}
}

func TestProcessFailedStatusMirrorsToQueueLine(t *testing.T) {
	f := newWebhookFixture(false)
	f.addRecipient(7, "+14155552671", 0)
	f.addOutboundLog("wamid.X1", 1, 7)
	f.addQueueLine("wamid.X1", 300)

	ev := StatusEvent{
		ID:     "wamid.X1",
		Status: "failed",
		Errors: []StatusError{
			{Code: 131026, Title: "Message undeliverable"},
			{Code: 131047, Message: "Re-engagement required"},
		},
	}
	f.svc.Process(context.Background(), statusPayload(ev), []byte(`{"raw":true}`))

	if len(f.logs.updates) != 1 {
		t.Fatalf("log updates = %d, want 1", len(f.logs.updates))
	}
	upd := f.logs.updates[0]
	if upd.status != "failed" || upd.errorCode != "131026" || upd.rawPayload != `{"raw":true}` {
		t.Fatalf("unexpected log update: %+v", upd)
	}

	patch := f.queue.patches[300]
	if patch == nil {
		t.Fatal("queue line should be patched")
	}
	if patch["status"] != model.QueueStatusFailed {
		t.Errorf("queue status = %v, want failed", patch["status"])
	}
	want := "[131026] Message undeliverable; [131047] Re-engagement required"
	if patch["last_error"] != want {
		t.Errorf("last error = %q, want %q", patch["last_error"], want)
	}
}

func TestProcessErrorsWithoutFailedStatusStillFail(t *testing.T) {
	f := newWebhookFixture(false)
	f.addOutboundLog("wamid.X2", 1, 7)
	f.addQueueLine("wamid.X2", 301)

	ev := StatusEvent{
		ID:     "wamid.X2",
		Status: "sent",
		Errors: []StatusError{{Code: 130472, Title: "User blocked business"}},
	}
	f.svc.Process(context.Background(), statusPayload(ev), nil)

	patch := f.queue.patches[301]
	if patch == nil || patch["status"] != model.QueueStatusFailed {
		t.Fatalf("any errors should fail the line, patch = %+v", patch)
	}
}

func TestProcessDeliveredStatusConfirmsSent(t *testing.T) {
	f := newWebhookFixture(false)
	f.addOutboundLog("wamid.X3", 1, 7)
	line := f.addQueueLine("wamid.X3", 302)
	line.Status = model.QueueStatusPending

	f.svc.Process(context.Background(), statusPayload(StatusEvent{ID: "wamid.X3", Status: "delivered"}), nil)

	patch := f.queue.patches[302]
	if patch == nil || patch["status"] != model.QueueStatusSent {
		t.Fatalf("delivered should set the line to sent, patch = %+v", patch)
	}
	if _, touched := patch["last_error"]; touched {
		t.Error("delivered must not rewrite last_error")
	}
}

func TestProcessStatusFallsBackToRecipientMatch(t *testing.T) {
	f := newWebhookFixture(false)
	f.addOutboundLog("wamid.X4", 1, 7)
	line := &model.QueueLine{CampaignID: 1, RecipientID: 7, Status: model.QueueStatusSent}
	line.ID = 303
	f.queue.byRecipient[7] = line

	f.svc.Process(context.Background(), statusPayload(StatusEvent{ID: "wamid.X4", Status: "read"}), nil)

	if f.queue.patches[303] == nil {
		t.Fatal("status should mirror through the recipient fallback lookup")
	}
}

func TestProcessFailedStatusEscalatesWhenEnabled(t *testing.T) {
	f := newWebhookFixture(true)
	f.addRecipient(7, "+14155552671", 42)
	order := &model.Order{ID: 900, RecipientID: 7, Reference: "SO-1001"}
	f.recipients.orders[7] = order
	f.addOutboundLog("wamid.X5", 1, 7)
	f.addQueueLine("wamid.X5", 304)

	ev := StatusEvent{ID: "wamid.X5", Status: "undelivered", Errors: []StatusError{{Code: 131026, Title: "Message undeliverable"}}}
	f.svc.Process(context.Background(), statusPayload(ev), nil)

	if len(f.followups.notes) != 1 {
		t.Fatalf("notes = %d, want 1", len(f.followups.notes))
	}
	if f.followups.notes[0].OrderID == nil || *f.followups.notes[0].OrderID != 900 {
		t.Error("failure note should attach to the latest order")
	}
	if len(f.followups.tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(f.followups.tasks))
	}
	task := f.followups.tasks[0]
	if task.OwnerID != 42 || task.Severity != model.SeverityWarning {
		t.Fatalf("unexpected task: %+v", task)
	}
	if task.Note != "[131026] Message undeliverable" {
		t.Errorf("task note = %q", task.Note)
	}
}

func TestProcessInboundKeywordCreatesTask(t *testing.T) {
	f := newWebhookFixture(false)
	f.addRecipient(7, "+14155552671", 42)

	f.svc.Process(context.Background(), inboundPayload(textMessage("+14155552671", "wamid.in1", "  pay ")), nil)

	if len(f.logs.created) != 1 || f.logs.created[0].Direction != model.DirectionInbound {
		t.Fatalf("expected one inbound log, got %+v", f.logs.created)
	}
	if len(f.followups.notes) != 1 {
		t.Fatalf("notes = %d, want 1", len(f.followups.notes))
	}
	if len(f.followups.tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(f.followups.tasks))
	}
	task := f.followups.tasks[0]
	if task.OwnerID != 42 || task.Severity != model.SeverityInfo {
		t.Fatalf("unexpected task: %+v", task)
	}
}

func TestProcessInboundKeywordSkipsUnownedRecipient(t *testing.T) {
	f := newWebhookFixture(false)
	f.addRecipient(7, "+14155552671", 0)

	f.svc.Process(context.Background(), inboundPayload(textMessage("+14155552671", "wamid.in2", "HELP")), nil)

	if len(f.followups.notes) != 1 {
		t.Fatal("note should still be written for an unowned recipient")
	}
	if len(f.followups.tasks) != 0 {
		t.Fatal("no task without an owner to assign it to")
	}
}

func TestProcessInboundNonKeywordOnlyNotes(t *testing.T) {
	f := newWebhookFixture(false)
	f.addRecipient(7, "+14155552671", 42)

	f.svc.Process(context.Background(), inboundPayload(textMessage("+14155552671", "wamid.in3", "thanks, got it")), nil)

	if len(f.followups.notes) != 1 || len(f.followups.tasks) != 0 {
		t.Fatalf("notes = %d tasks = %d, want 1 and 0", len(f.followups.notes), len(f.followups.tasks))
	}
}

func TestProcessInboundUnknownSenderLogsOnly(t *testing.T) {
	f := newWebhookFixture(false)

	f.svc.Process(context.Background(), inboundPayload(textMessage("+19998887777", "wamid.in4", "PAY")), nil)

	if len(f.logs.created) != 1 {
		t.Fatalf("inbound log should be created, got %d", len(f.logs.created))
	}
	if f.logs.created[0].RecipientID != nil {
		t.Error("unknown sender log should not reference a recipient")
	}
	if len(f.followups.notes) != 0 || len(f.followups.tasks) != 0 {
		t.Fatal("unknown sender must not produce notes or tasks")
	}
}

func TestProcessInboundButtonReplyBody(t *testing.T) {
	f := newWebhookFixture(false)
	f.addRecipient(7, "+14155552671", 42)

	msg := InboundMessage{From: "+14155552671", ID: "wamid.in5", Type: "interactive"}
	msg.Interactive.Type = "button_reply"
	msg.Interactive.ButtonReply.ID = "call"
	msg.Interactive.ButtonReply.Title = "Call me"

	f.svc.Process(context.Background(), inboundPayload(msg), nil)

	if len(f.logs.created) != 1 || f.logs.created[0].Body != "Call me" {
		t.Fatalf("button reply title should become the body, got %+v", f.logs.created)
	}
	// "Call me" 不在升级词表里，只留备注
	if len(f.followups.tasks) != 0 {
		t.Fatal("button reply title is not an exact keyword match")
	}
}
