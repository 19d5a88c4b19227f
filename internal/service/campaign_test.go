package service

import (
	"context"
	"testing"

	"WaBlast/internal/model"
	"WaBlast/pkg/errors"
)

type fakeCampaignStore struct {
	campaigns map[int64]*model.Campaign
	nextID    int64
	deleted   []int64
}

func newFakeCampaignStore(campaigns ...*model.Campaign) *fakeCampaignStore {
	s := &fakeCampaignStore{campaigns: make(map[int64]*model.Campaign), nextID: 100}
	for _, c := range campaigns {
		s.campaigns[c.ID] = c
	}
	return s
}

func (s *fakeCampaignStore) Create(ctx context.Context, campaign *model.Campaign) error {
	s.nextID++
	campaign.ID = s.nextID
	s.campaigns[campaign.ID] = campaign
	return nil
}

func (s *fakeCampaignStore) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	return s.campaigns[id], nil
}

func (s *fakeCampaignStore) List(ctx context.Context) ([]model.Campaign, error) {
	out := make([]model.Campaign, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		out = append(out, *c)
	}
	return out, nil
}

func (s *fakeCampaignStore) TransitionState(ctx context.Context, id int64, from []model.CampaignState, to model.CampaignState) (bool, error) {
	c := s.campaigns[id]
	for _, state := range from {
		if c.State == state {
			c.State = to
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeCampaignStore) Delete(ctx context.Context, id int64) error {
	delete(s.campaigns, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type fakeCampaignQueueCounts struct {
	counts map[model.QueueStatus]int64
}

func (f *fakeCampaignQueueCounts) CountByStatus(ctx context.Context, campaignID int64) (map[model.QueueStatus]int64, error) {
	return f.counts, nil
}

func newCampaignFixture(campaigns ...*model.Campaign) (*CampaignService, *fakeCampaignStore) {
	store := newFakeCampaignStore(campaigns...)
	audience := NewAudienceService(
		&fakeAudienceRecipients{recipients: []model.Recipient{audienceRecipient(1)}},
		&fakeAudienceQueue{},
		&fakeAudienceSteps{},
		fixedNow,
	)
	svc := NewCampaignService(store, &fakeCampaignQueueCounts{counts: map[model.QueueStatus]int64{}}, audience)
	return svc, store
}

func campaignInState(id int64, state model.CampaignState) *model.Campaign {
	c := textCampaign()
	c.ID = id
	c.State = state
	return c
}

func TestCampaignCreateRejectsDuplicateSequence(t *testing.T) {
	svc, store := newCampaignFixture()

	campaign := textCampaign()
	campaign.ID = 0
	campaign.Steps = []model.CampaignStep{
		{Sequence: 1, Mode: model.ModeText, Body: "one"},
		{Sequence: 1, Mode: model.ModeText, Body: "dup"},
	}

	if err := svc.Create(context.Background(), campaign); err != errors.StepSequenceConflict {
		t.Fatalf("err = %v, want StepSequenceConflict", err)
	}
	if len(store.campaigns) != 0 {
		t.Fatal("conflicting campaign must not be persisted")
	}
}

func TestCampaignCreateDefaultsToDraft(t *testing.T) {
	svc, _ := newCampaignFixture()

	campaign := textCampaign()
	campaign.ID = 0
	campaign.State = ""

	if err := svc.Create(context.Background(), campaign); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if campaign.State != model.CampaignStateDraft {
		t.Fatalf("state = %q, want draft", campaign.State)
	}
	if campaign.ID == 0 {
		t.Fatal("create should assign an ID")
	}
}

func TestCampaignLifecycleTransitions(t *testing.T) {
	cases := []struct {
		name    string
		from    model.CampaignState
		action  string
		wantErr error
		want    model.CampaignState
	}{
		{"start from draft", model.CampaignStateDraft, "start", nil, model.CampaignStateRunning},
		{"start from paused", model.CampaignStatePaused, "start", nil, model.CampaignStateRunning},
		{"start from running", model.CampaignStateRunning, "start", errors.CampaignStateInvalid, model.CampaignStateRunning},
		{"start from done", model.CampaignStateDone, "start", errors.CampaignStateInvalid, model.CampaignStateDone},
		{"pause from running", model.CampaignStateRunning, "pause", nil, model.CampaignStatePaused},
		{"pause from draft", model.CampaignStateDraft, "pause", errors.CampaignStateInvalid, model.CampaignStateDraft},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, store := newCampaignFixture(campaignInState(5, tc.from))

			var err error
			if tc.action == "start" {
				err = svc.Start(context.Background(), 5)
			} else {
				err = svc.Pause(context.Background(), 5)
			}

			if err != tc.wantErr {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if store.campaigns[5].State != tc.want {
				t.Fatalf("state = %q, want %q", store.campaigns[5].State, tc.want)
			}
		})
	}
}

func TestCampaignGetUnknownID(t *testing.T) {
	svc, _ := newCampaignFixture()

	if _, err := svc.Get(context.Background(), 999); err != errors.CampaignNotFound {
		t.Fatalf("err = %v, want CampaignNotFound", err)
	}
	if err := svc.Start(context.Background(), 999); err != errors.CampaignNotFound {
		t.Fatalf("Start on unknown campaign: err = %v", err)
	}
}

func TestCampaignGenerateQueueDelegatesToAudience(t *testing.T) {
	svc, _ := newCampaignFixture(campaignInState(5, model.CampaignStateDraft))

	created, err := svc.GenerateQueue(context.Background(), 5)
	if err != nil {
		t.Fatalf("GenerateQueue returned error: %v", err)
	}
	if created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}
}
