package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"mozmon/internal/coordinator"
	"mozmon/internal/mozillion"
)

type scriptedClient struct {
	payload any
	err     error
}

func (c *scriptedClient) Login(_ context.Context, _ mozillion.Credentials) (mozillion.Session, error) {
	return mozillion.Session{CookieHeader: "a=1"}, nil
}

func (c *scriptedClient) FetchUsage(_ context.Context, _, _ string, _ mozillion.Session) (any, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.payload, nil
}

func newTestCoordinator(client coordinator.UsageClient) *coordinator.Coordinator {
	return coordinator.New(client, coordinator.Options{
		Plan:         mozillion.PlanIdentity{OrderDetailID: "od-1", SimPlanID: "sp-1", SimNumber: "0770"},
		Auth:         coordinator.PrecapturedSession{CookieHeader: "a=1"},
		UsageKey:     "usedData",
		RemainingKey: "totalData",
	})
}

func TestPublishEventRingBuffer(t *testing.T) {
	s := New(Config{EventsBuffer: 2}, nil)

	s.publishEvent(Event{Type: "reading"})
	s.publishEvent(Event{Type: "reading"})
	s.publishEvent(Event{Type: "poll_error"})

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.events) != 2 {
		t.Fatalf("events len = %d, want 2", len(s.events))
	}
	if s.events[0].ID != 2 || s.events[1].ID != 3 {
		t.Fatalf("events ring contains IDs [%d, %d], want [2, 3]", s.events[0].ID, s.events[1].ID)
	}
}

func TestPollOnce_Success(t *testing.T) {
	client := &scriptedClient{payload: map[string]any{
		"usedData":  3.456,
		"totalData": 10.0,
	}}
	s := New(Config{}, []Instance{{
		Name:        "home",
		Coordinator: newTestCoordinator(client),
		Interval:    time.Hour,
	}})

	s.pollOnce(context.Background(), s.instances[0])

	status := s.snapshotStatus()
	if len(status.Accounts) != 1 {
		t.Fatalf("got %d accounts", len(status.Accounts))
	}
	acct := status.Accounts[0]
	if !acct.Available {
		t.Errorf("Available = false, last error %q", acct.LastError)
	}
	if acct.PollCount != 1 {
		t.Errorf("PollCount = %d, want 1", acct.PollCount)
	}
	if acct.Reading == nil {
		t.Fatal("no reading published")
	}
	// Display values are rounded to two decimals.
	if acct.Reading.Usage == nil || *acct.Reading.Usage != 3.46 {
		t.Errorf("Usage = %v, want 3.46", acct.Reading.Usage)
	}
	if acct.Reading.UsagePercentage == nil || *acct.Reading.UsagePercentage != 34.56 {
		t.Errorf("UsagePercentage = %v, want 34.56", acct.Reading.UsagePercentage)
	}
}

func TestPollOnce_FailureRetainsReading(t *testing.T) {
	client := &scriptedClient{payload: map[string]any{"usedData": 1.0, "totalData": 2.0}}
	s := New(Config{}, []Instance{{
		Name:        "home",
		Coordinator: newTestCoordinator(client),
		Interval:    time.Hour,
	}})

	s.pollOnce(context.Background(), s.instances[0])
	client.err = errors.New("portal down")
	s.pollOnce(context.Background(), s.instances[0])

	acct := s.snapshotStatus().Accounts[0]
	if acct.Available {
		t.Error("Available = true after failed poll")
	}
	if acct.LastError == "" {
		t.Error("LastError empty after failed poll")
	}
	if acct.Reading == nil || acct.Reading.Usage == nil || *acct.Reading.Usage != 1.0 {
		t.Errorf("prior reading not retained: %+v", acct.Reading)
	}
	if acct.PollCount != 2 {
		t.Errorf("PollCount = %d, want 2", acct.PollCount)
	}
}

func TestHandleReadings(t *testing.T) {
	client := &scriptedClient{payload: map[string]any{"usedData": 1.0, "totalData": 4.0}}
	s := New(Config{}, []Instance{{
		Name:        "home",
		Coordinator: newTestCoordinator(client),
		Interval:    time.Hour,
	}})
	s.pollOnce(context.Background(), s.instances[0])

	rec := httptest.NewRecorder()
	s.handleReadings(rec, httptest.NewRequest("GET", "/v1/readings", nil))

	var readings map[string]ReadingView
	if err := json.Unmarshal(rec.Body.Bytes(), &readings); err != nil {
		t.Fatalf("decode: %v", err)
	}
	view, ok := readings["home"]
	if !ok {
		t.Fatalf("no reading for home: %v", readings)
	}
	if view.Remaining == nil || *view.Remaining != 3.0 {
		t.Errorf("Remaining = %v, want 3", view.Remaining)
	}
	if view.SimNumber != "0770" {
		t.Errorf("SimNumber = %q", view.SimNumber)
	}
}

func TestIntervalClamping(t *testing.T) {
	s := New(Config{}, []Instance{{
		Name:        "home",
		Coordinator: newTestCoordinator(&scriptedClient{}),
		Interval:    time.Second,
	}})
	if s.instances[0].interval != time.Minute {
		t.Errorf("interval = %v, want clamped to 1m", s.instances[0].interval)
	}

	override := New(Config{Interval: 5 * time.Second}, []Instance{{
		Name:        "home",
		Coordinator: newTestCoordinator(&scriptedClient{}),
		Interval:    time.Hour,
	}})
	if override.instances[0].interval != time.Minute {
		t.Errorf("override interval = %v, want clamped to 1m", override.instances[0].interval)
	}
}
