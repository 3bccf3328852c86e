// Package daemon provides the long-running usage polling service.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"sync"
	"time"

	"mozmon/internal/coordinator"
	"mozmon/internal/store"
)

// Config controls the daemon runtime behavior.
type Config struct {
	Addr         string
	EventsBuffer int
	// Interval overrides every account's configured polling interval when
	// non-zero. Clamped to one minute.
	Interval time.Duration
	// Store receives successful readings and refreshed sessions; nil
	// disables persistence.
	Store *store.Store
}

// Instance is one monitored account handed to the daemon. Instances are
// fully independent: each owns its coordinator, session, and timer.
type Instance struct {
	Name        string
	Coordinator *coordinator.Coordinator
	Interval    time.Duration
}

// ReadingView is a reading shaped for the HTTP API: numeric values rounded
// to two decimals for display.
type ReadingView struct {
	Usage           *float64  `json:"usage"`
	Total           *float64  `json:"total"`
	Remaining       *float64  `json:"remaining"`
	UsagePercentage *float64  `json:"usage_percentage"`
	Unlimited       bool      `json:"unlimited"`
	SimNumber       string    `json:"sim_number"`
	Raw             any       `json:"raw,omitempty"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// AccountStatus is the per-account slice of /v1/status.
type AccountStatus struct {
	Name        string       `json:"name"`
	IntervalSec int          `json:"interval_sec"`
	LastPollAt  time.Time    `json:"last_poll_at"`
	PollCount   int64        `json:"poll_count"`
	Available   bool         `json:"available"`
	LastError   string       `json:"last_error,omitempty"`
	Reading     *ReadingView `json:"reading,omitempty"`
}

// Event is emitted for every completed poll cycle.
type Event struct {
	ID        int64        `json:"id"`
	Type      string       `json:"type"` // "reading" or "poll_error"
	Timestamp time.Time    `json:"timestamp"`
	Account   string       `json:"account"`
	Reading   *ReadingView `json:"reading,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time       `json:"started_at"`
	Accounts        []AccountStatus `json:"accounts"`
	EventCount      int             `json:"event_count"`
	SubscriberCount int             `json:"subscriber_count"`
}

type instanceState struct {
	name     string
	coord    *coordinator.Coordinator
	interval time.Duration

	// guarded by Service.mu
	lastPollAt time.Time
	pollCount  int64
	lastError  string
	available  bool
	reading    *ReadingView
}

// Service runs one poller per account plus the HTTP API.
type Service struct {
	cfg       Config
	instances []*instanceState

	mu          sync.RWMutex
	startedAt   time.Time
	nextEventID int64
	events      []Event

	nextSubID int
	subs      map[int]chan Event
}

// New returns a daemon service for the given instances.
func New(cfg Config, instances []Instance) *Service {
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8732"
	}
	if cfg.Interval != 0 && cfg.Interval < time.Minute {
		cfg.Interval = time.Minute
	}

	s := &Service{
		cfg:       cfg,
		startedAt: time.Now(),
		subs:      make(map[int]chan Event),
	}
	for _, inst := range instances {
		interval := inst.Interval
		if cfg.Interval != 0 {
			interval = cfg.Interval
		}
		if interval < time.Minute {
			interval = time.Minute
		}
		s.instances = append(s.instances, &instanceState{
			name:     inst.Name,
			coord:    inst.Coordinator,
			interval: interval,
		})
	}
	return s
}

// Run starts the HTTP endpoints and one polling loop per account, until ctx
// is canceled.
func (s *Service) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.HandleFunc("/v1/readings", s.handleReadings)
	mux.HandleFunc("/v1/events", s.handleEvents)
	mux.HandleFunc("/v1/stream", s.handleStream)

	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var wg sync.WaitGroup
	for _, inst := range s.instances {
		wg.Add(1)
		go func(inst *instanceState) {
			defer wg.Done()
			s.pollLoop(ctx, inst)
		}(inst)
	}

	select {
	case <-ctx.Done():
		wg.Wait()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("daemon http server: %w", err)
	}
}

// pollLoop performs the first refresh immediately, then ticks at the
// instance's interval. The refresh itself runs to completion before the
// next tick is consumed, so refreshes for one instance never overlap.
func (s *Service) pollLoop(ctx context.Context, inst *instanceState) {
	s.pollOnce(ctx, inst)

	ticker := time.NewTicker(inst.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx, inst)
		}
	}
}

func (s *Service) pollOnce(ctx context.Context, inst *instanceState) {
	reading, err := inst.coord.Refresh(ctx)
	now := time.Now()

	if err != nil {
		s.mu.Lock()
		inst.lastPollAt = now
		inst.pollCount++
		inst.lastError = err.Error()
		inst.available = false
		s.mu.Unlock()

		log.Printf("mozmon daemon: poll %s: %v", inst.name, err)
		s.publishEvent(Event{
			Type:      "poll_error",
			Timestamp: now,
			Account:   inst.name,
			Error:     err.Error(),
		})
		return
	}

	view := newReadingView(reading, true)

	s.mu.Lock()
	inst.lastPollAt = now
	inst.pollCount++
	inst.lastError = ""
	inst.available = true
	inst.reading = &view
	s.mu.Unlock()

	s.persist(inst, reading)
	s.publishEvent(Event{
		Type:      "reading",
		Timestamp: now,
		Account:   inst.name,
		Reading:   &view,
	})
}

// persist records the reading and the (possibly refreshed) session.
func (s *Service) persist(inst *instanceState, reading coordinator.Reading) {
	if s.cfg.Store == nil {
		return
	}
	if err := s.cfg.Store.SaveReading(inst.name, reading); err != nil {
		log.Printf("mozmon daemon: save reading %s: %v", inst.name, err)
	}
	if session, ok := inst.coord.Session(); ok {
		if err := s.cfg.Store.SaveSession(inst.name, session); err != nil {
			log.Printf("mozmon daemon: save session %s: %v", inst.name, err)
		}
	}
}

// newReadingView rounds a reading for display. includeRaw controls whether
// the raw carrier payload rides along.
func newReadingView(r coordinator.Reading, includeRaw bool) ReadingView {
	view := ReadingView{
		Usage:           round2(r.Usage),
		Total:           round2(r.Total),
		Remaining:       round2(r.Remaining),
		UsagePercentage: round2(r.UsagePercentage),
		Unlimited:       r.Unlimited,
		SimNumber:       r.SimNumber,
		FetchedAt:       r.FetchedAt,
	}
	if includeRaw {
		view.Raw = r.Raw
	}
	return view
}

func round2(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := math.Round(*v*100) / 100
	return &r
}

func (s *Service) snapshotStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := Status{
		StartedAt:       s.startedAt,
		EventCount:      len(s.events),
		SubscriberCount: len(s.subs),
	}
	for _, inst := range s.instances {
		status.Accounts = append(status.Accounts, AccountStatus{
			Name:        inst.name,
			IntervalSec: int(inst.interval.Seconds()),
			LastPollAt:  inst.lastPollAt,
			PollCount:   inst.pollCount,
			Available:   inst.available,
			LastError:   inst.lastError,
			Reading:     inst.reading,
		})
	}
	return status
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.snapshotStatus())
}

func (s *Service) handleReadings(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	readings := make(map[string]*ReadingView, len(s.instances))
	for _, inst := range s.instances {
		if inst.reading != nil {
			readings[inst.name] = inst.reading
		}
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(readings)
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(events)
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	// Send current readings immediately.
	s.mu.RLock()
	for _, inst := range s.instances {
		if inst.reading == nil {
			continue
		}
		writeSSE(w, Event{
			Type:      "reading",
			Timestamp: time.Now(),
			Account:   inst.name,
			Reading:   inst.reading,
		})
	}
	s.mu.RUnlock()
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.nextEventID++
	ev.ID = s.nextEventID
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Service) addSubscriber(ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}
