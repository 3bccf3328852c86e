package store

import (
	"path/filepath"
	"testing"
	"time"

	"mozmon/internal/coordinator"
	"mozmon/internal/mozillion"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "readings.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func f(v float64) *float64 { return &v }

func TestSaveAndRecentReadings(t *testing.T) {
	s := openTemp(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		r := coordinator.Reading{
			Usage:           f(float64(i)),
			Total:           f(10),
			Remaining:       f(10 - float64(i)),
			UsagePercentage: f(float64(i) * 10),
			SimNumber:       "0770",
			FetchedAt:       base.Add(time.Duration(i) * time.Hour),
			Raw:             map[string]any{"usedData": float64(i)},
		}
		if err := s.SaveReading("home", r); err != nil {
			t.Fatalf("SaveReading: %v", err)
		}
	}

	readings, err := s.RecentReadings("home", 2)
	if err != nil {
		t.Fatalf("RecentReadings: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("got %d readings, want 2", len(readings))
	}
	// Newest first.
	if readings[0].Usage == nil || *readings[0].Usage != 2 {
		t.Errorf("newest Usage = %v, want 2", readings[0].Usage)
	}
	if readings[0].SimNumber != "0770" {
		t.Errorf("SimNumber = %q", readings[0].SimNumber)
	}

	other, err := s.RecentReadings("work", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Errorf("got %d readings for other account, want 0", len(other))
	}
}

func TestSaveReading_NullFields(t *testing.T) {
	s := openTemp(t)

	r := coordinator.Reading{Unlimited: true, FetchedAt: time.Now()}
	if err := s.SaveReading("home", r); err != nil {
		t.Fatalf("SaveReading: %v", err)
	}

	readings, err := s.RecentReadings("home", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(readings) != 1 {
		t.Fatalf("got %d readings, want 1", len(readings))
	}
	got := readings[0]
	if got.Usage != nil || got.Total != nil || got.Remaining != nil || got.UsagePercentage != nil {
		t.Errorf("expected nil numeric fields, got %+v", got)
	}
	if !got.Unlimited {
		t.Error("Unlimited flag lost")
	}
}

func TestSessionCache(t *testing.T) {
	s := openTemp(t)

	if _, ok, err := s.GetSession("home"); err != nil || ok {
		t.Fatalf("GetSession on empty store = ok %v err %v", ok, err)
	}

	session := mozillion.Session{CookieHeader: "a=1; XSRF-TOKEN=x%3Dy", XSRFToken: "x=y"}
	if err := s.SaveSession("home", session); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	got, ok, err := s.GetSession("home")
	if err != nil || !ok {
		t.Fatalf("GetSession = ok %v err %v", ok, err)
	}
	if got != session {
		t.Errorf("session roundtrip mismatch: %+v", got)
	}

	// Replace.
	session2 := mozillion.Session{CookieHeader: "b=2"}
	if err := s.SaveSession("home", session2); err != nil {
		t.Fatal(err)
	}
	got, _, _ = s.GetSession("home")
	if got.CookieHeader != "b=2" {
		t.Errorf("session not replaced: %+v", got)
	}

	if err := s.DeleteSession("home"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.GetSession("home"); ok {
		t.Error("session still present after delete")
	}
}
