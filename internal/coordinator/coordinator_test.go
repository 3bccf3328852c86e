package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"mozmon/internal/mozillion"
)

// fakeClient scripts the portal responses for coordinator tests.
type fakeClient struct {
	loginErr   error
	session    mozillion.Session
	fetchErr   error
	payload    any
	loginCalls int
	fetchCalls int
	lastCookie string
}

func (f *fakeClient) Login(_ context.Context, _ mozillion.Credentials) (mozillion.Session, error) {
	f.loginCalls++
	if f.loginErr != nil {
		return mozillion.Session{}, f.loginErr
	}
	return f.session, nil
}

func (f *fakeClient) FetchUsage(_ context.Context, _, _ string, session mozillion.Session) (any, error) {
	f.fetchCalls++
	f.lastCookie = session.CookieHeader
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.payload, nil
}

func payload(t *testing.T, raw string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatal(err)
	}
	return v
}

func testPlan() mozillion.PlanIdentity {
	return mozillion.PlanIdentity{OrderDetailID: "od-1", SimPlanID: "sp-1", SimNumber: "0770"}
}

func TestRefresh_LoginThenFetch(t *testing.T) {
	client := &fakeClient{
		session: mozillion.Session{CookieHeader: "a=1"},
		payload: payload(t, `{"usedData":3.5,"totalData":10.0,"isUnlimited":false}`),
	}
	c := New(client, Options{
		Plan:         testPlan(),
		Auth:         Credentials{Email: "a@b.c", Password: "p"},
		UsageKey:     "usedData",
		RemainingKey: "totalData",
	})

	reading, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if client.loginCalls != 1 {
		t.Errorf("loginCalls = %d, want 1", client.loginCalls)
	}
	if client.lastCookie != "a=1" {
		t.Errorf("fetch used cookie %q", client.lastCookie)
	}
	if reading.Usage == nil || *reading.Usage != 3.5 {
		t.Errorf("Usage = %v, want 3.5", reading.Usage)
	}
	if reading.Total == nil || *reading.Total != 10.0 {
		t.Errorf("Total = %v, want 10", reading.Total)
	}
	if reading.Remaining == nil || *reading.Remaining != 6.5 {
		t.Errorf("Remaining = %v, want 6.5", reading.Remaining)
	}
	if reading.UsagePercentage == nil || math.Abs(*reading.UsagePercentage-35.0) > 1e-9 {
		t.Errorf("UsagePercentage = %v, want 35", reading.UsagePercentage)
	}
	if reading.Unlimited {
		t.Error("Unlimited = true, want false")
	}
	if reading.SimNumber != "0770" {
		t.Errorf("SimNumber = %q", reading.SimNumber)
	}

	// Session is retained: a second refresh must not log in again.
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	if client.loginCalls != 1 {
		t.Errorf("loginCalls after second refresh = %d, want 1", client.loginCalls)
	}
}

func TestRefresh_NoSessionNoCredentials(t *testing.T) {
	client := &fakeClient{}
	c := New(client, Options{Plan: testPlan(), Auth: PrecapturedSession{}})

	_, err := c.Refresh(context.Background())

	var failed *UpdateFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("err = %v, want UpdateFailedError", err)
	}
	if client.loginCalls != 0 || client.fetchCalls != 0 {
		t.Errorf("network calls made: login=%d fetch=%d, want none", client.loginCalls, client.fetchCalls)
	}
}

func TestRefresh_LoginFailure(t *testing.T) {
	client := &fakeClient{loginErr: &mozillion.AuthError{Step: "no csrf token"}}
	c := New(client, Options{Plan: testPlan(), Auth: Credentials{Email: "a@b.c", Password: "p"}})

	_, err := c.Refresh(context.Background())

	var failed *UpdateFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("err = %v, want UpdateFailedError", err)
	}
	var authErr *mozillion.AuthError
	if !errors.As(err, &authErr) {
		t.Errorf("cause %v does not unwrap to AuthError", err)
	}
	if client.fetchCalls != 0 {
		t.Errorf("fetchCalls = %d, want 0", client.fetchCalls)
	}
}

func TestRefresh_FetchFailureKeepsSessionAndLastReading(t *testing.T) {
	client := &fakeClient{
		payload: payload(t, `{"usedData":1,"totalData":2}`),
	}
	c := New(client, Options{
		Plan:         testPlan(),
		Auth:         PrecapturedSession{CookieHeader: "a=1"},
		UsageKey:     "usedData",
		RemainingKey: "totalData",
	})

	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	client.fetchErr = &mozillion.FetchError{Op: "fetching usage status"}
	_, err := c.Refresh(context.Background())
	var failed *UpdateFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("err = %v, want UpdateFailedError", err)
	}

	// Session survives the failure for the next cycle.
	if _, ok := c.Session(); !ok {
		t.Error("session cleared on fetch failure")
	}
	// Last good reading is retained.
	last, ok := c.LastReading()
	if !ok {
		t.Fatal("last reading lost after failed cycle")
	}
	if last.Usage == nil || *last.Usage != 1 {
		t.Errorf("retained Usage = %v, want 1", last.Usage)
	}
}

func TestRefresh_SessionDroppedAfterRepeatedFetchFailures(t *testing.T) {
	client := &fakeClient{
		session:  mozillion.Session{CookieHeader: "fresh=1"},
		fetchErr: &mozillion.FetchError{Op: "fetching usage status"},
	}
	c := New(client, Options{Plan: testPlan(), Auth: Credentials{Email: "a@b.c", Password: "p"}})

	for i := 0; i < maxFetchFailures; i++ {
		if _, err := c.Refresh(context.Background()); err == nil {
			t.Fatal("expected failure")
		}
	}

	if _, ok := c.Session(); ok {
		t.Fatal("session still held after repeated fetch failures with credentials")
	}

	// Next cycle re-authenticates.
	client.payload = payload(t, `{"usedData":1,"totalData":2}`)
	client.fetchErr = nil
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh after recovery: %v", err)
	}
	if client.loginCalls != 2 {
		t.Errorf("loginCalls = %d, want 2", client.loginCalls)
	}
}

func TestRefresh_PrecapturedSessionNeverRelogsIn(t *testing.T) {
	client := &fakeClient{fetchErr: &mozillion.FetchError{Op: "fetching usage status"}}
	c := New(client, Options{Plan: testPlan(), Auth: PrecapturedSession{CookieHeader: "a=1"}})

	for i := 0; i < maxFetchFailures+1; i++ {
		if _, err := c.Refresh(context.Background()); err == nil {
			t.Fatal("expected failure")
		}
	}

	if client.loginCalls != 0 {
		t.Errorf("loginCalls = %d, want 0", client.loginCalls)
	}
	if _, ok := c.Session(); !ok {
		t.Error("precaptured session dropped; nothing could replace it")
	}
}

func TestNormalize_Derivation(t *testing.T) {
	cases := []struct {
		name          string
		raw           string
		wantUsage     *float64
		wantTotal     *float64
		wantRemaining *float64
		wantPct       *float64
		wantUnlimited bool
	}{
		{
			name:          "typical",
			raw:           `{"usedData":3.5,"totalData":10.0}`,
			wantUsage:     f(3.5),
			wantTotal:     f(10.0),
			wantRemaining: f(6.5),
			wantPct:       f(35.0),
		},
		{
			name:          "zero total",
			raw:           `{"usedData":0.0,"totalData":0.0}`,
			wantUsage:     f(0),
			wantTotal:     f(0),
			wantRemaining: f(0),
			wantPct:       f(0),
		},
		{
			name:      "missing total",
			raw:       `{"usedData":3.5}`,
			wantUsage: f(3.5),
		},
		{
			name:      "missing usage leaves remaining unset",
			raw:       `{"totalData":10.0}`,
			wantTotal: f(10.0),
		},
		{
			name:          "string numerics",
			raw:           `{"usedData":"3.5","totalData":"10"}`,
			wantUsage:     f(3.5),
			wantTotal:     f(10),
			wantRemaining: f(6.5),
			wantPct:       f(35),
		},
		{
			name:          "non-numeric usage falls back to total",
			raw:           `{"usedData":"lots","totalData":10.0}`,
			wantTotal:     f(10.0),
			wantRemaining: f(10.0),
		},
		{
			name:          "unlimited flag",
			raw:           `{"usedData":1,"totalData":2,"isUnlimited":true}`,
			wantUsage:     f(1),
			wantTotal:     f(2),
			wantRemaining: f(1),
			wantPct:       f(50),
			wantUnlimited: true,
		},
		{
			name:          "unlimited as number",
			raw:           `{"usedData":1,"totalData":2,"isUnlimited":1}`,
			wantUsage:     f(1),
			wantTotal:     f(2),
			wantRemaining: f(1),
			wantPct:       f(50),
			wantUnlimited: true,
		},
		{
			name:          "unlimited as string",
			raw:           `{"usedData":1,"totalData":2,"isUnlimited":"1"}`,
			wantUsage:     f(1),
			wantTotal:     f(2),
			wantRemaining: f(1),
			wantPct:       f(50),
			wantUnlimited: true,
		},
		{
			name:          "unlimited zero is off",
			raw:           `{"usedData":1,"totalData":2,"isUnlimited":0}`,
			wantUsage:     f(1),
			wantTotal:     f(2),
			wantRemaining: f(1),
			wantPct:       f(50),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := Normalize(payload(t, tc.raw), "usedData", "totalData", "0770")
			checkFloat(t, "Usage", r.Usage, tc.wantUsage)
			checkFloat(t, "Total", r.Total, tc.wantTotal)
			checkFloat(t, "Remaining", r.Remaining, tc.wantRemaining)
			checkFloat(t, "UsagePercentage", r.UsagePercentage, tc.wantPct)
			if r.Unlimited != tc.wantUnlimited {
				t.Errorf("Unlimited = %v, want %v", r.Unlimited, tc.wantUnlimited)
			}
		})
	}
}

func TestNormalize_DottedPaths(t *testing.T) {
	raw := payload(t, `{"data":{"used":2.0,"allowance":8.0}}`)
	r := Normalize(raw, "data.used", "data.allowance", "")

	checkFloat(t, "Usage", r.Usage, f(2.0))
	checkFloat(t, "Total", r.Total, f(8.0))
	checkFloat(t, "Remaining", r.Remaining, f(6.0))
	checkFloat(t, "UsagePercentage", r.UsagePercentage, f(25.0))
}

func f(v float64) *float64 { return &v }

func checkFloat(t *testing.T, name string, got, want *float64) {
	t.Helper()
	switch {
	case want == nil && got != nil:
		t.Errorf("%s = %v, want nil", name, *got)
	case want != nil && got == nil:
		t.Errorf("%s = nil, want %v", name, *want)
	case want != nil && got != nil && math.Abs(*got-*want) > 1e-9:
		t.Errorf("%s = %v, want %v", name, *got, *want)
	}
}
