// Package coordinator owns the per-plan refresh cycle: session acquisition,
// usage fetching, and reading normalization.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"mozmon/internal/fieldpath"
	"mozmon/internal/mozillion"
)

// unlimitedKey is the payload field flagging an unlimited plan.
const unlimitedKey = "isUnlimited"

// maxFetchFailures is a recovery policy: when credentials are on hand, the
// held session is dropped after this many consecutive fetch failures so the
// next cycle re-authenticates. Without credentials there is nothing to
// recover with, so the session is kept.
const maxFetchFailures = 3

// UsageClient is the portal surface the coordinator depends on.
// *mozillion.Client satisfies it.
type UsageClient interface {
	Login(ctx context.Context, creds mozillion.Credentials) (mozillion.Session, error)
	FetchUsage(ctx context.Context, orderDetailID, simPlanID string, session mozillion.Session) (any, error)
}

// AuthMode selects how the coordinator authenticates: a credential login it
// can repeat, or a precaptured session it can only consume. Resolved once at
// construction; the re-login path exists only under Credentials.
type AuthMode interface{ authMode() }

// Credentials authenticates by logging in with email and password, with an
// optional TOTP second factor.
type Credentials struct {
	Email      string
	Password   string
	TOTPSecret string
	Origin     string
}

// PrecapturedSession authenticates with a cookie captured outside this
// process. There is no recovery once the portal invalidates it.
type PrecapturedSession struct {
	CookieHeader string
	XSRFToken    string
}

func (Credentials) authMode()        {}
func (PrecapturedSession) authMode() {}

// Reading is one normalized usage observation. Pointer fields are nil when
// the payload did not carry a usable value.
type Reading struct {
	Raw             any      `json:"raw"`
	Usage           *float64 `json:"usage"`
	Total           *float64 `json:"total"`
	Remaining       *float64 `json:"remaining"`
	UsagePercentage *float64 `json:"usage_percentage"`
	Unlimited       bool     `json:"unlimited"`
	SimNumber       string   `json:"sim_number"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// UpdateFailedError wraps any failure during a refresh cycle. The caller
// keeps the prior reading; the cycle is reported as failed.
type UpdateFailedError struct {
	Err error
}

func (e *UpdateFailedError) Error() string { return fmt.Sprintf("update failed: %v", e.Err) }
func (e *UpdateFailedError) Unwrap() error { return e.Err }

// Options configures a coordinator.
type Options struct {
	Plan         mozillion.PlanIdentity
	Auth         AuthMode
	UsageKey     string
	RemainingKey string
}

// Coordinator drives refreshes for one configured plan. One coordinator per
// plan instance; sessions are never shared across coordinators. Refresh
// holds a lock for the full cycle, so at most one refresh is in flight per
// instance.
type Coordinator struct {
	client       UsageClient
	plan         mozillion.PlanIdentity
	usageKey     string
	remainingKey string
	creds        *mozillion.Credentials // nil unless AuthMode is Credentials

	mu            sync.Mutex
	session       *mozillion.Session
	fetchFailures int
	last          *Reading
}

// New builds a coordinator, resolving the auth mode once.
func New(client UsageClient, opts Options) *Coordinator {
	c := &Coordinator{
		client:       client,
		plan:         opts.Plan,
		usageKey:     opts.UsageKey,
		remainingKey: opts.RemainingKey,
	}

	switch mode := opts.Auth.(type) {
	case Credentials:
		c.creds = &mozillion.Credentials{
			Email:      mode.Email,
			Password:   mode.Password,
			TOTPSecret: mode.TOTPSecret,
			Origin:     mode.Origin,
		}
	case PrecapturedSession:
		if mode.CookieHeader != "" {
			c.session = &mozillion.Session{
				CookieHeader: mode.CookieHeader,
				XSRFToken:    mode.XSRFToken,
			}
		}
	}

	return c
}

// Plan returns the plan identity this coordinator refreshes.
func (c *Coordinator) Plan() mozillion.PlanIdentity { return c.plan }

// Session returns the currently held session, if any.
func (c *Coordinator) Session() (mozillion.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return mozillion.Session{}, false
	}
	return *c.session, true
}

// SetSession installs a session obtained elsewhere (a cached login).
func (c *Coordinator) SetSession(session mozillion.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if session.CookieHeader == "" {
		return
	}
	s := session
	c.session = &s
	c.fetchFailures = 0
}

// LastReading returns the most recent successful reading, if any.
func (c *Coordinator) LastReading() (Reading, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Reading{}, false
	}
	return *c.last, true
}

// Refresh runs one full update cycle: log in if no session is held and
// credentials allow it, fetch usage, and normalize the payload. Any failure
// surfaces as UpdateFailedError and leaves the last good reading in place.
func (c *Coordinator) Refresh(ctx context.Context) (Reading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil && c.creds != nil {
		session, err := c.client.Login(ctx, *c.creds)
		if err != nil {
			return Reading{}, &UpdateFailedError{Err: err}
		}
		c.session = &session
		c.fetchFailures = 0
	}

	if c.session == nil {
		return Reading{}, &UpdateFailedError{Err: errors.New("no cookies available")}
	}

	raw, err := c.client.FetchUsage(ctx, c.plan.OrderDetailID, c.plan.SimPlanID, *c.session)
	if err != nil {
		c.fetchFailures++
		if c.creds != nil && c.fetchFailures >= maxFetchFailures {
			c.session = nil
			c.fetchFailures = 0
		}
		return Reading{}, &UpdateFailedError{Err: err}
	}
	c.fetchFailures = 0

	reading := Normalize(raw, c.usageKey, c.remainingKey, c.plan.SimNumber)
	c.last = &reading
	return reading, nil
}

// Normalize derives a Reading from a raw usage payload and the two
// configured field paths. remaining and percentage are derived only when
// both keys resolve to present values: remaining = total - usage and
// percentage = usage/total*100 (exactly 0 for a zero total) when both
// coerce to numbers, remaining = total when one is present but
// non-numeric. A key missing from the payload leaves both nil.
func Normalize(raw any, usageKey, remainingKey, simNumber string) Reading {
	usageRaw := fieldpath.Get(raw, usageKey)
	totalRaw := fieldpath.Get(raw, remainingKey)
	usage := toFloat(usageRaw)
	total := toFloat(totalRaw)
	unlimited := toBool(fieldpath.Get(raw, unlimitedKey))

	var remaining, percentage *float64
	if usageRaw != nil && totalRaw != nil {
		switch {
		case usage != nil && total != nil:
			r := *total - *usage
			remaining = &r
			var pct float64
			if *total > 0 {
				pct = *usage / *total * 100
			}
			percentage = &pct
		case total != nil:
			t := *total
			remaining = &t
		}
	}

	return Reading{
		Raw:             raw,
		Usage:           usage,
		Total:           total,
		Remaining:       remaining,
		UsagePercentage: percentage,
		Unlimited:       unlimited,
		SimNumber:       simNumber,
		FetchedAt:       time.Now(),
	}
}

// toFloat coerces the numeric representations the portal has been seen to
// use: JSON numbers, numeric strings, and integers.
func toFloat(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case int:
		f := float64(n)
		return &f
	case int64:
		f := float64(n)
		return &f
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return &f
		}
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return &f
		}
	}
	return nil
}

// toBool reads the unlimited flag by truthiness: the portal has shipped it
// as a bool, a 0/1 number, and a string.
func toBool(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case float64:
		return b != 0
	case int:
		return b != 0
	case int64:
		return b != 0
	case json.Number:
		if f, err := b.Float64(); err == nil {
			return f != 0
		}
		return b.String() != ""
	case string:
		return b != ""
	}
	return true
}
