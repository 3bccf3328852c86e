// Package store provides the SQLite-backed reading history and session
// cache.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mozmon/internal/coordinator"
	"mozmon/internal/mozillion"

	_ "modernc.org/sqlite" // register sqlite driver
)

// Store wraps the readings database.
type Store struct {
	db *sql.DB
}

// StoredReading is one historical reading row.
type StoredReading struct {
	Account         string
	TakenAt         time.Time
	Usage           *float64
	Total           *float64
	Remaining       *float64
	UsagePercentage *float64
	Unlimited       bool
	SimNumber       string
}

// Open opens or creates the database at the given path.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)")
	if err != nil {
		return nil, fmt.Errorf("opening store db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveReading appends a reading to the account's history.
func (s *Store) SaveReading(account string, r coordinator.Reading) error {
	rawJSON := ""
	if r.Raw != nil {
		if data, err := json.Marshal(r.Raw); err == nil {
			rawJSON = string(data)
		}
	}

	unlimited := 0
	if r.Unlimited {
		unlimited = 1
	}

	_, err := s.db.Exec(`INSERT INTO readings
		(account, taken_at, usage_gb, total_gb, remaining_gb, usage_percentage, unlimited, sim_number, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account,
		r.FetchedAt.UTC().Format(time.RFC3339),
		nullable(r.Usage),
		nullable(r.Total),
		nullable(r.Remaining),
		nullable(r.UsagePercentage),
		unlimited,
		r.SimNumber,
		rawJSON,
	)
	return err
}

// RecentReadings returns up to limit readings for the account, newest
// first.
func (s *Store) RecentReadings(account string, limit int) ([]StoredReading, error) {
	rows, err := s.db.Query(`SELECT account, taken_at, usage_gb, total_gb, remaining_gb,
		usage_percentage, unlimited, sim_number
		FROM readings WHERE account = ? ORDER BY taken_at DESC, id DESC LIMIT ?`,
		account, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []StoredReading
	for rows.Next() {
		var (
			r         StoredReading
			takenAt   string
			unlimited int
			usage     sql.NullFloat64
			total     sql.NullFloat64
			remaining sql.NullFloat64
			pct       sql.NullFloat64
			simNumber sql.NullString
		)
		if err := rows.Scan(&r.Account, &takenAt, &usage, &total, &remaining, &pct, &unlimited, &simNumber); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, takenAt); err == nil {
			r.TakenAt = t
		}
		r.Usage = fromNull(usage)
		r.Total = fromNull(total)
		r.Remaining = fromNull(remaining)
		r.UsagePercentage = fromNull(pct)
		r.Unlimited = unlimited != 0
		r.SimNumber = simNumber.String
		result = append(result, r)
	}
	return result, rows.Err()
}

// SaveSession caches a portal session for the account, replacing any prior
// one.
func (s *Store) SaveSession(account string, session mozillion.Session) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO sessions (account, cookie_header, xsrf_token, saved_at)
		VALUES (?, ?, ?, ?)`,
		account, session.CookieHeader, session.XSRFToken, time.Now().UTC().Format(time.RFC3339))
	return err
}

// GetSession returns the cached session for the account, if one exists.
func (s *Store) GetSession(account string) (mozillion.Session, bool, error) {
	var session mozillion.Session
	var xsrf sql.NullString
	err := s.db.QueryRow(`SELECT cookie_header, xsrf_token FROM sessions WHERE account = ?`, account).
		Scan(&session.CookieHeader, &xsrf)
	if errors.Is(err, sql.ErrNoRows) {
		return mozillion.Session{}, false, nil
	}
	if err != nil {
		return mozillion.Session{}, false, err
	}
	session.XSRFToken = xsrf.String
	return session, true, nil
}

// DeleteSession discards the cached session for the account.
func (s *Store) DeleteSession(account string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE account = ?`, account)
	return err
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
