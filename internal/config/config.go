// Package config loads and persists mozmon configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults for account settings.
const (
	DefaultOrigin       = "https://www.mozillion.com"
	DefaultUsageKey     = "usedData"
	DefaultRemainingKey = "totalData"

	DefaultScanInterval = 86400 // seconds
	MinScanInterval     = 60
)

// Config holds all mozmon configuration.
type Config struct {
	General  GeneralConfig `toml:"general"`
	Daemon   DaemonConfig  `toml:"daemon"`
	Accounts []Account     `toml:"accounts"`
}

// GeneralConfig holds general preferences.
type GeneralConfig struct {
	// BaseURL overrides the portal endpoint. Only useful for testing
	// against a stub portal; empty means production.
	BaseURL string `toml:"base_url,omitempty"`
}

// DaemonConfig holds daemon defaults, overridable by flags.
type DaemonConfig struct {
	Addr         string `toml:"addr,omitempty"`
	EventsBuffer int    `toml:"events_buffer,omitempty"`
}

// Account configures one monitored SIM plan. Either email+password (with
// optional TOTP secret) or a precaptured session cookie must be present.
type Account struct {
	Name          string `toml:"name"`
	Email         string `toml:"email,omitempty"`
	Password      string `toml:"password,omitempty"`
	TOTPSecret    string `toml:"totp_secret,omitempty"`
	Origin        string `toml:"origin,omitempty"`
	SessionCookie string `toml:"session_cookie,omitempty"`
	XSRFToken     string `toml:"xsrf_token,omitempty"`
	OrderDetailID string `toml:"order_detail_id"`
	SimPlanID     string `toml:"sim_plan_id"`
	SimNumber     string `toml:"sim_number,omitempty"`
	UsageKey      string `toml:"usage_key,omitempty"`
	RemainingKey  string `toml:"remaining_key,omitempty"`
	ScanInterval  int    `toml:"scan_interval,omitempty"` // seconds
}

// HasCredentials reports whether the account can perform a fresh login.
func (a Account) HasCredentials() bool {
	return a.Email != "" && a.Password != ""
}

// DisplayName returns the label used for this account in output.
func (a Account) DisplayName() string {
	switch {
	case a.Name != "":
		return a.Name
	case a.SimNumber != "":
		return a.SimNumber
	default:
		return "SIM Plan " + a.SimPlanID
	}
}

// EffectiveOrigin returns the configured origin or the default.
func (a Account) EffectiveOrigin() string {
	if a.Origin != "" {
		return a.Origin
	}
	return DefaultOrigin
}

// EffectiveUsageKey returns the configured usage field path or the default.
func (a Account) EffectiveUsageKey() string {
	if a.UsageKey != "" {
		return a.UsageKey
	}
	return DefaultUsageKey
}

// EffectiveRemainingKey returns the configured total field path or the
// default. The key is named for the portal's payload field, which reports
// the plan total.
func (a Account) EffectiveRemainingKey() string {
	if a.RemainingKey != "" {
		return a.RemainingKey
	}
	return DefaultRemainingKey
}

// Interval returns the polling interval, clamped to the 60-second minimum.
func (a Account) Interval() time.Duration {
	secs := a.ScanInterval
	if secs == 0 {
		secs = DefaultScanInterval
	}
	if secs < MinScanInterval {
		secs = MinScanInterval
	}
	return time.Duration(secs) * time.Second
}

// Validate checks required fields and uniqueness of order_detail_id.
func (c Config) Validate() error {
	seen := make(map[string]string, len(c.Accounts))
	for _, a := range c.Accounts {
		label := a.DisplayName()
		if a.OrderDetailID == "" {
			return fmt.Errorf("account %q: order_detail_id is required", label)
		}
		if a.SimPlanID == "" {
			return fmt.Errorf("account %q: sim_plan_id is required", label)
		}
		if !a.HasCredentials() && a.SessionCookie == "" {
			return fmt.Errorf("account %q: either email+password or session_cookie is required", label)
		}
		if prev, dup := seen[a.OrderDetailID]; dup {
			return fmt.Errorf("accounts %q and %q share order_detail_id %s", prev, label, a.OrderDetailID)
		}
		seen[a.OrderDetailID] = label
	}
	return nil
}

// FindAccount locates an account by name, sim number, or order detail ID.
// An empty query selects the sole configured account.
func (c Config) FindAccount(query string) (Account, bool) {
	if query == "" {
		if len(c.Accounts) == 1 {
			return c.Accounts[0], true
		}
		return Account{}, false
	}
	for _, a := range c.Accounts {
		if a.Name == query || a.SimNumber == query || a.OrderDetailID == query {
			return a, true
		}
	}
	return Account{}, false
}

// UpsertAccount replaces the account with the same order_detail_id or
// appends a new one.
func (c *Config) UpsertAccount(account Account) {
	for i, a := range c.Accounts {
		if a.OrderDetailID == account.OrderDetailID {
			c.Accounts[i] = account
			return
		}
	}
	c.Accounts = append(c.Accounts, account)
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mozmon")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "mozmon")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// CacheDir returns the XDG-compliant cache directory.
func CacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "mozmon")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "mozmon")
}

// StorePath returns the full path to the readings database.
func StorePath() string {
	return filepath.Join(CacheDir(), "readings.db")
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (Config, error) {
	var cfg Config

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to disk. The file holds portal credentials, so it
// is created user-readable only.
func Save(cfg Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(ConfigPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}
