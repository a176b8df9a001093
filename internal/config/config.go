package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all unimail configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Sync      SyncConfig      `toml:"sync"`
	Pool      PoolConfig      `toml:"pool"`
	Gmail     OAuthConfig     `toml:"gmail"`
	Microsoft MicrosoftConfig `toml:"microsoft"`
	IMAP      IMAPConfig      `toml:"imap"`
	AI        AIConfig        `toml:"ai"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	ListenAddr string `toml:"listen_addr"`
	DBPath     string `toml:"db_path"`
}

// SyncConfig holds synchronization timing settings.
type SyncConfig struct {
	PrimaryInterval   string `toml:"primary_interval"`
	SecondaryInterval string `toml:"secondary_interval"`
	FetchTimeout      string `toml:"fetch_timeout"`
	FetchLimit        int    `toml:"fetch_limit"`
}

// PrimaryIntervalDuration parses the primary sync interval, falling back
// to 30s on bad input.
func (s SyncConfig) PrimaryIntervalDuration() time.Duration {
	return parseDuration(s.PrimaryInterval, 30*time.Second)
}

// SecondaryIntervalDuration parses the low-priority sync interval.
func (s SyncConfig) SecondaryIntervalDuration() time.Duration {
	return parseDuration(s.SecondaryInterval, 3*time.Minute)
}

// FetchTimeoutDuration parses the per-account fetch timeout.
func (s SyncConfig) FetchTimeoutDuration() time.Duration {
	return parseDuration(s.FetchTimeout, 30*time.Second)
}

// PoolConfig holds IMAP connection pool settings.
type PoolConfig struct {
	IdleTTL     string `toml:"idle_ttl"`
	SweepPeriod string `toml:"sweep_period"`
}

// IdleTTLDuration parses the idle session TTL, falling back to 5m.
func (p PoolConfig) IdleTTLDuration() time.Duration {
	return parseDuration(p.IdleTTL, 5*time.Minute)
}

// SweepPeriodDuration parses the eviction sweep period, falling back to 1m.
func (p PoolConfig) SweepPeriodDuration() time.Duration {
	return parseDuration(p.SweepPeriod, time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// OAuthConfig holds one provider's OAuth client credentials.
// Values can be overridden via environment variables.
type OAuthConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURL  string `toml:"redirect_url"`
}

// MicrosoftConfig is OAuthConfig plus the Azure AD tenant.
type MicrosoftConfig struct {
	OAuthConfig
	Tenant string `toml:"tenant"`
}

// IMAPConfig holds defaults applied to new IMAP-style accounts.
type IMAPConfig struct {
	DefaultPort int  `toml:"default_port"`
	UseTLS      bool `toml:"use_tls"`

	// Yahoo accounts are plain IMAP with a fixed, known host.
	YahooHost string `toml:"yahoo_host"`
	YahooPort int    `toml:"yahoo_port"`
}

// AIConfig points at the optional summarization service.
type AIConfig struct {
	BaseURL string `toml:"base_url"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			DBPath:     filepath.Join(DataDir(), "unimail.db"),
		},
		Sync: SyncConfig{
			PrimaryInterval:   "30s",
			SecondaryInterval: "3m",
			FetchTimeout:      "30s",
			FetchLimit:        50,
		},
		Pool: PoolConfig{
			IdleTTL:     "5m",
			SweepPeriod: "1m",
		},
		IMAP: IMAPConfig{
			DefaultPort: 993,
			UseTLS:      true,
			YahooHost:   "imap.mail.yahoo.com",
			YahooPort:   993,
		},
	}
}

// Load reads config from path, falling back to defaults when the path is
// empty or the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}
	cfg.applyEnv()
	return &cfg, nil
}

// applyEnv lets deployments inject secrets without a config file.
func (c *Config) applyEnv() {
	setFromEnv(&c.Gmail.ClientID, "UNIMAIL_GMAIL_CLIENT_ID")
	setFromEnv(&c.Gmail.ClientSecret, "UNIMAIL_GMAIL_CLIENT_SECRET")
	setFromEnv(&c.Gmail.RedirectURL, "UNIMAIL_GMAIL_REDIRECT_URL")
	setFromEnv(&c.Microsoft.ClientID, "UNIMAIL_MICROSOFT_CLIENT_ID")
	setFromEnv(&c.Microsoft.ClientSecret, "UNIMAIL_MICROSOFT_CLIENT_SECRET")
	setFromEnv(&c.Microsoft.RedirectURL, "UNIMAIL_MICROSOFT_REDIRECT_URL")
	setFromEnv(&c.Microsoft.Tenant, "UNIMAIL_MICROSOFT_TENANT")
	setFromEnv(&c.AI.BaseURL, "UNIMAIL_AI_BASE_URL")
	setFromEnv(&c.Server.ListenAddr, "UNIMAIL_LISTEN_ADDR")
	setFromEnv(&c.Server.DBPath, "UNIMAIL_DB_PATH")
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// ConfigDir returns the unimail config directory path.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "unimail")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "unimail")
}

// DataDir returns the unimail data directory path.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "unimail")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "unimail")
}
