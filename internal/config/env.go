package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment overrides. They win over the file so secrets can stay out of it.
const (
	EnvToken      = "BOT_TOKEN"
	EnvStorageDSN = "DRUMBOT_STORAGE_DSN"
	EnvLogLevel   = "DRUMBOT_LOG_LEVEL"
)

const (
	DefaultFeedBaseURL   = "https://vtrnk.online"
	DefaultSiteURL       = "https://vtrnk.online"
	DefaultBotURL        = "https://t.me/drum_n_bot"
	DefaultMiniAppURL    = "https://vtrnk.online/telegram-mini-app.html"
	DefaultFallbackCover = "https://vtrnk.online/images/placeholder2.png"
)

// LoadDotEnv reads a .env file next to the config (if any), then one in the
// working directory. Existing environment variables are never overwritten.
func LoadDotEnv(cfgPath string) {
	if cfgPath != "" {
		_ = godotenv.Load(filepath.Join(filepath.Dir(cfgPath), ".env"))
	}
	_ = godotenv.Load()
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// ApplyEnv overlays environment overrides onto cfg.
func ApplyEnv(cfg *Config) {
	cfg.Telegram.Token = getEnv(EnvToken, cfg.Telegram.Token)
	cfg.Storage.DSN = getEnv(EnvStorageDSN, cfg.Storage.DSN)
	cfg.Logging.Level = getEnv(EnvLogLevel, cfg.Logging.Level)
}

// ApplyDefaults fills every empty field with its default.
func ApplyDefaults(cfg *Config) {
	def := func(p *string, v string) {
		if strings.TrimSpace(*p) == "" {
			*p = v
		}
	}
	def(&cfg.Telegram.PollTimeout, "10s")
	def(&cfg.Logging.Level, "info")
	def(&cfg.Logging.Telegram.MinLevel, "warn")
	if cfg.Logging.Telegram.RatePerSec <= 0 {
		cfg.Logging.Telegram.RatePerSec = 1
	}

	def(&cfg.Feed.BaseURL, DefaultFeedBaseURL)
	def(&cfg.Feed.TrackPath, "/track")
	def(&cfg.Feed.CoverPath, "/get_cover_path")
	def(&cfg.Feed.Timeout, "15s")

	def(&cfg.Detector.Interval, "60s")

	def(&cfg.Announce.BaseDir, ".")
	def(&cfg.Announce.SiteURL, DefaultSiteURL)
	def(&cfg.Announce.BotURL, DefaultBotURL)
	def(&cfg.Announce.MiniAppURL, DefaultMiniAppURL)
	def(&cfg.Announce.FallbackCoverURL, DefaultFallbackCover)
	def(&cfg.Announce.SendTimeout, "20s")
	if cfg.Announce.RatePerSec <= 0 {
		cfg.Announce.RatePerSec = 20
	}

	def(&cfg.Scheduler.PostTimeout, "60s")

	def(&cfg.Storage.Driver, "sqlite")
	if cfg.Storage.Driver == "sqlite" {
		def(&cfg.Storage.Path, "./data/channels.db")
	}
}

// Validate checks a config after defaults were applied.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, fmt.Errorf("telegram.token is required (or set %s)", EnvToken))
	}
	if g := strings.TrimSpace(c.Telegram.GroupLog); g != "" {
		if _, err := strconv.ParseInt(g, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("telegram.group_log: %q is not a chat id", g))
		}
	}

	for path, raw := range map[string]string{
		"telegram.poll_timeout":  c.Telegram.PollTimeout,
		"feed.timeout":           c.Feed.Timeout,
		"announce.send_timeout":  c.Announce.SendTimeout,
		"scheduler.post_timeout": c.Scheduler.PostTimeout,
		"storage.busy_timeout":   c.Storage.BusyTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if d, err := ParseDurationField("detector.interval", c.Detector.Interval); err != nil {
		errs = append(errs, err)
	} else if d < time.Second {
		errs = append(errs, errors.New("detector.interval must be at least 1s"))
	}

	if strings.TrimSpace(c.Detector.ShowPrefix) == "" {
		errs = append(errs, errors.New("detector.show_prefix is required"))
	}
	if u, err := url.Parse(c.Feed.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("feed.base_url: %q is not an absolute URL", c.Feed.BaseURL))
	}
	if c.Scheduler.Timezone != "" {
		if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}

	switch c.Storage.Driver {
	case "sqlite":
		if strings.TrimSpace(c.Storage.Path) == "" {
			errs = append(errs, errors.New("storage.path is required for sqlite"))
		}
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, fmt.Errorf("storage.dsn is required for postgres (or set %s)", EnvStorageDSN))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	return errors.Join(errs...)
}

// GroupLogID returns the operator chat id, 0 when unset.
func (c *Config) GroupLogID() int64 {
	id, _ := strconv.ParseInt(strings.TrimSpace(c.Telegram.GroupLog), 10, 64)
	return id
}

// Location resolves scheduler.timezone, falling back to local time.
func (c *Config) Location() *time.Location {
	if c.Scheduler.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
