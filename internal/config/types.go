package config

// Config is the on-disk configuration. All durations are Go duration strings
// ("15s", "1m"); empty means the default.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Feed      FeedConfig      `json:"feed"`
	Detector  DetectorConfig  `json:"detector"`
	Announce  AnnounceConfig  `json:"announce"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   StorageConfig   `json:"storage"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// GroupLog is the operator chat id for the Telegram log sink ("" disables it).
	GroupLog    string `json:"group_log"`
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// FeedConfig points at the station's "now playing" endpoints.
type FeedConfig struct {
	BaseURL   string `json:"base_url"`
	TrackPath string `json:"track_path"`
	CoverPath string `json:"cover_path"`
	Timeout   string `json:"timeout"`
}

type DetectorConfig struct {
	Interval string `json:"interval"`
	// ShowPrefix marks show content: a track whose file path starts with it is a show.
	ShowPrefix string `json:"show_prefix"`
}

type AnnounceConfig struct {
	// BaseDir is the station's web root; cover paths are resolved under it.
	BaseDir          string `json:"base_dir"`
	SiteURL          string `json:"site_url"`
	BotURL           string `json:"bot_url"`
	MiniAppURL       string `json:"mini_app_url"`
	FallbackCoverURL string `json:"fallback_cover_url"`
	RatePerSec       int    `json:"rate_per_sec"`
	SendTimeout      string `json:"send_timeout"`
	// PersistDedup keeps "last announced" markers across restarts.
	PersistDedup bool `json:"persist_dedup"`
}

type SchedulerConfig struct {
	// Timezone for daily posts (IANA name). Empty means local time.
	Timezone    string `json:"timezone,omitempty"`
	PostTimeout string `json:"post_timeout"`
}

// StorageConfig selects the subscription store.
//
//	"storage": { "driver": "sqlite", "path": "./data/channels.db" }
//	"storage": { "driver": "postgres", "dsn": "host=... dbname=drumbot" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}
