package app

import (
	"strings"
	"time"

	"drumbot/internal/announce"
	"drumbot/internal/config"
	"drumbot/internal/detector"
	"drumbot/internal/feed"
	"drumbot/internal/storage"
	telegram "drumbot/internal/transport/telegram/adapter"
	logx "drumbot/pkg/logx"
)

// The mappers below turn validated config sections into component configs.
// Durations were checked by Config.Validate, so config.Dur never falls back
// on a malformed value here.

func mapTelegramConfig(cfg *config.Config) telegram.Config {
	return telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: config.Dur(cfg.Telegram.PollTimeout, 10*time.Second),
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		DSN:         cfg.Storage.DSN,
		BusyTimeout: config.Dur(cfg.Storage.BusyTimeout, 5*time.Second),
	}
}

func mapFeedConfig(cfg *config.Config) feed.Config {
	return feed.Config{
		BaseURL:   cfg.Feed.BaseURL,
		TrackPath: cfg.Feed.TrackPath,
		CoverPath: cfg.Feed.CoverPath,
		Timeout:   config.Dur(cfg.Feed.Timeout, 15*time.Second),
	}
}

func mapAnnounceConfig(cfg *config.Config) announce.Config {
	a := cfg.Announce
	return announce.Config{
		BaseDir:          a.BaseDir,
		SiteURL:          a.SiteURL,
		BotURL:           a.BotURL,
		MiniAppURL:       a.MiniAppURL,
		FallbackCoverURL: a.FallbackCoverURL,
		RatePerSec:       a.RatePerSec,
		SendTimeout:      config.Dur(a.SendTimeout, 20*time.Second),
		PersistDedup:     a.PersistDedup,
	}
}

func mapDetectorConfig(cfg *config.Config) detector.Config {
	return detector.Config{
		Interval:   config.Dur(cfg.Detector.Interval, time.Minute),
		ShowPrefix: cfg.Detector.ShowPrefix,
	}
}
