package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"drumbot/internal/config"
)

func TestMappersUseConfiguredValues(t *testing.T) {
	cfg := &config.Config{
		Telegram: config.TelegramConfig{Token: "1:x", PollTimeout: "5s"},
		Feed:     config.FeedConfig{BaseURL: "https://radio.test", Timeout: "3s"},
		Detector: config.DetectorConfig{Interval: "30s", ShowPrefix: "/srv/audio/radio_show"},
		Announce: config.AnnounceConfig{SendTimeout: "7s", PersistDedup: true},
		Storage:  config.StorageConfig{Driver: " SQLite ", Path: "./data/x.db"},
	}
	config.ApplyDefaults(cfg)

	require.Equal(t, 5*time.Second, mapTelegramConfig(cfg).PollTimeout)

	fc := mapFeedConfig(cfg)
	require.Equal(t, "/track", fc.TrackPath)
	require.Equal(t, 3*time.Second, fc.Timeout)

	dc := mapDetectorConfig(cfg)
	require.Equal(t, 30*time.Second, dc.Interval)
	require.Equal(t, "/srv/audio/radio_show", dc.ShowPrefix)

	ac := mapAnnounceConfig(cfg)
	require.Equal(t, 7*time.Second, ac.SendTimeout)
	require.Equal(t, 20, ac.RatePerSec)
	require.True(t, ac.PersistDedup)

	sc := mapStorageConfig(cfg)
	require.Equal(t, "sqlite", sc.Driver)
	require.Equal(t, 5*time.Second, sc.BusyTimeout)

	lc := mapLogConfig(cfg)
	require.Equal(t, "info", lc.Level)
	require.Equal(t, "warn", lc.Telegram.MinLevel)
}
