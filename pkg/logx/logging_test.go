package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	kit "drumbot/internal/transport"
)

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "test"))
	log.Info("hello", Int64("dest", -100), Err(nil))

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	require.Equal(t, "hello", m["message"])
	require.Equal(t, "test", m["comp"])
	require.EqualValues(t, -100, m["dest"])
	require.NotContains(t, m, "err")
	require.Contains(t, m["caller"], "logging_test.go:")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("dropped")
	require.Zero(t, buf.Len())
	require.False(t, log.Enabled(LevelInfo))
	require.True(t, log.Enabled(LevelError))
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var log Logger
	require.True(t, log.IsZero())
	log.Error("nothing happens")
	require.False(t, Nop().IsZero())
}

type captureSender struct {
	mu   sync.Mutex
	sent []string
}

func (c *captureSender) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	c.sent = append(c.sent, text)
	c.mu.Unlock()
	return kit.MessageRef{}, nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func TestTelegramSinkRespectsMinLevel(t *testing.T) {
	snd := &captureSender{}
	svc, log := New(Config{Level: "debug", Telegram: TelegramConfig{MinLevel: "warn", RatePerSec: 10}}, snd)
	svc.SetTelegramTarget(-1001, 0)
	svc.Apply(Config{Level: "debug", Telegram: TelegramConfig{Enabled: true, MinLevel: "warn", RatePerSec: 10}})
	t.Cleanup(func() { _ = svc.Close() })

	log.Info("below threshold")
	log.Warn("feed down", String("url", "https://example.test/track"))

	require.Eventually(t, func() bool { return snd.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	snd.mu.Lock()
	defer snd.mu.Unlock()
	require.Contains(t, snd.sent[0], "[WARN] feed down")
	require.Contains(t, snd.sent[0], "- url=https://example.test/track")
}

func TestFormatTelegramLineNonJSON(t *testing.T) {
	require.Equal(t, "plain text", formatTelegramLine([]byte("  plain text \n")))
}
