// Package feed reads the radio station's "now playing" endpoints.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"drumbot/internal/domain"
	logx "drumbot/pkg/logx"
)

// Values used when the feed omits a field.
const (
	DefaultArtist    = "VTRNK"
	DefaultTitle     = "Unknown"
	DefaultCoverPath = "/images/placeholder2.png"
)

// responses above this size are treated as malformed
const maxBody = 1 << 20

type Config struct {
	BaseURL   string
	TrackPath string
	CoverPath string
	Timeout   time.Duration
}

type Client struct {
	trackURL string
	coverURL string
	http     *http.Client
	log      logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("feed base url %q is not absolute", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		trackURL: base.JoinPath(orDefault(cfg.TrackPath, "/track")).String(),
		coverURL: base.JoinPath(orDefault(cfg.CoverPath, "/get_cover_path")).String(),
		http:     &http.Client{Timeout: timeout},
		log:      log,
	}
	log.Debug("feed client initialized", logx.String("track_url", c.trackURL), logx.String("cover_url", c.coverURL))
	return c, nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// FetchCurrentTrack reads the track endpoint. The payload is a JSON array of
// [key, value] pairs where position 0 is the file path, 1 the artist and 2
// the title; missing positions fall back to "", DefaultArtist, DefaultTitle.
func (c *Client) FetchCurrentTrack(ctx context.Context) (domain.TrackSnapshot, error) {
	var pairs []json.RawMessage
	if err := c.getJSON(ctx, c.trackURL, &pairs); err != nil {
		return domain.TrackSnapshot{}, err
	}
	snap := domain.TrackSnapshot{
		FilePath: pairValue(pairs, 0, ""),
		Artist:   pairValue(pairs, 1, DefaultArtist),
		Title:    pairValue(pairs, 2, DefaultTitle),
	}
	c.log.Trace("track fetched", logx.String("path", snap.FilePath), logx.String("title", snap.Title))
	return snap, nil
}

// FetchCoverPath reads {"cover_path": "..."}; a missing or empty value yields DefaultCoverPath.
func (c *Client) FetchCoverPath(ctx context.Context) (string, error) {
	var body struct {
		CoverPath *string `json:"cover_path"`
	}
	if err := c.getJSON(ctx, c.coverURL, &body); err != nil {
		return "", err
	}
	if body.CoverPath == nil || strings.TrimSpace(*body.CoverPath) == "" {
		return DefaultCoverPath, nil
	}
	return *body.CoverPath, nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", domain.ErrFeedUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return fmt.Errorf("%w: %s returned %d", domain.ErrFeedUnavailable, u, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", domain.ErrFeedUnavailable, u, err)
	}
	return nil
}

// pairValue returns the value half of pairs[i], or def when the pair is
// missing, malformed or null. Non-string values are rendered as JSON text.
func pairValue(pairs []json.RawMessage, i int, def string) string {
	if i >= len(pairs) {
		return def
	}
	var kv []json.RawMessage
	if err := json.Unmarshal(pairs[i], &kv); err != nil || len(kv) < 2 {
		return def
	}
	raw := kv[1]
	if string(raw) == "null" {
		return def
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
