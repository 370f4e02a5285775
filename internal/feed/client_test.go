package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"drumbot/internal/domain"
	logx "drumbot/pkg/logx"
)

func newServer(t *testing.T, track, cover string, status int) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/track", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(track))
	})
	mux.HandleFunc("/get_cover_path", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(cover))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, Timeout: time.Second}, logx.Nop())
	require.NoError(t, err)
	return c
}

func TestFetchCurrentTrack(t *testing.T) {
	c := newServer(t,
		`[["file","/srv/audio/radio_show/ep1.mp3"],["artist","DJ Test"],["title","Summer MIX 2024"]]`,
		`{"cover_path":"/images/ep1.jpg"}`, http.StatusOK)

	snap, err := c.FetchCurrentTrack(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.TrackSnapshot{
		FilePath: "/srv/audio/radio_show/ep1.mp3",
		Artist:   "DJ Test",
		Title:    "Summer MIX 2024",
	}, snap)

	cover, err := c.FetchCoverPath(context.Background())
	require.NoError(t, err)
	require.Equal(t, "/images/ep1.jpg", cover)
}

func TestFetchCurrentTrackFallbacks(t *testing.T) {
	tests := []struct {
		name string
		body string
		want domain.TrackSnapshot
	}{
		{"empty", `[]`, domain.TrackSnapshot{Artist: DefaultArtist, Title: DefaultTitle}},
		{"path only", `[["file","/a.mp3"]]`, domain.TrackSnapshot{FilePath: "/a.mp3", Artist: DefaultArtist, Title: DefaultTitle}},
		{"null artist", `[["file","/a.mp3"],["artist",null],["title","T"]]`, domain.TrackSnapshot{FilePath: "/a.mp3", Artist: DefaultArtist, Title: "T"}},
		{"numeric title", `[["file","/a.mp3"],["artist","A"],["title",42]]`, domain.TrackSnapshot{FilePath: "/a.mp3", Artist: "A", Title: "42"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newServer(t, tt.body, `{}`, http.StatusOK)
			got, err := c.FetchCurrentTrack(context.Background())
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestFetchCoverPathDefault(t *testing.T) {
	c := newServer(t, `[]`, `{"other":1}`, http.StatusOK)
	cover, err := c.FetchCoverPath(context.Background())
	require.NoError(t, err)
	require.Equal(t, DefaultCoverPath, cover)
}

func TestFeedErrorsAreUnavailable(t *testing.T) {
	c := newServer(t, `oops`, `oops`, http.StatusBadGateway)
	_, err := c.FetchCurrentTrack(context.Background())
	require.True(t, errors.Is(err, domain.ErrFeedUnavailable))
	_, err = c.FetchCoverPath(context.Background())
	require.True(t, errors.Is(err, domain.ErrFeedUnavailable))

	c = newServer(t, `{"not":"an array"}`, `[]`, http.StatusOK)
	_, err = c.FetchCurrentTrack(context.Background())
	require.ErrorIs(t, err, domain.ErrFeedUnavailable)
}

func TestNewRejectsRelativeBase(t *testing.T) {
	_, err := New(Config{BaseURL: "vtrnk.online"}, logx.Nop())
	require.Error(t, err)
}
