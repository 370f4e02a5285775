package domain

import (
	"strings"
	"time"
)

// TrackSnapshot is one read of the "now playing" feed.
type TrackSnapshot struct {
	FilePath string
	Artist   string
	Title    string
}

// IsShow reports whether the snapshot is show content, i.e. its file lives under prefix.
func (t TrackSnapshot) IsShow(prefix string) bool {
	if prefix == "" {
		return false
	}
	return strings.HasPrefix(t.FilePath, prefix)
}

// Transition is a stable change to new show content, confirmed by a second read.
type Transition struct {
	Track      TrackSnapshot
	DetectedAt time.Time
}
