// Package detector watches the now-playing feed for stable changes to show content.
//
// A poll that sees a new show path does not announce it right away: the feed
// can report a short-lived path while tracks switch, so a one-shot confirm
// re-reads the feed one interval later and only a matching second read counts
// as a transition.
package detector

import (
	"context"
	"errors"
	"sync"
	"time"

	"drumbot/internal/domain"
	"drumbot/internal/task/scheduler"
	logx "drumbot/pkg/logx"
)

// Scheduler entry names.
const (
	PollJob    = "detector.poll"
	ConfirmJob = "detector.confirm"
)

type Feed interface {
	FetchCurrentTrack(ctx context.Context) (domain.TrackSnapshot, error)
}

type Scheduler interface {
	AddInterval(name string, every time.Duration, timeout time.Duration, job scheduler.Job) error
	AddOnce(name string, delay time.Duration, timeout time.Duration, job scheduler.Job) error
	Remove(name string) bool
}

// Handler receives stable show transitions.
type Handler func(ctx context.Context, tr domain.Transition)

type Config struct {
	Interval   time.Duration
	ShowPrefix string
}

type Detector struct {
	cfg    Config
	feed   Feed
	sched  Scheduler
	handle Handler
	log    logx.Logger
	now    func() time.Time

	mu        sync.Mutex
	lastSeen  string
	candidate string
	pending   bool
}

func New(cfg Config, feed Feed, sched Scheduler, handle Handler, log logx.Logger) (*Detector, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("detector interval must be > 0")
	}
	if cfg.ShowPrefix == "" {
		return nil, errors.New("detector show prefix is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Detector{cfg: cfg, feed: feed, sched: sched, handle: handle, log: log, now: time.Now}, nil
}

// Start registers the recurring poll and runs a first poll immediately.
func (d *Detector) Start() error {
	if err := d.sched.AddInterval(PollJob, d.cfg.Interval, d.cfg.Interval, d.Poll); err != nil {
		return err
	}
	if err := d.sched.AddOnce(PollJob+".first", 0, d.cfg.Interval, d.Poll); err != nil {
		return err
	}
	d.log.Info("detector started", logx.Duration("interval", d.cfg.Interval), logx.String("show_prefix", d.cfg.ShowPrefix))
	return nil
}

func (d *Detector) Stop() {
	d.sched.Remove(PollJob)
	d.sched.Remove(PollJob + ".first")
	d.sched.Remove(ConfirmJob)
	d.mu.Lock()
	d.pending = false
	d.candidate = ""
	d.mu.Unlock()
}

// Poll is one detector tick. Feed errors are logged and leave state untouched.
func (d *Detector) Poll(ctx context.Context) error {
	d.mu.Lock()
	busy := d.pending
	d.mu.Unlock()
	if busy {
		d.log.Trace("poll skipped, confirmation pending")
		return nil
	}

	snap, err := d.feed.FetchCurrentTrack(ctx)
	if err != nil {
		d.log.Warn("poll: feed read failed", logx.Err(err))
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending {
		return nil
	}
	if !snap.IsShow(d.cfg.ShowPrefix) || snap.FilePath == d.lastSeen {
		d.lastSeen = snap.FilePath
		return nil
	}
	d.candidate = snap.FilePath
	d.pending = true
	// No run timeout: the broadcast behind a confirmation may outlast one
	// interval. Scheduler shutdown still cancels it; sends carry their own bound.
	if err := d.sched.AddOnce(ConfirmJob, d.cfg.Interval, 0, d.Confirm); err != nil {
		d.pending = false
		d.candidate = ""
		d.log.Error("poll: confirm not scheduled", logx.Err(err))
		return err
	}
	d.log.Debug("show candidate", logx.String("path", snap.FilePath), logx.Duration("confirm_in", d.cfg.Interval))
	return nil
}

// Confirm re-reads the feed for the pending candidate. A matching read is a
// stable transition and is handed to the handler.
func (d *Detector) Confirm(ctx context.Context) error {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return nil
	}
	candidate := d.candidate
	d.mu.Unlock()

	snap, err := d.feed.FetchCurrentTrack(ctx)

	d.mu.Lock()
	d.pending = false
	d.candidate = ""
	if err != nil {
		d.mu.Unlock()
		d.log.Warn("confirm: feed read failed, candidate dropped", logx.String("path", candidate), logx.Err(err))
		return nil
	}
	d.lastSeen = snap.FilePath
	d.mu.Unlock()

	if snap.FilePath != candidate {
		d.log.Debug("candidate not confirmed", logx.String("candidate", candidate), logx.String("now", snap.FilePath))
		return nil
	}
	d.log.Info("show transition", logx.String("path", snap.FilePath), logx.String("title", snap.Title), logx.String("artist", snap.Artist))
	if d.handle != nil {
		d.handle(ctx, domain.Transition{Track: snap, DetectedAt: d.now()})
	}
	return nil
}

// State exposes the detector's memory for status replies and tests.
func (d *Detector) State() (lastSeen, candidate string, pending bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSeen, d.candidate, d.pending
}
