// Package schedule keeps one daily timer per destination with a daily post policy.
package schedule

import (
	"context"
	"strconv"
	"strings"
	"time"

	"drumbot/internal/domain"
	"drumbot/internal/task/scheduler"
	logx "drumbot/pkg/logx"
)

type Scheduler interface {
	AddDaily(name string, hour, minute int, timeout time.Duration, job scheduler.Job) error
	Remove(name string) bool
	Has(name string) bool
}

type Store interface {
	ListByPolicy(ctx context.Context, p domain.Policy) ([]domain.Subscription, error)
}

type Poster interface {
	SendNowPlaying(ctx context.Context, dest int64) error
}

type Coordinator struct {
	sched       Scheduler
	store       Store
	poster      Poster
	postTimeout time.Duration
	log         logx.Logger
}

func New(sched Scheduler, store Store, poster Poster, postTimeout time.Duration, log logx.Logger) *Coordinator {
	if postTimeout <= 0 {
		postTimeout = time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Coordinator{sched: sched, store: store, poster: poster, postTimeout: postTimeout, log: log}
}

// EntryName is the scheduler entry name of a destination's daily timer.
func EntryName(dest int64) string {
	return "daily:" + strconv.FormatInt(dest, 10)
}

// Load registers a timer for every stored daily subscription. Rows with a
// malformed time are logged and skipped; an empty time means the default.
func (c *Coordinator) Load(ctx context.Context) (int, error) {
	subs, err := c.store.ListByPolicy(ctx, domain.PolicyDailyFixedTime)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, sub := range subs {
		hhmm := strings.TrimSpace(sub.PolicyParam)
		if hhmm == "" {
			hhmm = domain.DefaultDailyTime
		}
		if err := c.Register(sub.DestinationID, hhmm); err != nil {
			c.log.Warn("daily timer skipped",
				logx.Int64("dest", sub.DestinationID),
				logx.Int64("owner", sub.OwnerID),
				logx.String("time", sub.PolicyParam),
				logx.Err(err),
			)
			continue
		}
		n++
	}
	c.log.Info("daily timers loaded", logx.Int("registered", n), logx.Int("rows", len(subs)))
	return n, nil
}

// Register creates or replaces dest's daily timer at hhmm scheduler time.
func (c *Coordinator) Register(dest int64, hhmm string) error {
	h, m, err := domain.ParseTimeOfDay(hhmm)
	if err != nil {
		return err
	}
	name := EntryName(dest)
	err = c.sched.AddDaily(name, h, m, c.postTimeout, func(ctx context.Context) error {
		return c.poster.SendNowPlaying(ctx, dest)
	})
	if err != nil {
		return err
	}
	c.log.Debug("daily timer set", logx.Int64("dest", dest), logx.String("time", hhmm))
	return nil
}

// Cancel removes dest's timer; it reports whether one existed.
func (c *Coordinator) Cancel(dest int64) bool {
	ok := c.sched.Remove(EntryName(dest))
	if ok {
		c.log.Debug("daily timer removed", logx.Int64("dest", dest))
	}
	return ok
}

// Reconcile makes dest's timer match the store: it keeps or re-registers the
// timer if any owner still has a daily subscription for dest, and removes it
// otherwise. Used after a subscription for dest was edited or deleted.
func (c *Coordinator) Reconcile(ctx context.Context, dest int64) error {
	subs, err := c.store.ListByPolicy(ctx, domain.PolicyDailyFixedTime)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if sub.DestinationID != dest {
			continue
		}
		hhmm := strings.TrimSpace(sub.PolicyParam)
		if hhmm == "" {
			hhmm = domain.DefaultDailyTime
		}
		if err := c.Register(dest, hhmm); err == nil {
			return nil
		}
	}
	c.Cancel(dest)
	return nil
}

func (c *Coordinator) Has(dest int64) bool {
	return c.sched.Has(EntryName(dest))
}
