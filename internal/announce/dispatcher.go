// Package announce decides which subscriptions receive a show announcement
// and delivers posts to chat destinations.
package announce

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"drumbot/internal/domain"
	kit "drumbot/internal/transport"
	logx "drumbot/pkg/logx"
)

type Feed interface {
	FetchCurrentTrack(ctx context.Context) (domain.TrackSnapshot, error)
	FetchCoverPath(ctx context.Context) (string, error)
}

// Store is the part of the subscription store the dispatcher reads and
// where announced markers are kept when persistence is on.
type Store interface {
	ListAll(ctx context.Context) ([]domain.Subscription, error)
	PutAnnounced(ctx context.Context, destID int64, filePath string) error
	LoadAnnounced(ctx context.Context) (map[int64]string, error)
}

type Sender interface {
	SendPhoto(ctx context.Context, to kit.ChatTarget, photo kit.Photo, caption string, opt *kit.SendOptions) (kit.MessageRef, error)
}

type Config struct {
	BaseDir          string
	SiteURL          string
	BotURL           string
	MiniAppURL       string
	FallbackCoverURL string
	RatePerSec       int
	SendTimeout      time.Duration
	PersistDedup     bool
}

// Report summarizes one broadcast.
type Report struct {
	Considered int
	Sent       int
	Failed     int
}

type Dispatcher struct {
	cfg     Config
	feed    Feed
	store   Store
	send    Sender
	limiter *rate.Limiter
	log     logx.Logger

	mu   sync.Mutex
	last map[int64]string // destination -> last announced file path
}

func New(cfg Config, feed Feed, store Store, send Sender, log logx.Logger) *Dispatcher {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 20 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		cfg:     cfg,
		feed:    feed,
		store:   store,
		send:    send,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		log:     log,
		last:    map[int64]string{},
	}
}

// LoadDedup restores announced markers from the store. It is a no-op unless
// PersistDedup is set.
func (d *Dispatcher) LoadDedup(ctx context.Context) error {
	if !d.cfg.PersistDedup {
		return nil
	}
	m, err := d.store.LoadAnnounced(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	for dest, p := range m {
		d.last[dest] = p
	}
	d.mu.Unlock()
	d.log.Info("announced markers restored", logx.Int("destinations", len(m)))
	return nil
}

// ShouldAnnounce applies a subscription's policy to a show transition.
// last is the file path most recently announced to the destination.
func ShouldAnnounce(sub domain.Subscription, track domain.TrackSnapshot, last string) bool {
	switch sub.Policy {
	case domain.PolicyAllShows:
		return track.FilePath != last
	case domain.PolicyKeywordMatch:
		kw := strings.ToLower(strings.TrimSpace(sub.PolicyParam))
		if kw == "" || track.FilePath == last {
			return false
		}
		return strings.Contains(strings.ToLower(track.Title), kw)
	default:
		// daily posts are driven by their own timers; disabled never posts
		return false
	}
}

// Broadcast announces a stable show transition to every subscription whose
// policy accepts it. Each destination is marked as announced on the send
// attempt, so a failed delivery is not retried for the same show.
func (d *Dispatcher) Broadcast(ctx context.Context, tr domain.Transition) (Report, error) {
	var rep Report
	subs, err := d.store.ListAll(ctx)
	if err != nil {
		d.log.Error("broadcast: list subscriptions failed", logx.Err(err))
		return rep, err
	}
	rep.Considered = len(subs)

	var post *Post
	for _, sub := range subs {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		if !d.claim(sub, tr.Track) {
			continue
		}
		if post == nil {
			post = &Post{Photo: d.ResolveCover(ctx), Caption: ShowCaption(tr.Track, d.cfg.SiteURL), Track: tr.Track}
		}
		d.persistMarker(ctx, sub.DestinationID, tr.Track.FilePath)

		if err := d.deliver(ctx, sub.DestinationID, *post); err != nil {
			rep.Failed++
			d.log.Warn("announcement failed",
				logx.Int64("dest", sub.DestinationID),
				logx.String("path", tr.Track.FilePath),
				logx.Err(err),
			)
			continue
		}
		rep.Sent++
	}
	d.log.Info("broadcast done",
		logx.String("path", tr.Track.FilePath),
		logx.String("title", tr.Track.Title),
		logx.Int("subscriptions", rep.Considered),
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed),
	)
	return rep, nil
}

// claim checks the policy and marks the destination under one lock so two
// subscriptions for the same destination cannot both send.
func (d *Dispatcher) claim(sub domain.Subscription, track domain.TrackSnapshot) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !ShouldAnnounce(sub, track, d.last[sub.DestinationID]) {
		return false
	}
	d.last[sub.DestinationID] = track.FilePath
	return true
}

func (d *Dispatcher) persistMarker(ctx context.Context, dest int64, path string) {
	if !d.cfg.PersistDedup {
		return
	}
	if err := d.store.PutAnnounced(ctx, dest, path); err != nil {
		d.log.Warn("announced marker not saved", logx.Int64("dest", dest), logx.Err(err))
	}
}

// LastAnnounced returns the file path last announced to dest.
func (d *Dispatcher) LastAnnounced(dest int64) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.last[dest]
	return p, ok
}

// Forget drops the marker of a destination that no longer has subscriptions.
func (d *Dispatcher) Forget(dest int64) {
	d.mu.Lock()
	delete(d.last, dest)
	d.mu.Unlock()
}

// NowPlaying builds the "now on air" post from a fresh feed read.
func (d *Dispatcher) NowPlaying(ctx context.Context) (Post, error) {
	track, err := d.feed.FetchCurrentTrack(ctx)
	if err != nil {
		return Post{}, err
	}
	return Post{
		Photo:   d.ResolveCover(ctx),
		Caption: NowPlayingCaption(track, d.cfg.SiteURL),
		Track:   track,
	}, nil
}

// SendNowPlaying posts what is on air to one destination, without policy
// checks or dedup. Daily timers and test posts use it.
func (d *Dispatcher) SendNowPlaying(ctx context.Context, dest int64) error {
	post, err := d.NowPlaying(ctx)
	if err != nil {
		d.log.Warn("now playing unavailable", logx.Int64("dest", dest), logx.Err(err))
		return err
	}
	if err := d.deliver(ctx, dest, post); err != nil {
		d.log.Warn("now playing post failed", logx.Int64("dest", dest), logx.Err(err))
		return err
	}
	d.log.Info("now playing posted", logx.Int64("dest", dest), logx.String("title", post.Track.Title))
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, dest int64, post Post) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDelivery, err)
	}
	sctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()
	_, err := d.send.SendPhoto(sctx, kit.ChatTarget{ChatID: dest}, post.Photo, post.Caption,
		&kit.SendOptions{ReplyMarkupAdapter: d.ChannelMarkup()})
	if err != nil {
		if errors.Is(err, domain.ErrDelivery) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrDelivery, err)
	}
	return nil
}
