package detector

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"drumbot/internal/announce"
	"drumbot/internal/domain"
	"drumbot/internal/storage"
	"drumbot/internal/task/scheduler"
	kit "drumbot/internal/transport"
	logx "drumbot/pkg/logx"
)

// showFeed always reports the same show and has no cover.
type showFeed struct{}

func (showFeed) FetchCurrentTrack(context.Context) (domain.TrackSnapshot, error) {
	return showB, nil
}

func (showFeed) FetchCoverPath(context.Context) (string, error) {
	return "", errors.New("no cover")
}

// slowSender blocks on every send and ignores ctx, like a hanging Bot API call.
type slowSender struct {
	delay time.Duration
	mu    sync.Mutex
	dests []int64
}

func (s *slowSender) SendPhoto(_ context.Context, to kit.ChatTarget, _ kit.Photo, _ string, _ *kit.SendOptions) (kit.MessageRef, error) {
	time.Sleep(s.delay)
	s.mu.Lock()
	s.dests = append(s.dests, to.ChatID)
	s.mu.Unlock()
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (s *slowSender) sent() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]int64(nil), s.dests...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestSlowFanOutOutlastingIntervalReachesEveryDestination(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	for _, dest := range []int64{-1, -2, -3, -4} {
		require.NoError(t, store.Upsert(ctx, domain.Subscription{OwnerID: 7, DestinationID: dest, Policy: domain.PolicyAllShows}))
	}

	sender := &slowSender{delay: 120 * time.Millisecond}
	disp := announce.New(announce.Config{RatePerSec: 1000, SendTimeout: time.Second}, showFeed{}, store, sender, logx.Nop())

	sched := scheduler.New(scheduler.Config{Location: time.UTC}, logx.Nop())
	sched.Start(ctx)
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		sched.Stop(stopCtx)
	})

	type result struct {
		rep announce.Report
		err error
	}
	results := make(chan result, 4)
	d, err := New(Config{Interval: 300 * time.Millisecond, ShowPrefix: prefix}, showFeed{}, sched,
		func(ctx context.Context, tr domain.Transition) {
			rep, err := disp.Broadcast(ctx, tr)
			results <- result{rep, err}
		}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, d.Start())
	defer d.Stop()

	select {
	case res := <-results:
		require.NoError(t, res.err)
		require.Equal(t, announce.Report{Considered: 4, Sent: 4}, res.rep)
	case <-time.After(5 * time.Second):
		t.Fatal("show was never broadcast")
	}
	require.Equal(t, []int64{-4, -3, -2, -1}, sender.sent())
}
