package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGoRecordsFirstErrorAndCancels(t *testing.T) {
	s := NewSupervisor(context.Background(), WithCancelOnError(true))
	boom := errors.New("boom")
	s.Go("fails", func(ctx context.Context) error { return boom })
	s.Go0("waits", func(ctx context.Context) { <-ctx.Done() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "fails")
}

func TestGoRecoversPanic(t *testing.T) {
	s := NewSupervisor(context.Background())
	s.Go0("panics", func(ctx context.Context) { panic("oops") })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "oops")
}

func TestGoRestartRetriesUntilClean(t *testing.T) {
	s := NewSupervisor(context.Background())
	var runs atomic.Int32
	s.GoRestart("flaky", func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
	require.EqualValues(t, 3, runs.Load())
}

func TestGoRestartGivesUp(t *testing.T) {
	s := NewSupervisor(context.Background())
	var runs atomic.Int32
	s.GoRestart("broken", func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("always")
	}, WithRestartBackoff(time.Millisecond, time.Millisecond), WithMaxRestarts(2), WithPublishFirstError(true))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.Error(t, s.Wait(ctx))
	require.EqualValues(t, 3, runs.Load())
}

func TestStopCancelsContext(t *testing.T) {
	s := NewSupervisor(context.Background())
	s.Go0("loop", func(ctx context.Context) { <-ctx.Done() })
	require.EqualValues(t, 1, s.Active())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.Zero(t, s.Active())
}
