package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "tokenbot/pkg/logx"
)

func TestPanicCancelsWhenCancelOnError(t *testing.T) {
	s := New(context.Background(), WithLogger(logx.Nop()), WithCancelOnError(true))

	s.Go("waiter", func(ctx context.Context) error { <-ctx.Done(); return nil })
	s.Go("bad", func(context.Context) error { panic("boom") })

	select {
	case <-s.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor context not canceled after panic")
	}
	err := s.Wait(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPanic)
	assert.True(t, s.Panicked())

	snap := s.Snapshot()
	assert.Equal(t, int64(0), snap.Active)
	assert.Equal(t, uint64(2), snap.Started)
	require.Len(t, snap.Goroutines, 2)
	assert.Equal(t, "bad", snap.Goroutines[0].Name)
	assert.Equal(t, uint64(1), snap.Goroutines[0].Panics)
}

func TestErrorWithoutCancelKeepsRunning(t *testing.T) {
	s := New(context.Background())
	s.Go("fails", func(context.Context) error { return errors.New("nope") })

	require.Eventually(t, func() bool { return s.Err() != nil }, time.Second, time.Millisecond)
	assert.NoError(t, s.Context().Err())
	assert.EqualError(t, s.Err(), "fails: nope")
	assert.False(t, s.Panicked())
	require.ErrorContains(t, s.Stop(context.Background()), "nope")
}

func TestCanceledIsNotAnError(t *testing.T) {
	s := New(context.Background(), WithCancelOnError(true))
	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, s.Stop(context.Background()))
	assert.Nil(t, s.Err())
}

func TestWaitHonorsDeadline(t *testing.T) {
	s := New(context.Background())
	release := make(chan struct{})
	defer close(release)
	s.Go("stuck", func(context.Context) error { <-release; return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)
	assert.True(t, s.Snapshot().Goroutines[0].Active)
}
