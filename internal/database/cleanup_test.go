package database

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPurger struct {
	calls atomic.Int32
	err   error
}

func (p *countingPurger) PurgeExpired(ctx context.Context) (int, error) {
	p.calls.Add(1)
	return 1, p.err
}

func TestCleanerRunsOnEveryTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	purger := &countingPurger{}
	cleaner := NewCleaner(purger, time.Minute, clock, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cleaner.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return purger.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return purger.calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleaner did not stop")
	}
}

func TestCleanerSurvivesErrors(t *testing.T) {
	clock := clockwork.NewFakeClock()
	purger := &countingPurger{err: errors.New("disk full")}
	cleaner := NewCleaner(purger, time.Minute, clock, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cleaner.Start(ctx)

	require.Eventually(t, func() bool { return purger.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)
	assert.Eventually(t, func() bool { return purger.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}
