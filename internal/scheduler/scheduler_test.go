package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRejectsBadExpression(t *testing.T) {
	s := New()
	err := s.Register("bad", "not a cron expr", func(ctx context.Context) error { return nil })
	assert.Error(t, err)
}

func TestSchedulerFiresAndStopsOnCancel(t *testing.T) {
	s := New()
	var fired int32
	err := s.Register("every-second", "@every 1s", func(ctx context.Context) error {
		atomic.AddInt32(&fired, 1)
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 1100*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	assert.GreaterOrEqual(t, atomic.LoadInt32(&fired), int32(1))
}

func TestHandlerPanicDoesNotCrashLoop(t *testing.T) {
	s := New()
	var ran int32
	err := s.Register("panics", "@every 1s", func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		panic("boom")
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 1100*time.Millisecond)
	defer cancel()
	assert.NotPanics(t, func() { s.Run(ctx) })
	assert.GreaterOrEqual(t, atomic.LoadInt32(&ran), int32(1))
}
