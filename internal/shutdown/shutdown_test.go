package shutdown

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestShutdown_RunsAllHandlers(t *testing.T) {
	m := NewManager(zap.NewNop())

	var ran int32
	for i := 0; i < 3; i++ {
		m.Register("component", func(context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		})
	}
	// A failing handler never stops the others.
	m.Register("flaky", func(context.Context) error {
		return errors.New("boom")
	})

	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, int32(3), atomic.LoadInt32(&ran))
}

func TestShutdown_DeadlineExceeded(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := m.Shutdown(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
