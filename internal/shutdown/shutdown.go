// Package shutdown coordinates graceful teardown: components register
// named handlers and Shutdown runs them concurrently under one deadline.
package shutdown

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type handler struct {
	name string
	fn   func(context.Context) error
}

type Manager struct {
	logger *zap.Logger

	mu       sync.Mutex
	handlers []handler
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger}
}

// Register adds a named teardown step.
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler{name: name, fn: fn})
}

// Shutdown runs every registered handler concurrently. Failures are
// logged per handler; the only returned error is the context deadline.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	handlers := make([]handler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, h := range handlers {
		wg.Add(1)
		go func(h handler) {
			defer wg.Done()
			if err := h.fn(ctx); err != nil {
				m.logger.Error("shutdown handler failed",
					zap.String("handler", h.name),
					zap.Error(err),
				)
			}
		}(h)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown deadline exceeded: %w", ctx.Err())
	case <-done:
		m.logger.Info("shutdown complete", zap.Int("handlers", len(handlers)))
		return nil
	}
}
