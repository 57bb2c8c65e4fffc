package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

// Manager owns the named loggers built from the JSON config files. A
// missing file is skipped; a broken one fails startup.
type Manager struct {
	mu      sync.RWMutex
	loggers map[string]*zap.Logger
}

// NewManager loads every config file and guarantees a "default" logger
// exists even when no file defines one.
func NewManager(configPaths []string) (*Manager, error) {
	m := &Manager{loggers: make(map[string]*zap.Logger)}

	for _, path := range configPaths {
		if err := m.loadFile(path); err != nil {
			return nil, err
		}
	}

	if _, ok := m.loggers["default"]; !ok {
		def, err := Build("default", DefaultConfig)
		if err != nil {
			return nil, fmt.Errorf("building default logger: %w", err)
		}
		m.loggers["default"] = def
	}

	return m, nil
}

// loadFile parses one {"loggers": {name: config}} file and builds its
// loggers. A later file redefining a name wins.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading logger config %s: %w", path, err)
	}

	var wrapper struct {
		Loggers map[string]Config `json:"loggers"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return fmt.Errorf("parsing logger config %s: %w", path, err)
	}

	for name, cfg := range wrapper.Loggers {
		logger, err := Build(name, cfg)
		if err != nil {
			return fmt.Errorf("building logger %s from %s: %w", name, path, err)
		}
		m.mu.Lock()
		m.loggers[name] = logger
		m.mu.Unlock()
	}
	return nil
}

// Get returns the named logger, falling back to "default" for unknown
// names so callers never receive nil.
func (m *Manager) Get(name string) *zap.Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if logger, ok := m.loggers[name]; ok {
		return logger
	}
	return m.loggers["default"]
}

// Sync flushes every managed logger and reports the collected failures.
func (m *Manager) Sync() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for name, logger := range m.loggers {
		if err := logger.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("syncing logger %s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("logger sync: %v", errs)
	}
	return nil
}
