package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Metrics is the derived aggregate over the event log. Recomputed on every
// recorded event, never independently mutated.
type Metrics struct {
	TotalEvents      int               `json:"totalEvents"`
	EventsByType     map[EventType]int `json:"eventsByType"`
	EventsBySeverity map[Severity]int  `json:"eventsBySeverity"`
	ThreatScore      float64           `json:"threatScore"`
	LastUpdated      time.Time         `json:"lastUpdated"`
}

// Config tunes the monitor.
type Config struct {
	QueueSize       int           // bounded ingest queue, default 1024
	ScoreWindow     time.Duration // rolling threat score window, default 1h
	HealthInterval  time.Duration // health check cadence, default 5m
	CleanupInterval time.Duration // retention sweep cadence, default 1h
	Retention       time.Duration // event retention, default 7 days

	// Health check thresholds.
	AnomalyScore  float64 // rolling score that synthesizes an anomaly, default 0.7
	AttackedSize  int     // blacklist size that synthesizes an attack, default 50
	NotifyTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.ScoreWindow <= 0 {
		c.ScoreWindow = time.Hour
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 5 * time.Minute
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Hour
	}
	if c.Retention <= 0 {
		c.Retention = 7 * 24 * time.Hour
	}
	if c.AnomalyScore <= 0 {
		c.AnomalyScore = 0.7
	}
	if c.AttackedSize <= 0 {
		c.AttackedSize = 50
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 10 * time.Second
	}
}

// Monitor consumes security events from a bounded queue, maintains the
// rolling metrics and fires threshold alerts. It observes the firewall and
// identity service only through the events they emit.
type Monitor struct {
	logger        *zap.Logger
	channels      []AlertChannel
	blacklistSize func() int // injected firewall probe, may be nil
	config        Config

	in   chan Event
	done chan struct{}
	wg   sync.WaitGroup

	mu          sync.RWMutex
	events      []Event
	metrics     Metrics
	counters    map[Severity]int
	alerts      []Alert
	subscribers map[chan Event]struct{}
}

// New builds the monitor and starts its consumer, health check and cleanup
// goroutines. blacklistSize may be nil when no firewall probe is wired.
func New(logger *zap.Logger, channels []AlertChannel, blacklistSize func() int, config Config) *Monitor {
	config.applyDefaults()

	m := &Monitor{
		logger:        logger,
		channels:      channels,
		blacklistSize: blacklistSize,
		config:        config,
		in:            make(chan Event, config.QueueSize),
		done:          make(chan struct{}),
		counters:      make(map[Severity]int),
		subscribers:   make(map[chan Event]struct{}),
		metrics: Metrics{
			EventsByType:     make(map[EventType]int),
			EventsBySeverity: make(map[Severity]int),
		},
	}

	m.wg.Add(3)
	go m.consumeLoop()
	go m.healthLoop()
	go m.cleanupLoop()

	return m
}

// Close drains the queue and stops all goroutines.
func (m *Monitor) Close() {
	close(m.done)
	m.wg.Wait()
}

// RecordEvent enqueues an event. It never blocks the producer: when the
// queue is full the oldest queued event is dropped to make room.
func (m *Monitor) RecordEvent(evt Event) {
	select {
	case m.in <- evt:
		return
	default:
	}

	// Queue full: drop the oldest and retry once.
	select {
	case dropped := <-m.in:
		observeDropped()
		m.logger.Warn("event queue full, oldest event dropped", zap.String("droppedId", dropped.ID))
	default:
	}
	select {
	case m.in <- evt:
	default:
	}
}

func (m *Monitor) consumeLoop() {
	defer m.wg.Done()

	for {
		select {
		case evt := <-m.in:
			m.process(evt)
		case <-m.done:
			// Drain whatever is still queued before exiting.
			for {
				select {
				case evt := <-m.in:
					m.process(evt)
				default:
					return
				}
			}
		}
	}
}

func (m *Monitor) process(evt Event) {
	m.mu.Lock()
	m.events = append(m.events, evt)
	m.recomputeMetricsLocked(time.Now())

	m.counters[evt.Severity]++
	var fire bool
	if threshold, ok := alertThresholds[evt.Severity]; ok && m.counters[evt.Severity] >= threshold {
		m.counters[evt.Severity] = 0
		fire = true
	}

	var alert Alert
	if fire {
		alert = newAlert(evt)
		m.alerts = append(m.alerts, alert)
	}

	for sub := range m.subscribers {
		select {
		case sub <- evt:
		default: // slow subscriber, skip
		}
	}
	m.mu.Unlock()

	observeEvent(evt)
	m.logger.Debug("security event recorded",
		zap.String("id", evt.ID),
		zap.String("type", string(evt.Type)),
		zap.String("severity", string(evt.Severity)),
		zap.String("source", evt.Source),
	)

	if fire {
		m.dispatch(alert)
	}
}

// dispatch fans an alert out to the severity's channels. Fire and forget:
// failures are logged, never surfaced.
func (m *Monitor) dispatch(alert Alert) {
	observeAlert(alert.Severity)
	m.logger.Warn("security alert fired",
		zap.String("alertId", alert.ID),
		zap.String("severity", string(alert.Severity)),
		zap.String("message", alert.Message),
	)

	for _, ch := range channelsFor(alert.Severity, m.channels) {
		ch := ch
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), m.config.NotifyTimeout)
			defer cancel()
			if err := ch.Send(ctx, alert); err != nil {
				m.logger.Error("alert delivery failed",
					zap.String("channel", string(ch.Kind())),
					zap.String("alertId", alert.ID),
					zap.Error(err),
				)
			}
		}()
	}
}

// recomputeMetricsLocked rebuilds the aggregate, including the rolling
// threat score over the configured window. Caller holds m.mu.
func (m *Monitor) recomputeMetricsLocked(now time.Time) {
	byType := make(map[EventType]int)
	bySeverity := make(map[Severity]int)
	cutoff := now.Add(-m.config.ScoreWindow)

	var sum float64
	var windowed int
	for i := range m.events {
		evt := &m.events[i]
		byType[evt.Type]++
		bySeverity[evt.Severity]++
		if evt.Timestamp.After(cutoff) {
			sum += severityScore(evt.Severity)
			windowed++
		}
	}

	score := 0.0
	if windowed > 0 {
		score = sum / float64(windowed)
	}

	m.metrics = Metrics{
		TotalEvents:      len(m.events),
		EventsByType:     byType,
		EventsBySeverity: bySeverity,
		ThreatScore:      score,
		LastUpdated:      now,
	}
	observeThreatScore(score)
}

// ResolveEvent flips an event's resolved flag, one way. Resolving an
// already-resolved event is a no-op success; an unknown id is an error.
func (m *Monitor) ResolveEvent(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.events {
		if m.events[i].ID != id {
			continue
		}
		if !m.events[i].Resolved {
			now := time.Now()
			m.events[i].Resolved = true
			m.events[i].ResolvedAt = &now
		}
		return nil
	}
	return fmt.Errorf("event %s not found", id)
}

// Metrics returns a snapshot of the current aggregate.
func (m *Monitor) Metrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp := m.metrics
	cp.EventsByType = make(map[EventType]int, len(m.metrics.EventsByType))
	for k, v := range m.metrics.EventsByType {
		cp.EventsByType[k] = v
	}
	cp.EventsBySeverity = make(map[Severity]int, len(m.metrics.EventsBySeverity))
	for k, v := range m.metrics.EventsBySeverity {
		cp.EventsBySeverity[k] = v
	}
	return cp
}

// Alerts returns the fired alert history, oldest first.
func (m *Monitor) Alerts() []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// Subscribe registers a live event feed. The returned cancel function must
// be called when the consumer goes away. Slow consumers miss events rather
// than stall the monitor.
func (m *Monitor) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		delete(m.subscribers, ch)
		m.mu.Unlock()
	}
	return ch, cancel
}

func (m *Monitor) healthLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.healthCheck()
		case <-m.done:
			return
		}
	}
}

// healthCheck synthesizes events from the monitor's own aggregates: a hot
// rolling threat score becomes an anomaly, a swollen firewall blacklist
// becomes an attack indicator.
func (m *Monitor) healthCheck() {
	m.mu.RLock()
	score := m.metrics.ThreatScore
	m.mu.RUnlock()

	if score > m.config.AnomalyScore {
		m.RecordEvent(NewEvent(
			EventAnomaly,
			SeverityHigh,
			"monitor",
			"platform",
			fmt.Sprintf("rolling threat score %.2f exceeds %.2f", score, m.config.AnomalyScore),
			nil,
		))
	}

	if m.blacklistSize != nil {
		if size := m.blacklistSize(); size > m.config.AttackedSize {
			m.RecordEvent(NewEvent(
				EventAttack,
				SeverityHigh,
				"monitor",
				"firewall",
				fmt.Sprintf("blacklist grew to %d addresses", size),
				map[string]any{"blacklistSize": size},
			))
		}
	}
}

func (m *Monitor) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup(time.Now())
		case <-m.done:
			return
		}
	}
}

// cleanup drops events past retention and recomputes the aggregate.
func (m *Monitor) cleanup(now time.Time) {
	cutoff := now.Add(-m.config.Retention)

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.events[:0]
	for _, evt := range m.events {
		if evt.Timestamp.After(cutoff) {
			kept = append(kept, evt)
		}
	}
	dropped := len(m.events) - len(kept)
	m.events = kept
	if dropped > 0 {
		m.recomputeMetricsLocked(now)
		m.logger.Info("expired events cleaned up", zap.Int("dropped", dropped))
	}
}
