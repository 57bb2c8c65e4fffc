// Package monitor collects security events emitted by the firewall and the
// identity service, maintains rolling metrics and a windowed threat score,
// and fires threshold-based alerts to the configured notification channels.
package monitor

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies a security event.
type EventType string

const (
	EventThreat  EventType = "threat"
	EventAttack  EventType = "attack"
	EventAnomaly EventType = "anomaly"
	EventBlock   EventType = "block"
	EventAlert   EventType = "alert"
)

// Severity ranks how serious an event is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Event is a single security observation. Append-only except for the
// resolved transition, which is one-way.
type Event struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Severity    Severity       `json:"severity"`
	Source      string         `json:"source"`
	Target      string         `json:"target"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Resolved    bool           `json:"resolved"`
	ResolvedAt  *time.Time     `json:"resolvedAt,omitempty"`
}

// NewEvent builds an unresolved event stamped with a fresh ID and the
// current time.
func NewEvent(eventType EventType, severity Severity, source, target, description string, metadata map[string]any) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		Severity:    severity,
		Source:      source,
		Target:      target,
		Description: description,
		Metadata:    metadata,
		Timestamp:   time.Now(),
	}
}

// severityScore maps a severity onto the normalized [0,1] threat scale.
func severityScore(s Severity) float64 {
	switch s {
	case SeverityCritical:
		return 1.0
	case SeverityHigh:
		return 0.8
	case SeverityMedium:
		return 0.5
	case SeverityLow:
		return 0.2
	default:
		return 0
	}
}
