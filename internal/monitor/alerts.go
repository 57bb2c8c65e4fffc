package monitor

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ChannelKind identifies a notification transport.
type ChannelKind string

const (
	ChannelEmail ChannelKind = "email"
	ChannelChat  ChannelKind = "chat"
	ChannelSMS   ChannelKind = "sms"
)

// AlertChannel delivers fired alerts. Implementations live in the notify
// package; delivery failures are logged by the monitor and never propagate.
type AlertChannel interface {
	Kind() ChannelKind
	Send(ctx context.Context, alert Alert) error
}

// Alert is fired when a severity's event counter reaches its threshold.
type Alert struct {
	ID        string    `json:"id"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Event     Event     `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

// alertThresholds: how many events of a severity fire one alert. The
// counter resets when the alert fires.
var alertThresholds = map[Severity]int{
	SeverityCritical: 1,
	SeverityHigh:     2,
	SeverityMedium:   5,
	SeverityLow:      10,
}

// channelsFor routes a severity onto transports: critical goes everywhere,
// high to email and chat, the rest to chat only.
func channelsFor(severity Severity, channels []AlertChannel) []AlertChannel {
	var kinds map[ChannelKind]bool
	switch severity {
	case SeverityCritical:
		return channels
	case SeverityHigh:
		kinds = map[ChannelKind]bool{ChannelEmail: true, ChannelChat: true}
	default:
		kinds = map[ChannelKind]bool{ChannelChat: true}
	}

	out := make([]AlertChannel, 0, len(channels))
	for _, ch := range channels {
		if kinds[ch.Kind()] {
			out = append(out, ch)
		}
	}
	return out
}

func newAlert(evt Event) Alert {
	return Alert{
		ID:        uuid.NewString(),
		Severity:  evt.Severity,
		Message:   "security alert: " + evt.Description,
		Event:     evt,
		Timestamp: time.Now(),
	}
}
