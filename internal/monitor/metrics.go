package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	eventsTotal  *prometheus.CounterVec
	alertsTotal  *prometheus.CounterVec
	droppedTotal prometheus.Counter
	threatScoreG prometheus.Gauge
)

// RegisterMetrics installs the monitor collectors on the given registry,
// falling back to the default registerer. Safe to call more than once.
func RegisterMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	var err error
	metricsOnce.Do(func() {
		eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "security_events_total",
			Help: "Security events recorded, by type and severity",
		}, []string{"type", "severity"})

		alertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "security_alerts_total",
			Help: "Security alerts fired, by severity",
		}, []string{"severity"})

		droppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "security_events_dropped_total",
			Help: "Events dropped because the ingest queue was full",
		})

		threatScoreG = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "security_threat_score",
			Help: "Rolling threat score over the configured window",
		})

		for _, c := range []prometheus.Collector{eventsTotal, alertsTotal, droppedTotal, threatScoreG} {
			if regErr := reg.Register(c); regErr != nil {
				if _, ok := regErr.(prometheus.AlreadyRegisteredError); !ok {
					err = regErr
					return
				}
			}
		}
	})
	return err
}

func observeEvent(evt Event) {
	if eventsTotal != nil {
		eventsTotal.WithLabelValues(string(evt.Type), string(evt.Severity)).Inc()
	}
}

func observeAlert(severity Severity) {
	if alertsTotal != nil {
		alertsTotal.WithLabelValues(string(severity)).Inc()
	}
}

func observeDropped() {
	if droppedTotal != nil {
		droppedTotal.Inc()
	}
}

func observeThreatScore(score float64) {
	if threatScoreG != nil {
		threatScoreG.Set(score)
	}
}
