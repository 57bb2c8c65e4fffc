package firewall

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	verdictsTotal *prometheus.CounterVec
)

// RegisterMetrics installs the firewall collectors on the given registry,
// falling back to the default registerer. Safe to call more than once.
func RegisterMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	var err error
	metricsOnce.Do(func() {
		verdictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "firewall_verdicts_total",
			Help: "Firewall verdicts by resulting action",
		}, []string{"action"})

		err = reg.Register(verdictsTotal)
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			err = nil
		}
	})
	return err
}

func observeVerdict(action Action) {
	if verdictsTotal != nil {
		verdictsTotal.WithLabelValues(string(action)).Inc()
	}
}
