package fixturestore

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	saves     prometheus.Counter
	failures  prometheus.Counter
	restores  prometheus.Counter
	discarded prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		saves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fixturedb",
			Name:      "snapshots_saved_total",
			Help:      "Number of snapshots written to the durable storage.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fixturedb",
			Name:      "snapshot_save_failures_total",
			Help:      "Number of snapshots that could not be written to the durable storage.",
		}),
		restores: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fixturedb",
			Name:      "snapshots_restored_total",
			Help:      "Number of snapshots restored from the durable storage.",
		}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fixturedb",
			Name:      "snapshots_discarded_total",
			Help:      "Number of persisted snapshots ignored, because they could not be parsed.",
		}),
	}

	reg.MustRegister(m.saves, m.failures, m.restores, m.discarded)

	return m
}

// noopMetrics are not registered anywhere.
func noopMetrics() *metrics {
	return &metrics{
		saves:     prometheus.NewCounter(prometheus.CounterOpts{Name: "saves"}),
		failures:  prometheus.NewCounter(prometheus.CounterOpts{Name: "failures"}),
		restores:  prometheus.NewCounter(prometheus.CounterOpts{Name: "restores"}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{Name: "discarded"}),
	}
}
