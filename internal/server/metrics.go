package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type metrics struct {
	registry  *prometheus.Registry
	fetches   prometheus.Counter
	appends   prometheus.Counter
	rejected  *prometheus.CounterVec
	logLength prometheus.GaugeFunc
}

func newMetrics(store LogStore) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vliz_fetches_total",
			Help: "Full log reads served.",
		}),
		appends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vliz_appends_total",
			Help: "Messages appended to the log.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vliz_appends_rejected_total",
			Help: "Append requests refused, by reason.",
		}, []string{"reason"}),
		logLength: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "vliz_log_length",
			Help: "Number of messages in the log.",
		}, func() float64 { return float64(store.Len()) }),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.fetches,
		m.appends,
		m.rejected,
		m.logLength,
	)
	return m
}
