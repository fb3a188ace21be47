package session

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "etcdsession"

var (
	connectTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "connect_attempts_total",
		Help:      "Lease grant attempts per endpoint by result.",
	}, []string{"result"})

	keepAliveTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "keepalive_rounds_total",
		Help:      "Keepalive round trips by result.",
	}, []string{"result"})

	lockTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "lock_requests_total",
		Help:      "Lock and unlock requests by operation and result.",
	}, []string{"op", "result"})

	watchEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "watch_events_total",
		Help:      "Events delivered to watch handlers.",
	})

	connectedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "connected_sessions",
		Help:      "Sessions that currently hold a lease.",
	})
)

func init() {
	prometheus.MustRegister(connectTotal, keepAliveTotal, lockTotal, watchEventsTotal, connectedGauge)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
