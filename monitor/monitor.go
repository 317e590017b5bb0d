// monitor/monitor.go
package monitor

import (
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	ActiveMatches  prometheus.Gauge
	MatchesCreated prometheus.Counter
	Actions        prometheus.Counter
	Timeouts       prometheus.Counter
	Settlements    prometheus.Counter
	ActionLatency  prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		ActiveMatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_matches",
			Help:      "Number of matches not yet in a terminal status",
		}),
		MatchesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_created_total",
			Help:      "Total number of matches created",
		}),
		Actions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_processed_total",
			Help:      "Total number of player actions processed",
		}),
		Timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeouts_applied_total",
			Help:      "Total number of turn-timeout penalties applied",
		}),
		Settlements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Total number of prize settlements",
		}),
		ActionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_latency_seconds",
			Help:      "Action processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
	}

	prometheus.MustRegister(
		m.ActiveMatches,
		m.MatchesCreated,
		m.Actions,
		m.Timeouts,
		m.Settlements,
		m.ActionLatency,
	)

	return m
}

type Monitor struct {
	metrics   *Metrics
	startTime time.Time
	requests  int64
	mutex     sync.Mutex
}

func NewMonitor(namespace string) *Monitor {
	return &Monitor{
		metrics:   NewMetrics(namespace),
		startTime: time.Now(),
	}
}

func (m *Monitor) StartServer(addr string) {
	http.Handle("/metrics", promhttp.Handler())

	expvar.Publish("uptime", expvar.Func(func() interface{} {
		return time.Since(m.startTime).Seconds()
	}))

	expvar.Publish("requests", expvar.Func(func() interface{} {
		m.mutex.Lock()
		defer m.mutex.Unlock()
		return m.requests
	}))

	go http.ListenAndServe(addr, nil)
}

func (m *Monitor) IncActiveMatches() {
	m.metrics.ActiveMatches.Inc()
}

func (m *Monitor) DecActiveMatches() {
	m.metrics.ActiveMatches.Dec()
}

func (m *Monitor) IncMatchesCreated() {
	m.metrics.MatchesCreated.Inc()
}

func (m *Monitor) IncActions() {
	m.metrics.Actions.Inc()
	m.mutex.Lock()
	m.requests++
	m.mutex.Unlock()
}

func (m *Monitor) IncTimeouts() {
	m.metrics.Timeouts.Inc()
}

func (m *Monitor) IncSettlements() {
	m.metrics.Settlements.Inc()
}

func (m *Monitor) ObserveActionLatency(duration time.Duration) {
	m.metrics.ActionLatency.Observe(duration.Seconds())
}
