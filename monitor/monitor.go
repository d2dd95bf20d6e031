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
	ActiveMatches      prometheus.Gauge
	MatchesCompleted   *prometheus.CounterVec
	MoveLatency        prometheus.Histogram
	RakeCollected      prometheus.Counter
	SettlementFailures prometheus.Counter
	MilestonesUnlocked prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		ActiveMatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_matches",
			Help:      "Number of matches currently in progress",
		}),
		MatchesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_completed_total",
			Help:      "Completed matches by end reason",
		}, []string{"reason"}),
		MoveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "move_latency_seconds",
			Help:      "Strategy decision latency per move",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		RakeCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rake_collected_total",
			Help:      "Total rake taken from settled pots",
		}),
		SettlementFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_failures_total",
			Help:      "Settlement transactions rolled back",
		}),
		MilestonesUnlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "milestones_unlocked_total",
			Help:      "Milestone bonuses credited",
		}),
	}

	prometheus.MustRegister(
		m.ActiveMatches,
		m.MatchesCompleted,
		m.MoveLatency,
		m.RakeCollected,
		m.SettlementFailures,
		m.MilestonesUnlocked,
	)

	return m
}

type Monitor struct {
	metrics   *Metrics
	startTime time.Time
	matches   int64
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
	expvar.Publish("matches", expvar.Func(func() interface{} {
		m.mutex.Lock()
		defer m.mutex.Unlock()
		return m.matches
	}))

	go http.ListenAndServe(addr, nil)
}

func (m *Monitor) MatchStarted() {
	m.metrics.ActiveMatches.Inc()
}

func (m *Monitor) MatchCompleted(reason string) {
	m.metrics.ActiveMatches.Dec()
	m.metrics.MatchesCompleted.WithLabelValues(reason).Inc()
	m.mutex.Lock()
	m.matches++
	m.mutex.Unlock()
}

func (m *Monitor) ObserveMoveLatency(duration time.Duration) {
	m.metrics.MoveLatency.Observe(duration.Seconds())
}

func (m *Monitor) AddRake(amount float64) {
	m.metrics.RakeCollected.Add(amount)
}

func (m *Monitor) SettlementFailed() {
	m.metrics.SettlementFailures.Inc()
}

func (m *Monitor) MilestoneUnlocked() {
	m.metrics.MilestonesUnlocked.Inc()
}
