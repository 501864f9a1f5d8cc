// Package metrics tracks rolling step-latency and throughput stats and
// exposes them both as an in-process snapshot and as a Prometheus
// /metrics endpoint.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Snapshot is a point-in-time view of the rolling metrics, returned by
// Coordinator.Metrics().
type Snapshot struct {
	TotalSteps      uint64
	MeanStepTime    time.Duration
	P99StepTime     time.Duration
	AgentsPerSecond float64
	LastAgentCount  int
}

const rollingWindow = 256

// Recorder is a rolling window of step wall-times, written only by the
// Coordinator. It is guarded by a mutex that both RecordStep and
// Snapshot take, so a reader waits while a step is being recorded.
type Recorder struct {
	mu         sync.Mutex
	samples    [rollingWindow]time.Duration
	idx        int
	filled     int
	totalSteps uint64
	lastAgents int

	stepHistogram prometheus.Histogram
	stepCounter   prometheus.Counter
	agentGauge    prometheus.Gauge
}

// NewRecorder creates a Recorder and registers its Prometheus
// collectors against the default registry. A later Recorder reuses the
// collectors an earlier one registered.
func NewRecorder() *Recorder {
	register := func(c prometheus.Collector) prometheus.Collector {
		if err := prometheus.Register(c); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				return are.ExistingCollector
			}
			panic(err)
		}
		return c
	}
	return &Recorder{
		stepHistogram: register(prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "orchestrator",
			Name:      "step_duration_seconds",
			Help:      "Wall-clock duration of one simulation tick.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		})).(prometheus.Histogram),
		stepCounter: register(prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orchestrator",
			Name:      "steps_total",
			Help:      "Total number of completed simulation ticks.",
		})).(prometheus.Counter),
		agentGauge: register(prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "orchestrator",
			Name:      "live_agents",
			Help:      "Number of live agents as of the last completed tick.",
		})).(prometheus.Gauge),
	}
}

// RecordStep appends one tick's wall-time and agent count to the
// rolling window.
func (r *Recorder) RecordStep(wallTime time.Duration, agentCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples[r.idx] = wallTime
	r.idx = (r.idx + 1) % rollingWindow
	if r.filled < rollingWindow {
		r.filled++
	}
	r.totalSteps++
	r.lastAgents = agentCount

	r.stepHistogram.Observe(wallTime.Seconds())
	r.stepCounter.Inc()
	r.agentGauge.Set(float64(agentCount))
}

// Snapshot computes the current rolling-window mean and p99.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.filled == 0 {
		return Snapshot{}
	}

	sorted := make([]time.Duration, r.filled)
	copy(sorted, r.samples[:r.filled])
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	var total time.Duration
	for _, s := range sorted {
		total += s
	}
	mean := total / time.Duration(len(sorted))
	p99idx := (len(sorted) * 99) / 100
	if p99idx >= len(sorted) {
		p99idx = len(sorted) - 1
	}

	agentsPerSecond := 0.0
	if mean > 0 {
		agentsPerSecond = float64(r.lastAgents) / mean.Seconds()
	}

	return Snapshot{
		TotalSteps:      r.totalSteps,
		MeanStepTime:    mean,
		P99StepTime:     sorted[p99idx],
		AgentsPerSecond: agentsPerSecond,
		LastAgentCount:  r.lastAgents,
	}
}

// Handler returns the /metrics HTTP handler for Prometheus scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HealthzHandler returns a trivial liveness handler for /healthz.
func HealthzHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}
