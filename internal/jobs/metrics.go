package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/odyssey-core/internal/provisioning"
)

// Outcome classifies how a task delivery ended.
type Outcome string

const (
	// OutcomeProcessed means the task reached its goal.
	OutcomeProcessed Outcome = "processed"
	// OutcomeRetry means the task was handed back for redelivery.
	OutcomeRetry Outcome = "retry"
	// OutcomeExhausted means retries ran out and the task was settled as failed.
	OutcomeExhausted Outcome = "exhausted"
	// OutcomeSkipped means the task can never succeed and was dropped.
	OutcomeSkipped Outcome = "skipped"
)

// Metrics holds worker collectors.
type Metrics struct {
	deliveries   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	provisioning *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers collectors on registerer, or once on the default
// registerer when nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = register(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return register(registerer)
}

// Delivery times one task delivery.
type Delivery struct {
	metrics *Metrics
	task    string
	start   time.Time
}

// Begin starts timing a delivery of task. Safe on nil Metrics.
func (m *Metrics) Begin(task string) *Delivery {
	return &Delivery{metrics: m, task: task, start: time.Now()}
}

// Finish records the outcome and elapsed time.
func (d *Delivery) Finish(outcome Outcome) {
	if d == nil || d.metrics == nil {
		return
	}
	d.metrics.deliveries.WithLabelValues(d.task, string(outcome)).Inc()
	d.metrics.duration.WithLabelValues(d.task).Observe(time.Since(d.start).Seconds())
}

// ObserveProvisioning counts terminal provisioning outcomes.
func (m *Metrics) ObserveProvisioning(state provisioning.State, code provisioning.ErrorCode) {
	if m == nil {
		return
	}
	c := string(code)
	if c == "" {
		c = "none"
	}
	m.provisioning.WithLabelValues(string(state), c).Inc()
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_task_deliveries_total",
			Help: "Task deliveries handled by the worker, by task type and outcome.",
		}, []string{"task", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odyssey_task_duration_seconds",
			Help:    "Time spent handling one task delivery.",
			Buckets: prometheus.DefBuckets,
		}, []string{"task"}),
		provisioning: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_provisioning_requests_total",
			Help: "Provisioning requests reaching a terminal state, by state and error code.",
		}, []string{"state", "code"}),
	}
	registerer.MustRegister(m.deliveries, m.duration, m.provisioning)
	return m
}
