package recharge

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsSink receives worker outcome counts. One bound instance per process
// gives the aggregate view; tests inject a Collector and read it back.
type MetricsSink interface {
	// IncAttempt counts every attempt that passed the gate checks.
	IncAttempt()
	IncSuccess()
	IncFailure(reason string)
	// IncSkip counts gate-check short circuits; these never produce log rows.
	IncSkip(reason string)
}

// Collector is an in-memory MetricsSink.
type Collector struct {
	mu       sync.Mutex
	attempts int64
	success  int64
	failures map[string]int64
	skips    map[string]int64
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		failures: make(map[string]int64),
		skips:    make(map[string]int64),
	}
}

func (c *Collector) IncAttempt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
}

func (c *Collector) IncSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.success++
}

func (c *Collector) IncFailure(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[reason]++
}

func (c *Collector) IncSkip(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skips[reason]++
}

// Summary is a point-in-time snapshot of the collector.
type Summary struct {
	Attempts  int64
	Successes int64
	Failures  int64
	Skips     int64
	ByFailure map[string]int64
	BySkip    map[string]int64
}

// Summary returns a copy of the counters.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{
		Attempts:  c.attempts,
		Successes: c.success,
		ByFailure: make(map[string]int64, len(c.failures)),
		BySkip:    make(map[string]int64, len(c.skips)),
	}
	for k, v := range c.failures {
		s.Failures += v
		s.ByFailure[k] = v
	}
	for k, v := range c.skips {
		s.Skips += v
		s.BySkip[k] = v
	}
	return s
}

// PrometheusSink exports worker counters to a prometheus registry.
type PrometheusSink struct {
	attempts  prometheus.Counter
	successes prometheus.Counter
	failures  *prometheus.CounterVec
	skips     *prometheus.CounterVec
}

// NewPrometheusSink registers the worker metrics on the given registerer.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	factory := promauto.With(reg)
	return &PrometheusSink{
		attempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "autorecharge_attempts_total",
			Help: "Recharge attempts that passed gate checks.",
		}),
		successes: factory.NewCounter(prometheus.CounterOpts{
			Name: "autorecharge_successes_total",
			Help: "Recharge attempts that credited the wallet.",
		}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autorecharge_failures_total",
			Help: "Failed recharge attempts by reason.",
		}, []string{"reason"}),
		skips: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autorecharge_skips_total",
			Help: "Companies skipped by gate checks, by reason.",
		}, []string{"reason"}),
	}
}

func (p *PrometheusSink) IncAttempt()              { p.attempts.Inc() }
func (p *PrometheusSink) IncSuccess()              { p.successes.Inc() }
func (p *PrometheusSink) IncFailure(reason string) { p.failures.WithLabelValues(reason).Inc() }
func (p *PrometheusSink) IncSkip(reason string)    { p.skips.WithLabelValues(reason).Inc() }
