// Package metrics exports curation counters to Prometheus.
package metrics

import (
	"github.com/anatolykoptev/go-imagecurate"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the curation metrics. Register it on a dedicated registry
// for batch runs and flush with WriteTextfile.
type Collector struct {
	outcomes       *prometheus.CounterVec
	writeFailures  prometheus.Counter
	outputBytes    prometheus.Histogram
	budgetUnmet    prometheus.Counter
	normalizeFails prometheus.Counter
	panics         *prometheus.CounterVec
}

// New creates a collector and registers it on reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imagecurate_assets_total",
				Help: "Classified assets by status and reject reason",
			},
			[]string{"status", "reason"},
		),
		writeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imagecurate_write_failures_total",
			Help: "Assets whose copy into a partition failed",
		}),
		outputBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "imagecurate_normalized_bytes",
			Help:    "Encoded size of normalized images in bytes",
			Buckets: prometheus.ExponentialBuckets(4096, 2, 8),
		}),
		budgetUnmet: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imagecurate_budget_unmet_total",
			Help: "Normalized images that still exceed the byte budget",
		}),
		normalizeFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imagecurate_normalize_failures_total",
			Help: "Images that could not be normalized",
		}),
		panics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imagecurate_panics_total",
				Help: "Recovered panics by pipeline stage",
			},
			[]string{"stage"},
		),
	}
	reg.MustRegister(c.outcomes, c.writeFailures, c.outputBytes, c.budgetUnmet, c.normalizeFails, c.panics)
	return c
}

// ObserveOutcome counts a placed asset.
func (c *Collector) ObserveOutcome(o imagecurate.Outcome) {
	c.outcomes.WithLabelValues(string(o.Status), string(o.Reason)).Inc()
	if o.WriteError != "" {
		c.writeFailures.Inc()
	}
}

// ObserveCompression records a normalize result.
func (c *Collector) ObserveCompression(ev imagecurate.CompressionEvent) {
	if ev.Err != nil {
		c.normalizeFails.Inc()
		return
	}
	c.outputBytes.Observe(float64(ev.Bytes))
	if !ev.BudgetMet {
		c.budgetUnmet.Inc()
	}
}

// ObservePanic counts a recovered panic.
func (c *Collector) ObservePanic(stage string, _ any) {
	c.panics.WithLabelValues(stage).Inc()
}

// Attach plugs the collector into the config callbacks, chaining any
// callbacks already set.
func (c *Collector) Attach(cfg *imagecurate.Config) {
	prevOutcome, prevCompressed, prevPanic := cfg.OnOutcome, cfg.OnCompressed, cfg.OnPanic

	cfg.OnOutcome = func(o imagecurate.Outcome) {
		c.ObserveOutcome(o)
		if prevOutcome != nil {
			prevOutcome(o)
		}
	}
	cfg.OnCompressed = func(ev imagecurate.CompressionEvent) {
		c.ObserveCompression(ev)
		if prevCompressed != nil {
			prevCompressed(ev)
		}
	}
	cfg.OnPanic = func(stage string, r any) {
		c.ObservePanic(stage, r)
		if prevPanic != nil {
			prevPanic(stage, r)
		}
	}
}

// WriteTextfile writes every metric gathered by g to path in the text
// exposition format, for the node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
