// Package metrics exposes job and staging collectors for prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voicediary"

// Collectors holds the registered job and staging metrics.
type Collectors struct {
	registry    *prometheus.Registry
	jobs        *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	staging     *prometheus.GaugeVec
}

// New registers the voicediary collectors plus process and Go runtime
// collectors on a fresh registry.
func New() (*Collectors, error) {
	reg := prometheus.NewRegistry()
	c := &Collectors{
		registry: reg,
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Attachments handled, by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Wall-clock time from acceptance to final reply.",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"mode"},
		),
		staging: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "staging_bytes",
				Help:      "Bytes on disk under each staging directory.",
			},
			[]string{"dir"},
		),
	}

	for _, collector := range []prometheus.Collector{
		c.jobs,
		c.jobDuration,
		c.staging,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveJob counts one finished job. Skipped attachments report a zero
// elapsed time and are not added to the duration histogram.
func (c *Collectors) ObserveJob(mode, outcome string, elapsed time.Duration) {
	c.jobs.WithLabelValues(mode, outcome).Inc()
	if elapsed > 0 {
		c.jobDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	}
}

// SetStagingUsage replaces the per-directory byte gauges.
func (c *Collectors) SetStagingUsage(bytesByDir map[string]int64) {
	for dir, size := range bytesByDir {
		c.staging.WithLabelValues(dir).Set(float64(size))
	}
}

// Registry returns the underlying registry.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
