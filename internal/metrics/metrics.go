// Package metrics exposes archive and dispatcher activity as Prometheus
// metrics, written to a node-exporter textfile.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/tcarchive/pkg/archive"
)

// Collector holds the metrics of one archive. It implements
// archive.Observer.
type Collector struct {
	registry *prometheus.Registry
	textfile string

	appends       prometheus.Counter
	appendedBytes prometheus.Counter
	faults        *prometheus.CounterVec
	compactions   prometheus.Counter
	compacted     *prometheus.CounterVec
	executed      *prometheus.CounterVec
	archiveBytes  prometheus.Gauge
	spoolPending  prometheus.Gauge
	cycleDuration prometheus.Histogram
}

// New creates a Collector with its own registry. Publish writes to
// textfile; an empty path disables it.
func New(textfile string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		textfile: textfile,
		appends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcarchive_appends_total",
			Help: "Records appended to the archive.",
		}),
		appendedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcarchive_appended_bytes_total",
			Help: "Encoded frame bytes appended to the archive.",
		}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tcarchive_faults_total",
			Help: "Archive faults by kind and operation.",
		}, []string{"kind", "op"}),
		compactions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcarchive_compactions_total",
			Help: "Completed compactions.",
		}),
		compacted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tcarchive_compacted_records_total",
			Help: "Records seen by compaction, by outcome (kept/removed/corrupt).",
		}, []string{"outcome"}),
		executed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tcarchive_executed_total",
			Help: "Due records handed to the executor, by status (success/failed).",
		}, []string{"status"}),
		archiveBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tcarchive_archive_bytes",
			Help: "Archive size at the end of the last cycle.",
		}),
		spoolPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tcarchive_spool_pending",
			Help: "Submissions waiting in the spool at the start of the last cycle.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tcarchive_cycle_duration_seconds",
			Help:    "Duration of one dispatcher cycle.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	c.registry.MustRegister(
		c.appends,
		c.appendedBytes,
		c.faults,
		c.compactions,
		c.compacted,
		c.executed,
		c.archiveBytes,
		c.spoolPending,
		c.cycleDuration,
	)
	return c
}

// Registry returns the registry holding the metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// OnAppend counts one archive append of frameBytes bytes.
func (c *Collector) OnAppend(frameBytes int) {
	c.appends.Inc()
	c.appendedBytes.Add(float64(frameBytes))
}

// OnFault counts one archive fault by kind and operation.
func (c *Collector) OnFault(kind archive.FaultKind, op string) {
	c.faults.WithLabelValues(string(kind), op).Inc()
}

// OnCompact counts one compaction and the records by outcome.
func (c *Collector) OnCompact(res archive.CompactResult) {
	c.compactions.Inc()
	c.compacted.WithLabelValues("kept").Add(float64(res.Kept))
	c.compacted.WithLabelValues("removed").Add(float64(res.Removed))
	c.compacted.WithLabelValues("corrupt").Add(float64(res.Corrupt))
}

// Executed counts one executor call.
func (c *Collector) Executed(ok bool) {
	status := "success"
	if !ok {
		status = "failed"
	}
	c.executed.WithLabelValues(status).Inc()
}

// ArchiveSize records the archive size in bytes.
func (c *Collector) ArchiveSize(n int64) {
	c.archiveBytes.Set(float64(n))
}

// SpoolPending records the number of waiting submissions.
func (c *Collector) SpoolPending(n int) {
	c.spoolPending.Set(float64(n))
}

// Cycle records the duration of one dispatcher cycle.
func (c *Collector) Cycle(d time.Duration) {
	c.cycleDuration.Observe(d.Seconds())
}

// Publish writes the metrics to the configured textfile, if any.
func (c *Collector) Publish() error {
	if c.textfile == "" {
		return nil
	}
	return c.WriteTextfile(c.textfile)
}

// WriteTextfile writes all metrics to path in the text exposition format.
// The file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
