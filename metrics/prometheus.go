package metrics

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "docbroker"

// PrometheusCollector exposes a Collector's snapshot as Prometheus metrics.
// Values are read on scrape; the Collector remains the single source of truth.
type PrometheusCollector struct {
	source *Collector

	opsStarted   *prometheus.Desc
	opsSucceeded *prometheus.Desc
	opsFailed    *prometheus.Desc
	counters     []counterDesc
}

type counterDesc struct {
	desc  *prometheus.Desc
	value func(Snapshot) int64
}

// NewPrometheusCollector wraps c for registration with a prometheus.Registry.
func NewPrometheusCollector(c *Collector) *PrometheusCollector {
	snap := c.Snapshot()
	constLabels := prometheus.Labels{"instance_id": snap.InstanceID}

	counter := func(name, help string, value func(Snapshot) int64) counterDesc {
		return counterDesc{
			desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, constLabels),
			value: value,
		}
	}
	opDesc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, []string{"op"}, constLabels)
	}

	return &PrometheusCollector{
		source:       c,
		opsStarted:   opDesc("operations_started_total", "Public operations started."),
		opsSucceeded: opDesc("operations_succeeded_total", "Public operations that returned a result."),
		opsFailed:    opDesc("operations_failed_total", "Public operations that returned an error."),
		counters: []counterDesc{
			counter("auth_failures_total", "Rejected credentials.", func(s Snapshot) int64 { return s.AuthFailures }),
			counter("engine_dial_attempts_total", "Connection attempts to the conversion engine.", func(s Snapshot) int64 { return s.EngineDialAttempts }),
			counter("engine_dial_failures_total", "Failed connection attempts to the conversion engine.", func(s Snapshot) int64 { return s.EngineDialFailures }),
			counter("engine_connection_lost_total", "Engine connections dropped mid-call.", func(s Snapshot) int64 { return s.EngineConnectionLost }),
			counter("engine_sessions_total", "Document sessions opened on the engine.", func(s Snapshot) int64 { return s.EngineSessions }),
			counter("engine_close_failures_total", "Failed document closes.", func(s Snapshot) int64 { return s.EngineCloseFailures }),
			counter("merge_passes_total", "PDF merge reduction passes.", func(s Snapshot) int64 { return s.MergePasses }),
			counter("merge_batches_total", "PDF merge batches.", func(s Snapshot) int64 { return s.MergeBatches }),
			counter("spool_chunks_written_total", "Upload chunks appended to the spool.", func(s Snapshot) int64 { return s.SpoolChunksWritten }),
			counter("spool_entries_finalized_total", "Spool entries finalized.", func(s Snapshot) int64 { return s.SpoolEntriesFinalized }),
			counter("mirror_uploads_total", "Finalized entries copied to the mirror.", func(s Snapshot) int64 { return s.MirrorUploadSuccess }),
			counter("mirror_upload_failures_total", "Failed mirror copies.", func(s Snapshot) int64 { return s.MirrorUploadFailure }),
			counter("events_published_total", "Completion events delivered.", func(s Snapshot) int64 { return s.EventsPublished }),
			counter("event_publish_failures_total", "Completion events not delivered.", func(s Snapshot) int64 { return s.EventPublishFailure }),
		},
	}
}

// Describe implements prometheus.Collector.
func (p *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.opsStarted
	ch <- p.opsSucceeded
	ch <- p.opsFailed
	for _, c := range p.counters {
		ch <- c.desc
	}
}

// Collect implements prometheus.Collector.
func (p *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	snap := p.source.Snapshot()

	emitOps(ch, p.opsStarted, snap.OpsStarted)
	emitOps(ch, p.opsSucceeded, snap.OpsSucceeded)
	emitOps(ch, p.opsFailed, snap.OpsFailed)
	for _, c := range p.counters {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(c.value(snap)))
	}
}

func emitOps(ch chan<- prometheus.Metric, desc *prometheus.Desc, counts map[string]int64) {
	ops := make([]string, 0, len(counts))
	for op := range counts {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(counts[op]), op)
	}
}

var _ prometheus.Collector = (*PrometheusCollector)(nil)
