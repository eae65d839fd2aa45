package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "minisiem"

// Run holds the counters collected during a single batch run
// Every Run owns a private registry, so parallel runs and tests never collide
type Run struct {
	Registry *prometheus.Registry

	FilesTotal         *prometheus.CounterVec
	RecordsTotal       *prometheus.CounterVec
	EventsTotal        *prometheus.CounterVec
	TimestampFallbacks *prometheus.CounterVec
	RulesTotal         *prometheus.CounterVec
	FindingsTotal      *prometheus.CounterVec
}

// NewRun initializes and registers run metrics
func NewRun() *Run {
	r := &Run{
		Registry: prometheus.NewRegistry(),
		FilesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "files_total",
			Help:      "Number of input files by decoded format.",
		}, []string{"format"}), // format: json, ndjson, csv, raw, error
		RecordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "records_total",
			Help:      "Number of raw records by decoded format.",
		}, []string{"format"}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalize",
			Name:      "events_total",
			Help:      "Number of normalized events by classified source.",
		}, []string{"source"}),
		TimestampFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalize",
			Name:      "timestamp_fallbacks_total",
			Help:      "Number of events whose timestamp was backfilled, by stage.",
		}, []string{"stage"}), // stage: mtime, clock
		RulesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "rules_total",
			Help:      "Number of rules by load or evaluation status.",
		}, []string{"status"}), // status: ok, failed
		FindingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "findings_total",
			Help:      "Number of findings by severity.",
		}, []string{"severity"}),
	}
	r.Registry.MustRegister(
		r.FilesTotal,
		r.RecordsTotal,
		r.EventsTotal,
		r.TimestampFallbacks,
		r.RulesTotal,
		r.FindingsTotal,
	)
	return r
}

// WriteFile dumps the registry in text exposition format, suitable for node_exporter textfile collector
func (r *Run) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, r.Registry)
}
