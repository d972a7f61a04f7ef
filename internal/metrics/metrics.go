// Package metrics counts what a conversion run did and exports it in the
// Prometheus text format, for node_exporter's textfile collector or for
// plain inspection.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/RobBa/alphabet-generator/internal/errs"
)

const namespace = "alphagen"

// Record outcomes used as the status label of records_total.
const (
	StatusEncoded  = "encoded"
	StatusFiltered = "filtered"
	StatusSkipped  = "skipped"
)

// Run holds the metrics of one run. A nil *Run is valid and records nothing.
type Run struct {
	registry *prometheus.Registry

	records        *prometheus.CounterVec // By status
	sequences      prometheus.Counter
	symbols        prometheus.Counter
	flushes        prometheus.Counter
	maxSymbol      prometheus.Gauge
	alphabetSpace  prometheus.Gauge
	encodeDuration prometheus.Histogram
}

// New creates the metrics of a run of the given transformer on a private
// registry.
func New(transformer string) (*Run, error) {
	labels := prometheus.Labels{"transformer": transformer}

	r := &Run{
		registry: prometheus.NewRegistry(),

		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "records_total",
			Help:        "Records read, by outcome",
			ConstLabels: labels,
		}, []string{"status"}), // status: encoded, filtered, skipped

		sequences: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "sequences_total",
			Help:        "Sequences or blocks written",
			ConstLabels: labels,
		}),

		symbols: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "symbols_total",
			Help:        "Symbols written",
			ConstLabels: labels,
		}),

		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "flushes_total",
			Help:        "Output flushes",
			ConstLabels: labels,
		}),

		maxSymbol: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "max_symbol",
			Help:        "Largest symbol written",
			ConstLabels: labels,
		}),

		alphabetSpace: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "alphabet_space_size",
			Help:        "Number of symbols the schema allows",
			ConstLabels: labels,
		}),

		encodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "encode_duration_seconds",
			Help:        "Time to encode one record",
			ConstLabels: labels,
			Buckets:     []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.001}, // 1µs to 1ms
		}),
	}

	collectors := []prometheus.Collector{
		r.records, r.sequences, r.symbols, r.flushes,
		r.maxSymbol, r.alphabetSpace, r.encodeDuration,
	}
	for _, c := range collectors {
		if err := r.registry.Register(c); err != nil {
			return nil, errs.Config("metrics", "register collector: %v", err)
		}
	}

	return r, nil
}

// Registry exposes the underlying registry.
func (r *Run) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Record counts one record with the given status.
func (r *Run) Record(status string) {
	if r == nil {
		return
	}
	r.records.WithLabelValues(status).Inc()
}

// Encoded counts an encoded record and how long encoding took.
func (r *Run) Encoded(d time.Duration) {
	if r == nil {
		return
	}
	r.records.WithLabelValues(StatusEncoded).Inc()
	r.encodeDuration.Observe(d.Seconds())
}

// Sequence counts one written sequence of n symbols; max is the largest
// symbol written so far.
func (r *Run) Sequence(n int, max uint64) {
	if r == nil {
		return
	}
	r.sequences.Inc()
	r.symbols.Add(float64(n))
	r.SetMaxSymbol(max)
}

// SetMaxSymbol sets the max_symbol gauge.
func (r *Run) SetMaxSymbol(max uint64) {
	if r == nil {
		return
	}
	r.maxSymbol.Set(float64(max))
}

// Flush counts one output flush.
func (r *Run) Flush() {
	if r == nil {
		return
	}
	r.flushes.Inc()
}

// SetAlphabetSpace records the schema's alphabet-space size.
func (r *Run) SetAlphabetSpace(n uint64) {
	if r == nil {
		return
	}
	r.alphabetSpace.Set(float64(n))
}

// WriteFile writes the metrics to path in the text exposition format. The
// file is replaced atomically. An empty path writes nothing.
func (r *Run) WriteFile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return errs.IO("metrics", err)
	}
	return nil
}
