// Package transform drives a conversion run: it pulls records through a
// window or the host aggregator, encodes them and hands the resulting
// sequences to an output writer.
//
// Three drivers exist. Batch groups records into fixed overlapping windows,
// either over bounded files or over a file that is still growing. Streaming
// reads one record at a time from a growing file and regroups records into
// batches, optionally per destination. Pairwise aggregates the whole input
// by host first and writes one block per host or per host/peer pair.
package transform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/RobBa/alphabet-generator/internal/analyzer"
	"github.com/RobBa/alphabet-generator/internal/config"
	"github.com/RobBa/alphabet-generator/internal/encoder"
	"github.com/RobBa/alphabet-generator/internal/errs"
	"github.com/RobBa/alphabet-generator/internal/metrics"
	"github.com/RobBa/alphabet-generator/internal/output"
	"github.com/RobBa/alphabet-generator/internal/parser"
	"github.com/RobBa/alphabet-generator/internal/schema"
	"github.com/RobBa/alphabet-generator/internal/window"
)

// Kind selects a driver.
type Kind string

const (
	KindBatch     Kind = "batch"
	KindStreaming Kind = "streaming"
	KindPairwise  Kind = "pairwise"
)

// ParseKind converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(s)); k {
	case KindBatch, KindStreaming, KindPairwise:
		return k, nil
	default:
		return "", errs.Config("transform", "unknown transformer %q (must be 'batch', 'streaming' or 'pairwise')", s)
	}
}

// Options configures a driver.
type Options struct {
	Schema       *schema.Schema
	Format       output.Format
	WindowSize   int
	WindowStride int
	FlushEvery   int
	Policy       config.ErrorPolicy
	Follow       bool // the input is a growing file; only Batch looks at it
	Logger       *slog.Logger
	Metrics      *metrics.Run

	// HostOutput opens the output of one host in pairwise conversion when
	// no source address is configured. Defaults to HostFiles("alphagen").
	HostOutput func(address string) (io.WriteCloser, string, error)
}

// Result describes a finished run.
type Result struct {
	Records  int
	Filtered int
	Skipped  int
	Tally    *analyzer.Tally
	Outputs  []string // files written besides the main output
}

// Transformer converts the records of src and writes them to out.
type Transformer interface {
	Run(ctx context.Context, src window.LineSource, out io.Writer) (*Result, error)
}

// New returns the driver of the given kind.
func New(kind Kind, opts Options) (Transformer, error) {
	if opts.Schema == nil {
		return nil, errs.Config("transform", "no schema")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Format == "" {
		opts.Format = output.FormatAbbadingo
	}

	switch kind {
	case KindBatch:
		if _, err := window.NewFixed(opts.WindowSize, opts.WindowStride, nil); err != nil {
			return nil, err
		}
		return &Batch{opts: opts}, nil
	case KindStreaming:
		if opts.Schema.FilterByDestination() && opts.Schema.DestinationIndex() == schema.Unset {
			return nil, errs.Config("transform", "FilterByDestination needs DstIndex")
		}
		return &Streaming{opts: opts}, nil
	case KindPairwise:
		if _, err := window.NewFixed(opts.WindowSize, opts.WindowStride, nil); err != nil {
			return nil, err
		}
		if opts.Format != output.FormatAbbadingo {
			return nil, errs.Config("transform", "pairwise conversion only writes abbadingo blocks")
		}
		if opts.Schema.SourceIndex() == schema.Unset || opts.Schema.DestinationIndex() == schema.Unset {
			return nil, errs.Config("transform", "pairwise conversion needs SrcIndex and DstIndex")
		}
		if opts.HostOutput == nil {
			opts.HostOutput = HostFiles("alphagen")
		}
		return &Pairwise{opts: opts}, nil
	default:
		return nil, errs.Config("transform", "unknown transformer %q", kind)
	}
}

// record is one encoded input line.
type record struct {
	symbol   encoder.Symbol
	label    int
	flowType string
	src      string
	dst      string
}

// runner holds the state shared by all drivers for one run.
type runner struct {
	opts     Options
	schema   *schema.Schema
	enc      *encoder.Encoder
	labels   *schema.LabelVocabulary
	logger   *slog.Logger
	metrics  *metrics.Run
	features []string
	needDst  bool // records are grouped by destination
	res      *Result
}

func newRunner(opts Options, driver Kind) *runner {
	opts.Metrics.SetAlphabetSpace(opts.Schema.AlphabetSpaceSize())
	return &runner{
		opts:     opts,
		schema:   opts.Schema,
		enc:      encoder.New(opts.Schema),
		labels:   opts.Schema.NewLabelVocabulary(),
		logger:   opts.Logger.With("transformer", string(driver)),
		metrics:  opts.Metrics,
		features: opts.Schema.FeatureNames(),
		needDst:  driver == KindStreaming && opts.Schema.FilterByDestination(),
		res:      &Result{Tally: analyzer.NewTally()},
	}
}

// newWriter creates the output writer and hooks flushes into the metrics.
func (r *runner) newWriter(out io.Writer, flushEvery int) *output.Writer {
	wr := output.New(out, r.opts.Format, flushEvery)
	wr.OnFlush(r.metrics.Flush)
	return wr
}

// encode turns one line into a record. It reports false when the record
// was filtered out or skipped under the skip policy.
func (r *runner) encode(line string) (record, bool, error) {
	r.res.Records++
	fields := r.enc.Split(line)

	var (
		rec    record
		hasSrc bool
		hasDst bool
	)
	rec.src, hasSrc = parser.Field(fields, r.schema.SourceIndex())
	rec.dst, hasDst = parser.Field(fields, r.schema.DestinationIndex())
	if !hasSrc && r.schema.SourceAddress() != "" {
		return rec, false, r.fail(line, missingColumn("source", r.schema.SourceIndex(), len(fields)))
	}
	if !hasDst && r.needDst {
		return rec, false, r.fail(line, missingColumn("destination", r.schema.DestinationIndex(), len(fields)))
	}

	if addr := r.schema.SourceAddress(); addr != "" && rec.src != addr {
		r.res.Filtered++
		r.metrics.Record(metrics.StatusFiltered)
		return rec, false, nil
	}

	start := time.Now()
	sym, err := r.enc.Encode(fields)
	if err == nil && r.schema.HasLabel() {
		raw, ok := parser.Field(fields, r.schema.LabelIndex())
		if !ok {
			err = missingColumn("label", r.schema.LabelIndex(), len(fields))
		} else {
			rec.label = r.labels.Code(raw)
			rec.flowType = raw
		}
	}
	if err != nil {
		return rec, false, r.fail(line, err)
	}
	r.metrics.Encoded(time.Since(start))

	rec.symbol = sym
	return rec, true, nil
}

func missingColumn(what string, column, have int) error {
	return errs.Encoding("encode", errs.ErrMissingRequiredColumn,
		"%s column %d, record has %d fields", what, column, have)
}

// fail applies the error policy to a record that could not be encoded.
func (r *runner) fail(line string, err error) error {
	if r.opts.Policy == config.PolicySkip && errs.Is(err, errs.KindEncoding) {
		r.res.Skipped++
		r.metrics.Record(metrics.StatusSkipped)
		r.logger.Warn("skipping record", "record", r.res.Records, "line", line, "error", err)
		return nil
	}
	return fmt.Errorf("record %d: %w", r.res.Records, err)
}

// sequence builds an output sequence from symbols and the label code.
func (r *runner) sequence(label int, syms []encoder.Symbol) output.Sequence {
	return output.Sequence{Label: label, Labelled: r.schema.HasLabel(), Symbols: syms}
}

// emit writes a sequence and counts it.
func (r *runner) emit(wr *output.Writer, seq output.Sequence) error {
	if err := wr.WriteSequence(seq); err != nil {
		return err
	}
	r.count(seq)
	return nil
}

func (r *runner) count(seq output.Sequence) {
	r.res.Tally.AddSequence(seq.Label, seq.Symbols)
	r.metrics.Sequence(len(seq.Symbols), uint64(r.res.Tally.Max()))
}

// augmented writes one augmented entry for rec.
func (r *runner) augmented(wr *output.Writer, rec record) error {
	err := wr.WriteAugmented(output.AugmentedEntry{
		Source:      rec.src,
		Destination: rec.dst,
		Symbol:      rec.symbol,
		Features:    r.features,
		FlowType:    rec.flowType,
	})
	if err != nil {
		return err
	}
	r.count(r.sequence(rec.label, []encoder.Symbol{rec.symbol}))
	return nil
}

// stopped reports whether err only means the run was asked to stop.
func stopped(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// encodedSource encodes lines as a window reads them, so that overlapping
// windows never encode a record twice. Every non-blank line keeps its place
// in the window. Lines removed by the source filter or skipped under the
// skip policy are left out only when a window becomes a sequence.
//
// A FixedWindow always ends with the line it read last, so the records of a
// window of n lines are the last n lines read here.
type encodedSource struct {
	src    window.LineSource
	r      *runner
	keep   int
	recent []encoded
}

// encoded is one line read through an encodedSource. ok is false when the
// line produced no symbol.
type encoded struct {
	rec record
	ok  bool
}

func newEncodedSource(src window.LineSource, r *runner, keep int) *encodedSource {
	return &encodedSource{src: src, r: r, keep: keep, recent: make([]encoded, 0, keep+1)}
}

// ReadLine implements window.LineSource.
func (s *encodedSource) ReadLine(ctx context.Context) (string, error) {
	for {
		line, err := s.src.ReadLine(ctx)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		rec, ok, err := s.r.encode(line)
		if err != nil {
			return "", err
		}

		s.recent = append(s.recent, encoded{rec: rec, ok: ok})
		if len(s.recent) > s.keep {
			n := copy(s.recent, s.recent[len(s.recent)-s.keep:])
			s.recent = s.recent[:n]
		}
		return line, nil
	}
}

// last returns the lines read most recently, n of them. The slice is only
// valid until the next read.
func (s *encodedSource) last(n int) []encoded {
	return s.recent[len(s.recent)-n:]
}

// sequenceOf builds the sequence of a window from its encoded lines. Its
// label is the highest label code among them. It reports false when no line
// of the window produced a symbol.
func (r *runner) sequenceOf(lines []encoded, mapSym func(encoder.Symbol) encoder.Symbol) (output.Sequence, bool) {
	syms := make([]encoder.Symbol, 0, len(lines))
	label := 0
	for _, l := range lines {
		if !l.ok {
			continue
		}
		sym := l.rec.symbol
		if mapSym != nil {
			sym = mapSym(sym)
		}
		syms = append(syms, sym)
		label = max(label, l.rec.label)
	}
	return r.sequence(label, syms), len(syms) > 0
}
