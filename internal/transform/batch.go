package transform

import (
	"context"
	"errors"
	"io"

	"github.com/RobBa/alphabet-generator/internal/encoder"
	"github.com/RobBa/alphabet-generator/internal/output"
	"github.com/RobBa/alphabet-generator/internal/window"
)

// Batch encodes fixed, overlapping windows of records. Windows are cut from
// the raw lines first; records removed by the source-address filter or
// skipped under the skip policy are then dropped from their window, and a
// window left without records is not written. Each sequence is labelled with
// the highest label code of its window.
//
// Over bounded input the sequences are buffered and written after a
// "<sequenceCount> <maxSymbol>" header. When following a growing file the
// header is "0 0", sequences are written as they are produced with a flush
// every FlushEvery sequences, and the run ends when ctx is cancelled.
//
// Augmented output describes single records, so it ignores the window
// geometry and writes one entry per record.
type Batch struct {
	opts Options
}

// Run implements Transformer.
func (b *Batch) Run(ctx context.Context, src window.LineSource, out io.Writer) (*Result, error) {
	r := newRunner(b.opts, KindBatch)

	if b.opts.Format == output.FormatAugmented {
		return r.res, runAugmented(ctx, r, src, out, b.opts.Follow)
	}

	es := newEncodedSource(src, r, b.opts.WindowSize)
	w, err := window.NewFixed(b.opts.WindowSize, b.opts.WindowStride, es)
	if err != nil {
		return nil, err
	}

	if b.opts.Follow {
		return r.res, b.follow(ctx, r, w, es, out)
	}

	var body []output.Sequence
	for {
		lines, err := w.Pull(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return r.res, err
		}
		if seq, ok := r.sequenceOf(es.last(len(lines)), nil); ok {
			body = append(body, seq)
		}
	}

	wr := r.newWriter(out, 0)
	var highest encoder.Symbol
	for _, seq := range body {
		for _, s := range seq.Symbols {
			highest = max(highest, s)
		}
	}
	if err := wr.WriteHeader(len(body), uint64(highest)); err != nil {
		return r.res, err
	}
	for _, seq := range body {
		if err := r.emit(wr, seq); err != nil {
			return r.res, err
		}
	}
	r.logger.Debug("batch conversion finished", "records", r.res.Records, "sequences", len(body))
	return r.res, wr.Flush()
}

func (b *Batch) follow(ctx context.Context, r *runner, w *window.FixedWindow, es *encodedSource, out io.Writer) error {
	wr := r.newWriter(out, b.opts.FlushEvery)
	if err := wr.WriteHeader(0, 0); err != nil {
		return err
	}
	if err := wr.Flush(); err != nil {
		return err
	}

	for {
		lines, err := w.Pull(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if stopped(ctx, err) {
				r.logger.Info("shutting down", "records", r.res.Records)
				break
			}
			return err
		}
		seq, ok := r.sequenceOf(es.last(len(lines)), nil)
		if !ok {
			continue
		}
		if err := r.emit(wr, seq); err != nil {
			return err
		}
	}
	return wr.Flush()
}

// runAugmented writes one augmented entry per record until src is exhausted
// or, when following, until ctx is cancelled.
func runAugmented(ctx context.Context, r *runner, src window.LineSource, out io.Writer, follow bool) error {
	flushEvery := 0
	if follow {
		flushEvery = r.opts.FlushEvery
	}
	wr := r.newWriter(out, flushEvery)
	w := window.NewSingle(src)

	for {
		line, err := w.PullOne(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if stopped(ctx, err) {
				break
			}
			return err
		}

		rec, ok, err := r.encode(line)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := r.augmented(wr, rec); err != nil {
			return err
		}
	}
	return wr.Flush()
}
