package transform

import (
	"context"
	"errors"
	"io"
	"sort"

	"github.com/RobBa/alphabet-generator/internal/encoder"
	"github.com/RobBa/alphabet-generator/internal/output"
	"github.com/RobBa/alphabet-generator/internal/window"
)

// Streaming reads a growing file one record at a time and collects
// BatchSize encoded records before writing them. With FilterByDestination
// each batch is split per destination, in sorted order, and every
// destination gets its own sequence labelled with its highest label code.
// Otherwise the batch is written as a single sequence.
//
// The output starts with a "0 0" header. A partial batch is written when the
// source ends or ctx is cancelled.
type Streaming struct {
	opts Options
}

// Run implements Transformer.
func (s *Streaming) Run(ctx context.Context, src window.LineSource, out io.Writer) (*Result, error) {
	r := newRunner(s.opts, KindStreaming)

	if s.opts.Format == output.FormatAugmented {
		return r.res, runAugmented(ctx, r, src, out, true)
	}

	wr := r.newWriter(out, s.opts.FlushEvery)
	if err := wr.WriteHeader(0, 0); err != nil {
		return r.res, err
	}
	if err := wr.Flush(); err != nil {
		return r.res, err
	}

	w := window.NewSingle(src)
	size := r.schema.BatchSize()
	batch := make([]record, 0, size)

	for {
		line, err := w.PullOne(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if stopped(ctx, err) {
				r.logger.Info("shutting down", "records", r.res.Records, "pending", len(batch))
				break
			}
			return r.res, err
		}

		rec, ok, err := r.encode(line)
		if err != nil {
			return r.res, err
		}
		if !ok {
			continue
		}

		batch = append(batch, rec)
		if len(batch) < size {
			continue
		}
		if err := s.writeBatch(r, wr, batch); err != nil {
			return r.res, err
		}
		batch = batch[:0]
	}

	if len(batch) > 0 {
		if err := s.writeBatch(r, wr, batch); err != nil {
			return r.res, err
		}
	}
	return r.res, wr.Flush()
}

func (s *Streaming) writeBatch(r *runner, wr *output.Writer, batch []record) error {
	if !r.schema.FilterByDestination() {
		syms := make([]encoder.Symbol, len(batch))
		label := 0
		for i, rec := range batch {
			syms[i] = rec.symbol
			label = max(label, rec.label)
		}
		return r.emit(wr, r.sequence(label, syms))
	}

	type group struct {
		label int
		syms  []encoder.Symbol
	}
	groups := make(map[string]*group)
	for _, rec := range batch {
		g, ok := groups[rec.dst]
		if !ok {
			g = &group{}
			groups[rec.dst] = g
		}
		g.syms = append(g.syms, rec.symbol)
		g.label = max(g.label, rec.label)
	}

	dsts := make([]string, 0, len(groups))
	for dst := range groups {
		dsts = append(dsts, dst)
	}
	sort.Strings(dsts)

	for _, dst := range dsts {
		g := groups[dst]
		if err := r.emit(wr, r.sequence(g.label, g.syms)); err != nil {
			return err
		}
	}
	return nil
}
