package transform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/RobBa/alphabet-generator/internal/aggregate"
	"github.com/RobBa/alphabet-generator/internal/analyzer"
	"github.com/RobBa/alphabet-generator/internal/encoder"
	"github.com/RobBa/alphabet-generator/internal/errs"
	"github.com/RobBa/alphabet-generator/internal/output"
	"github.com/RobBa/alphabet-generator/internal/window"
)

// Pairwise aggregates the whole input by host and then windows the records
// of every host/peer pair separately, so that windows never mix peers.
//
// With FilterByDestination every pair gets its own block. Otherwise each
// host gets one block whose symbols are renumbered densely from zero in
// order of first appearance. When the schema names a source address only
// that host is converted, into out; otherwise every host is written to its
// own output obtained from Options.HostOutput.
type Pairwise struct {
	opts Options
}

// HostFiles returns a HostOutput that creates "<base>_host_<hash>.txt",
// where hash is the hex xxhash64 of the host address. Addresses may contain
// characters that are not valid in file names, so they are not used as is.
func HostFiles(base string) func(address string) (io.WriteCloser, string, error) {
	return func(address string) (io.WriteCloser, string, error) {
		path := HostFileName(base, address)
		f, err := os.Create(path)
		if err != nil {
			return nil, "", errs.IO("pairwise", err)
		}
		return f, path, nil
	}
}

// HostFileName is the per-host output path for address.
func HostFileName(base, address string) string {
	return fmt.Sprintf("%s_host_%016x.txt", base, xxhash.Sum64String(address))
}

// Run implements Transformer.
func (p *Pairwise) Run(ctx context.Context, src window.LineSource, out io.Writer) (*Result, error) {
	r := newRunner(p.opts, KindPairwise)

	agg, err := aggregate.New(r.schema, r.labels)
	if err != nil {
		return nil, err
	}
	hosts, err := agg.IngestAll(ctx, src)
	if err != nil {
		return r.res, err
	}
	r.logger.Debug("aggregated input", "hosts", len(hosts))

	w, err := window.NewFixed(p.opts.WindowSize, p.opts.WindowStride, window.NewSliceSource(nil))
	if err != nil {
		return nil, err
	}

	if addr := r.schema.SourceAddress(); addr != "" {
		host, ok := hosts[addr]
		if !ok {
			return r.res, errs.Config("pairwise", "source address %s not found in input", addr)
		}
		wr := r.newWriter(out, 0)
		if err := p.writeHost(ctx, r, w, wr, host); err != nil {
			return r.res, err
		}
		return r.res, wr.Flush()
	}

	for _, addr := range aggregate.SortedAddresses(hosts) {
		if err := p.writeHostFile(ctx, r, w, hosts[addr]); err != nil {
			return r.res, err
		}
	}
	return r.res, nil
}

func (p *Pairwise) writeHostFile(ctx context.Context, r *runner, w *window.FixedWindow, host *aggregate.Host) error {
	f, path, err := p.opts.HostOutput(host.Address)
	if err != nil {
		return err
	}
	r.res.Outputs = append(r.res.Outputs, path)

	wr := r.newWriter(f, 0)
	if err := p.writeHost(ctx, r, w, wr, host); err != nil {
		f.Close()
		return err
	}
	if err := wr.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errs.IO("pairwise", err)
	}
	return nil
}

func (p *Pairwise) writeHost(ctx context.Context, r *runner, w *window.FixedWindow, wr *output.Writer, host *aggregate.Host) error {
	if r.schema.FilterByDestination() {
		for _, peer := range host.Peers() {
			block := output.Block{Title: output.PairTitle(host.Address, peer), Features: r.features}
			distinct := analyzer.NewRemapper()
			seqs, err := p.windowPeer(ctx, r, w, host.Peer(peer), func(s encoder.Symbol) encoder.Symbol {
				distinct.Map(s)
				return s
			})
			if err != nil {
				return err
			}
			block.Sequences = seqs
			block.Distinct = distinct.Len()
			if err := p.writeBlock(r, wr, block); err != nil {
				return err
			}
		}
		return nil
	}

	block := output.Block{Title: output.HostTitle(host.Address), Features: r.features}
	dense := analyzer.NewRemapper()
	for _, peer := range host.Peers() {
		seqs, err := p.windowPeer(ctx, r, w, host.Peer(peer), dense.Map)
		if err != nil {
			return err
		}
		block.Sequences = append(block.Sequences, seqs...)
	}
	block.Distinct = dense.Len()
	return p.writeBlock(r, wr, block)
}

// windowPeer windows the records of one peer and encodes them. Every
// symbol passes through mapSym before it is stored. Sequences carry the
// peer's highest label.
func (p *Pairwise) windowPeer(ctx context.Context, r *runner, w *window.FixedWindow, pf *aggregate.PeerFlows, mapSym func(encoder.Symbol) encoder.Symbol) ([]output.Sequence, error) {
	es := newEncodedSource(window.NewSliceSource(pf.Records), r, p.opts.WindowSize)
	w.Reset(es)

	var seqs []output.Sequence
	for {
		lines, err := w.Pull(ctx)
		if errors.Is(err, io.EOF) {
			return seqs, nil
		}
		if err != nil {
			return nil, err
		}

		seq, ok := r.sequenceOf(es.last(len(lines)), mapSym)
		if !ok {
			continue
		}
		seq.Label = pf.MaxLabel
		seqs = append(seqs, seq)
	}
}

func (p *Pairwise) writeBlock(r *runner, wr *output.Writer, block output.Block) error {
	if err := wr.WriteBlock(block); err != nil {
		return err
	}
	for _, seq := range block.Sequences {
		r.count(seq)
	}
	return nil
}
