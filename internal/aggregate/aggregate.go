// Package aggregate groups flow records by the endpoints that exchanged them.
//
// The pairwise conversion reads its whole input up front: every record is
// filed under its source address and, within that host, under its
// destination. Each source/destination pair keeps its records in input order
// together with the highest label code seen for the pair.
package aggregate

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"

	"github.com/RobBa/alphabet-generator/internal/errs"
	"github.com/RobBa/alphabet-generator/internal/parser"
	"github.com/RobBa/alphabet-generator/internal/schema"
	"github.com/RobBa/alphabet-generator/internal/window"
)

// PeerFlows holds the records one host sent to one peer.
type PeerFlows struct {
	MaxLabel int
	Records  []string
}

// Host collects the flows of one source address.
type Host struct {
	Address string
	peers   map[string]*PeerFlows
}

func newHost(address string) *Host {
	return &Host{Address: address, peers: make(map[string]*PeerFlows)}
}

// Peer returns the flows sent to address, or nil.
func (h *Host) Peer(address string) *PeerFlows {
	return h.peers[address]
}

// Peers returns the peer addresses in sorted order.
func (h *Host) Peers() []string {
	out := make([]string, 0, len(h.peers))
	for p := range h.peers {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Aggregator files records into hosts.
type Aggregator struct {
	schema *schema.Schema
	parser *parser.Parser
	labels *schema.LabelVocabulary
	hosts  map[string]*Host
	line   int
}

// New creates an Aggregator. The schema must name both a source and a
// destination column. Label codes are drawn from labels, which may be nil
// when the schema has no label column.
func New(s *schema.Schema, labels *schema.LabelVocabulary) (*Aggregator, error) {
	if s.SourceIndex() == schema.Unset || s.DestinationIndex() == schema.Unset {
		return nil, errs.Config("aggregate", "source and destination columns are required (SrcIndex, DstIndex)")
	}
	if labels == nil {
		labels = s.NewLabelVocabulary()
	}
	return &Aggregator{
		schema: s,
		parser: parser.New(s.Delimiter()),
		labels: labels,
		hosts:  make(map[string]*Host),
	}, nil
}

// Add files one raw record. Blank lines are ignored.
func (a *Aggregator) Add(line string) error {
	a.line++
	if strings.TrimSpace(line) == "" {
		return nil
	}

	fields := a.parser.Split(line)
	src, ok := parser.Field(fields, a.schema.SourceIndex())
	if !ok {
		return a.missing("source", a.schema.SourceIndex(), len(fields))
	}
	dst, ok := parser.Field(fields, a.schema.DestinationIndex())
	if !ok {
		return a.missing("destination", a.schema.DestinationIndex(), len(fields))
	}

	label := 0
	if a.schema.HasLabel() {
		raw, ok := parser.Field(fields, a.schema.LabelIndex())
		if !ok {
			return a.missing("label", a.schema.LabelIndex(), len(fields))
		}
		label = a.labels.Code(raw)
	}

	host, ok := a.hosts[src]
	if !ok {
		host = newHost(src)
		a.hosts[src] = host
	}
	pf, ok := host.peers[dst]
	if !ok {
		pf = &PeerFlows{}
		host.peers[dst] = pf
	}
	pf.Records = append(pf.Records, line)
	if label > pf.MaxLabel {
		pf.MaxLabel = label
	}
	return nil
}

func (a *Aggregator) missing(what string, column, have int) error {
	return errs.Encoding("aggregate", errs.ErrMissingRequiredColumn,
		"line %d: %s column %d, record has %d fields", a.line, what, column, have)
}

// IngestAll consumes src to its end and returns the hosts seen so far.
func (a *Aggregator) IngestAll(ctx context.Context, src window.LineSource) (map[string]*Host, error) {
	for {
		line, err := src.ReadLine(ctx)
		if errors.Is(err, io.EOF) {
			return a.hosts, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errs.IO("aggregate", err)
		}
		if err := a.Add(line); err != nil {
			return nil, err
		}
	}
}

// SortedAddresses returns the host addresses in sorted order.
func SortedAddresses(hosts map[string]*Host) []string {
	out := make([]string, 0, len(hosts))
	for addr := range hosts {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}
