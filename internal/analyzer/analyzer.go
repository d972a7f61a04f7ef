// Package analyzer tallies the symbols produced by a conversion run:
// how many distinct symbols appeared, the largest one, the most frequent
// ones and how sequences spread over labels. It also provides the dense
// renumbering used for per-host blocks.
package analyzer

import (
	"sort"

	"github.com/RobBa/alphabet-generator/internal/encoder"
)

// Stats holds aggregate statistics for the symbols of a run.
type Stats struct {
	TotalSymbols   int
	TotalSequences int
	Distinct       int
	MaxSymbol      uint64
	TopSymbols     []SymbolCount
	Labels         []LabelCount
}

// SymbolCount tracks a symbol and how often it appears.
type SymbolCount struct {
	Symbol encoder.Symbol
	Count  int
}

// LabelCount is the share of sequences carrying one label code.
type LabelCount struct {
	Label   int
	Count   int
	Percent float64
}

// Tally counts symbols and sequences as they are emitted.
type Tally struct {
	counts    map[encoder.Symbol]int
	labels    map[int]int
	symbols   int
	sequences int
	max       encoder.Symbol
}

// NewTally creates an empty Tally.
func NewTally() *Tally {
	return &Tally{
		counts: make(map[encoder.Symbol]int),
		labels: make(map[int]int),
	}
}

// Add counts individual symbols.
func (t *Tally) Add(syms ...encoder.Symbol) {
	for _, s := range syms {
		t.counts[s]++
		t.symbols++
		if s > t.max {
			t.max = s
		}
	}
}

// AddSequence counts one emitted sequence and its symbols.
func (t *Tally) AddSequence(label int, syms []encoder.Symbol) {
	t.sequences++
	t.labels[label]++
	t.Add(syms...)
}

// Distinct returns the number of different symbols seen.
func (t *Tally) Distinct() int { return len(t.counts) }

// Max returns the largest symbol seen, or 0.
func (t *Tally) Max() encoder.Symbol { return t.max }

// Sequences returns the number of sequences counted.
func (t *Tally) Sequences() int { return t.sequences }

// Stats summarises the tally with the topN most frequent symbols.
func (t *Tally) Stats(topN int) Stats {
	stats := Stats{
		TotalSymbols:   t.symbols,
		TotalSequences: t.sequences,
		Distinct:       len(t.counts),
		MaxSymbol:      uint64(t.max),
	}
	if t.symbols == 0 {
		return stats
	}

	stats.TopSymbols = topSymbols(t.counts, topN)

	for label, count := range t.labels {
		stats.Labels = append(stats.Labels, LabelCount{
			Label:   label,
			Count:   count,
			Percent: float64(count) * 100 / float64(t.sequences),
		})
	}
	sort.Slice(stats.Labels, func(i, j int) bool {
		return stats.Labels[i].Label < stats.Labels[j].Label
	})

	return stats
}

// topSymbols extracts the N most frequent symbols. Equal counts are
// ordered by symbol so the result is stable.
func topSymbols(counts map[encoder.Symbol]int, n int) []SymbolCount {
	syms := make([]SymbolCount, 0, len(counts))
	for sym, count := range counts {
		syms = append(syms, SymbolCount{Symbol: sym, Count: count})
	}

	sort.Slice(syms, func(i, j int) bool {
		if syms[i].Count != syms[j].Count {
			return syms[i].Count > syms[j].Count
		}
		return syms[i].Symbol < syms[j].Symbol
	})

	if n >= 0 && len(syms) > n {
		syms = syms[:n]
	}

	return syms
}

// Remapper renumbers symbols densely from zero in order of first sight.
type Remapper struct {
	ids map[encoder.Symbol]encoder.Symbol
}

// NewRemapper creates an empty Remapper.
func NewRemapper() *Remapper {
	return &Remapper{ids: make(map[encoder.Symbol]encoder.Symbol)}
}

// Map returns the dense id of sym, assigning the next one on first sight.
func (r *Remapper) Map(sym encoder.Symbol) encoder.Symbol {
	if id, ok := r.ids[sym]; ok {
		return id
	}
	id := encoder.Symbol(len(r.ids))
	r.ids[sym] = id
	return id
}

// Len returns the number of symbols mapped so far.
func (r *Remapper) Len() int { return len(r.ids) }
