// Package output renders symbol sequences in the formats understood by
// automaton-learning tools. It supports plain Abbadingo, augmented
// Abbadingo and the per-pair and per-host blocks of pairwise conversion.
package output

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/RobBa/alphabet-generator/internal/encoder"
	"github.com/RobBa/alphabet-generator/internal/errs"
)

// Format represents an output format type.
type Format string

const (
	FormatAbbadingo Format = "abbadingo"
	FormatAugmented Format = "augmented"
)

// ParseFormat converts a string to a Format. The numeric selectors used by
// schema files are accepted too: 0 is Abbadingo and 1 is augmented. An
// empty string selects Abbadingo.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "abbadingo", "plain":
		return FormatAbbadingo, nil
	case "1", "augmented":
		return FormatAugmented, nil
	default:
		return "", errs.Config("output", "unknown output format %q (must be 'abbadingo' or 'augmented')", s)
	}
}

// Sequence is one line of Abbadingo output.
type Sequence struct {
	Label    int
	Labelled bool
	Symbols  []encoder.Symbol
}

// String renders the sequence as "[label ]count s1 s2 ...".
func (s Sequence) String() string {
	var b strings.Builder
	if s.Labelled {
		b.WriteString(strconv.Itoa(s.Label))
		b.WriteByte(' ')
	}
	b.WriteString(strconv.Itoa(len(s.Symbols)))
	for _, sym := range s.Symbols {
		b.WriteByte(' ')
		b.WriteString(strconv.FormatUint(uint64(sym), 10))
	}
	return b.String()
}

// HeaderLine renders the file header "<count> <maxSymbol>".
func HeaderLine(count int, maxSymbol uint64) string {
	return fmt.Sprintf("%d %d", count, maxSymbol)
}

// FeatureString joins feature names the way they appear in augmented
// entries and block headers.
func FeatureString(names []string) string {
	return strings.Join(names, ", ")
}

// AugmentedEntry is one record in augmented Abbadingo.
type AugmentedEntry struct {
	Source      string
	Destination string
	Symbol      encoder.Symbol
	Features    []string
	FlowType    string
}

// String renders "src <-> dst" followed by "symbol:features/flowType".
func (e AugmentedEntry) String() string {
	return fmt.Sprintf("%s <-> %s\n%d:%s/%s", e.Source, e.Destination, e.Symbol, FeatureString(e.Features), e.FlowType)
}

// Block is the output of one host or one host/peer pair.
type Block struct {
	Title     string
	Features  []string
	Distinct  int
	Sequences []Sequence
}

// PairTitle is the block title of a source/destination pair.
func PairTitle(src, dst string) string {
	return src + " <-> " + dst
}

// HostTitle is the block title of a whole host.
func HostTitle(address string) string {
	return "Host address: " + address
}

// String renders the block: title, feature names, the
// "<sequenceCount> <distinctSymbols>" line and one sequence per line.
func (b Block) String() string {
	var sb strings.Builder
	sb.WriteString(b.Title)
	sb.WriteString("\nEncoded features: ")
	sb.WriteString(FeatureString(b.Features))
	sb.WriteByte('\n')
	fmt.Fprintf(&sb, "%d %d\n", len(b.Sequences), b.Distinct)
	for _, seq := range b.Sequences {
		sb.WriteString(seq.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Writer handles writing formatted output. It buffers and flushes after
// every flushEvery entries; zero means only on Flush.
type Writer struct {
	w          *bufio.Writer
	format     Format
	flushEvery int
	entries    int
	onFlush    func()
}

// New creates a new output Writer.
func New(w io.Writer, format Format, flushEvery int) *Writer {
	return &Writer{w: bufio.NewWriter(w), format: format, flushEvery: flushEvery}
}

// OnFlush registers a function called after every successful flush.
func (wr *Writer) OnFlush(fn func()) {
	wr.onFlush = fn
}

// Format returns the configured format.
func (wr *Writer) Format() Format {
	return wr.format
}

// Entries returns the number of entries written so far.
func (wr *Writer) Entries() int {
	return wr.entries
}

// WriteHeader writes the "<count> <maxSymbol>" line. It does not count as
// an entry.
func (wr *Writer) WriteHeader(count int, maxSymbol uint64) error {
	if _, err := fmt.Fprintln(wr.w, HeaderLine(count, maxSymbol)); err != nil {
		return errs.IO("output", err)
	}
	return nil
}

// WriteSequence writes one Abbadingo line.
func (wr *Writer) WriteSequence(seq Sequence) error {
	return wr.entry(seq.String() + "\n")
}

// WriteAugmented writes one augmented entry.
func (wr *Writer) WriteAugmented(e AugmentedEntry) error {
	return wr.entry(e.String() + "\n")
}

// WriteBlock writes a pair or host block.
func (wr *Writer) WriteBlock(b Block) error {
	return wr.entry(b.String())
}

func (wr *Writer) entry(s string) error {
	if _, err := wr.w.WriteString(s); err != nil {
		return errs.IO("output", err)
	}
	wr.entries++
	if wr.flushEvery > 0 && wr.entries%wr.flushEvery == 0 {
		return wr.Flush()
	}
	return nil
}

// Flush writes any buffered output to the underlying writer.
func (wr *Writer) Flush() error {
	if err := wr.w.Flush(); err != nil {
		return errs.IO("output", err)
	}
	if wr.onFlush != nil {
		wr.onFlush()
	}
	return nil
}
