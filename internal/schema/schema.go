// Package schema describes which fields of a flow record are encoded and how.
//
// A Schema holds an ordered list of features, each either categorical (a fixed
// vocabulary of names) or range-based (ascending bucket upper bounds), plus the
// structural columns used for filtering and aggregation. Schemas are built once
// through a Builder and are immutable afterwards; the alphabet-space size is
// computed at build time.
package schema

import (
	"fmt"
	"math/bits"
	"sort"
	"strconv"

	"github.com/RobBa/alphabet-generator/internal/errs"
)

// Unset marks an optional column index that was not configured.
const Unset = -1

// Kind distinguishes the two feature variants.
type Kind int

const (
	KindCategorical Kind = iota
	KindRangeBased
)

// String returns the directive name of the kind.
func (k Kind) String() string {
	if k == KindRangeBased {
		return "rangeBased"
	}
	return "categorical"
}

// Feature is one encoded field of a record.
type Feature interface {
	Name() string
	Kind() Kind
	// Column is the index of the field in a split record.
	Column() int
	// Radix is the number of distinct digits the feature contributes.
	Radix() uint64
	// Digit maps a raw field value to a digit in [0, Radix()).
	Digit(raw string) (uint64, error)
}

// Categorical is a feature with a fixed vocabulary. Indices are 1-based in
// declaration order; the digit of a value is its index modulo the vocabulary
// size, so the last declared value occupies digit 0.
type Categorical struct {
	name   string
	column int
	index  map[string]int
	values []string
}

// Name returns the feature name.
func (c *Categorical) Name() string { return c.name }

// Kind returns KindCategorical.
func (c *Categorical) Kind() Kind { return KindCategorical }

// Column returns the field index.
func (c *Categorical) Column() int { return c.column }

// Radix returns the vocabulary size.
func (c *Categorical) Radix() uint64 { return uint64(len(c.values)) }

// Values returns the vocabulary in declaration order.
func (c *Categorical) Values() []string {
	return append([]string(nil), c.values...)
}

// Index returns the 1-based vocabulary index of a value.
func (c *Categorical) Index(value string) (int, bool) {
	i, ok := c.index[value]
	return i, ok
}

// Digit implements Feature.
func (c *Categorical) Digit(raw string) (uint64, error) {
	i, ok := c.index[raw]
	if !ok {
		return 0, errs.Encoding("encode", errs.ErrUnknownCategoricalValue, "feature %s: %q", c.name, raw)
	}
	return uint64(i) % c.Radix(), nil
}

// RangeBased is a numeric feature bucketed by ascending upper bounds. A value
// at or below the first bound lands in bucket 0, a value above every bound in
// the last bucket.
type RangeBased struct {
	name   string
	column int
	bounds []float64
}

// Name returns the feature name.
func (r *RangeBased) Name() string { return r.name }

// Kind returns KindRangeBased.
func (r *RangeBased) Kind() Kind { return KindRangeBased }

// Column returns the field index.
func (r *RangeBased) Column() int { return r.column }

// Radix returns the bucket count, one more than the number of bounds.
func (r *RangeBased) Radix() uint64 { return uint64(len(r.bounds) + 1) }

// Bounds returns the sorted bucket upper bounds.
func (r *RangeBased) Bounds() []float64 {
	return append([]float64(nil), r.bounds...)
}

// Bucket returns the number of bounds strictly less than value.
func (r *RangeBased) Bucket(value float64) int {
	return sort.SearchFloat64s(r.bounds, value)
}

// Digit implements Feature.
func (r *RangeBased) Digit(raw string) (uint64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errs.Encoding("encode", errs.ErrMalformedNumericField, "feature %s: %q", r.name, raw)
	}
	return uint64(r.Bucket(v)), nil
}

// Schema is the immutable result of Builder.Build.
type Schema struct {
	features      []Feature
	fieldIndex    map[string]int
	alphabetSpace uint64

	sourceIndex      int
	destinationIndex int
	labelIndex       int
	labels           []string

	hasHeader           bool
	delimiter           byte
	sourceAddress       string
	filterByDestination bool
	batchSize           int
	outputFormat        string
}

// Features returns the features in encoding order.
func (s *Schema) Features() []Feature {
	return append([]Feature(nil), s.features...)
}

// FeatureNames returns the feature names in encoding order.
func (s *Schema) FeatureNames() []string {
	names := make([]string, len(s.features))
	for i, f := range s.features {
		names[i] = f.Name()
	}
	return names
}

// FieldIndex returns the column of a feature.
func (s *Schema) FieldIndex(name string) (int, bool) {
	i, ok := s.fieldIndex[name]
	return i, ok
}

// AlphabetSpaceSize is the product of all feature radices.
func (s *Schema) AlphabetSpaceSize() uint64 { return s.alphabetSpace }

// SourceIndex returns the source address column, or Unset.
func (s *Schema) SourceIndex() int { return s.sourceIndex }

// DestinationIndex returns the destination address column, or Unset.
func (s *Schema) DestinationIndex() int { return s.destinationIndex }

// LabelIndex returns the label column, or Unset.
func (s *Schema) LabelIndex() int { return s.labelIndex }

// HasLabel reports whether a label column is configured.
func (s *Schema) HasLabel() bool { return s.labelIndex != Unset }

// Labels returns the declared label names.
func (s *Schema) Labels() []string { return append([]string(nil), s.labels...) }

// HasHeader reports whether inputs start with a header line.
func (s *Schema) HasHeader() bool { return s.hasHeader }

// Delimiter returns the field delimiter.
func (s *Schema) Delimiter() byte { return s.delimiter }

// SourceAddress returns the source filter address, empty when unfiltered.
func (s *Schema) SourceAddress() string { return s.sourceAddress }

// FilterByDestination reports whether records are grouped per destination.
func (s *Schema) FilterByDestination() bool { return s.filterByDestination }

// BatchSize returns the number of records collected per streaming batch.
func (s *Schema) BatchSize() int { return s.batchSize }

// OutputFormat returns the output format named in the schema, if any.
func (s *Schema) OutputFormat() string { return s.outputFormat }

// NewLabelVocabulary creates the run-time label codes seeded with the
// declared labels.
func (s *Schema) NewLabelVocabulary() *LabelVocabulary {
	v := &LabelVocabulary{codes: make(map[string]int)}
	for _, l := range s.labels {
		v.Code(l)
	}
	return v
}

// LabelVocabulary maps raw label values to integer codes. Codes are 1-based
// in first-seen order; 0 means "no label". Unlike the schema it grows during
// a run, and it is owned by a single driver.
type LabelVocabulary struct {
	codes map[string]int
	order []string
}

// Code returns the code of a label, assigning the next one on first sight.
func (v *LabelVocabulary) Code(label string) int {
	if c, ok := v.codes[label]; ok {
		return c
	}
	v.order = append(v.order, label)
	v.codes[label] = len(v.order)
	return len(v.order)
}

// Len returns the number of known labels.
func (v *LabelVocabulary) Len() int { return len(v.order) }

// Names returns the labels in code order.
func (v *LabelVocabulary) Names() []string { return append([]string(nil), v.order...) }

// Builder accumulates schema definitions. The first error sticks and is
// returned by Build.
type Builder struct {
	s   Schema
	err error
}

// NewBuilder returns a Builder with space as delimiter and no structural columns.
func NewBuilder() *Builder {
	return &Builder{s: Schema{
		fieldIndex:       make(map[string]int),
		sourceIndex:      Unset,
		destinationIndex: Unset,
		labelIndex:       Unset,
		delimiter:        ' ',
		batchSize:        1,
	}}
}

func (b *Builder) fail(format string, args ...any) *Builder {
	if b.err == nil {
		b.err = errs.Config("schema", format, args...)
	}
	return b
}

func (b *Builder) addFeature(f Feature) *Builder {
	if _, dup := b.s.fieldIndex[f.Name()]; dup {
		return b.fail("feature %s declared twice", f.Name())
	}
	if f.Column() < 0 {
		return b.fail("feature %s: negative column %d", f.Name(), f.Column())
	}
	b.s.features = append(b.s.features, f)
	b.s.fieldIndex[f.Name()] = f.Column()
	return b
}

// Categorical declares a categorical feature.
func (b *Builder) Categorical(name string, column int, values ...string) *Builder {
	if len(values) == 0 {
		return b.fail("feature %s: empty vocabulary", name)
	}
	c := &Categorical{name: name, column: column, index: make(map[string]int, len(values))}
	for _, v := range values {
		if _, dup := c.index[v]; dup {
			return b.fail("feature %s: value %q listed twice", name, v)
		}
		c.values = append(c.values, v)
		c.index[v] = len(c.values)
	}
	return b.addFeature(c)
}

// Range declares a range-based feature. Bounds may be given in any order.
func (b *Builder) Range(name string, column int, bounds ...float64) *Builder {
	sorted := append([]float64(nil), bounds...)
	sort.Float64s(sorted)
	return b.addFeature(&RangeBased{name: name, column: column, bounds: sorted})
}

// Source sets the source address column.
func (b *Builder) Source(column int) *Builder {
	b.s.sourceIndex = column
	return b
}

// Destination sets the destination address column.
func (b *Builder) Destination(column int) *Builder {
	b.s.destinationIndex = column
	return b
}

// Label sets the label column and the declared label names.
func (b *Builder) Label(column int, names ...string) *Builder {
	b.s.labelIndex = column
	b.s.labels = append([]string(nil), names...)
	return b
}

// SourceAddress restricts processing to records from address.
func (b *Builder) SourceAddress(address string) *Builder {
	b.s.sourceAddress = address
	return b
}

// Header marks inputs as starting with a header line.
func (b *Builder) Header(has bool) *Builder {
	b.s.hasHeader = has
	return b
}

// Delimiter sets the field delimiter.
func (b *Builder) Delimiter(d byte) *Builder {
	b.s.delimiter = d
	return b
}

// FilterByDestination groups records per destination.
func (b *Builder) FilterByDestination(on bool) *Builder {
	b.s.filterByDestination = on
	return b
}

// BatchSize sets the streaming batch size.
func (b *Builder) BatchSize(n int) *Builder {
	if n < 1 {
		return b.fail("batch size must be positive, got %d", n)
	}
	b.s.batchSize = n
	return b
}

// OutputFormat records the output format requested by the schema.
func (b *Builder) OutputFormat(format string) *Builder {
	b.s.outputFormat = format
	return b
}

// Build validates the definitions and computes the alphabet-space size.
func (b *Builder) Build() (*Schema, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.s.features) == 0 {
		return nil, errs.Config("schema", "no features declared")
	}
	if b.s.sourceAddress != "" && b.s.sourceIndex == Unset {
		return nil, errs.Config("schema", "SourceAddress %s given without SrcIndex", b.s.sourceAddress)
	}

	space := uint64(1)
	for _, f := range b.s.features {
		hi, lo := bits.Mul64(space, f.Radix())
		if hi != 0 {
			return nil, errs.Config("schema", "alphabet space overflows 64 bits at feature %s", f.Name())
		}
		space = lo
	}

	s := b.s
	s.alphabetSpace = space
	s.features = append([]Feature(nil), b.s.features...)
	s.fieldIndex = make(map[string]int, len(b.s.fieldIndex))
	for k, v := range b.s.fieldIndex {
		s.fieldIndex[k] = v
	}
	return &s, nil
}

// String summarises the schema for diagnostics.
func (s *Schema) String() string {
	return fmt.Sprintf("schema(%d features, alphabet space %d)", len(s.features), s.alphabetSpace)
}
