// Package encoder maps a flow record onto a single integer symbol.
//
// Each feature of the schema is one digit of a mixed-radix number whose
// radices are the vocabulary sizes and bucket counts. The first feature is the
// most significant digit. Symbols lie in [0, AlphabetSpaceSize).
//
// See "Learning Behavioral Fingerprints From Netflows Using Timed Automata"
// (Pellegrino et al., 2017) for the encoding.
package encoder

import (
	"github.com/RobBa/alphabet-generator/internal/errs"
	"github.com/RobBa/alphabet-generator/internal/parser"
	"github.com/RobBa/alphabet-generator/internal/schema"
)

// Symbol is one element of the output alphabet.
type Symbol uint64

// Encoder turns records into symbols under a fixed schema. It holds no state
// beyond the schema and is safe to reuse.
type Encoder struct {
	schema   *schema.Schema
	features []schema.Feature
	parser   *parser.Parser
}

// New creates an Encoder for s.
func New(s *schema.Schema) *Encoder {
	return &Encoder{
		schema:   s,
		features: s.Features(),
		parser:   parser.New(s.Delimiter()),
	}
}

// AlphabetSpaceSize returns the number of distinct symbols the schema allows.
func (e *Encoder) AlphabetSpaceSize() uint64 {
	return e.schema.AlphabetSpaceSize()
}

// Schema returns the schema the encoder was built with.
func (e *Encoder) Schema() *schema.Schema {
	return e.schema
}

// Split splits a raw line using the schema delimiter.
func (e *Encoder) Split(line string) []string {
	return e.parser.Split(line)
}

// Encode computes the symbol of an already split record.
func (e *Encoder) Encode(fields []string) (Symbol, error) {
	if len(fields) == 0 {
		return 0, errs.Encoding("encode", errs.ErrEmptyRecord, "record has no fields")
	}

	space := e.schema.AlphabetSpaceSize()
	var res uint64
	for _, f := range e.features {
		raw, ok := parser.Field(fields, f.Column())
		if !ok {
			return 0, errs.Encoding("encode", errs.ErrMissingColumn,
				"feature %s: column %d, record has %d fields", f.Name(), f.Column(), len(fields))
		}

		digit, err := f.Digit(raw)
		if err != nil {
			return 0, err
		}

		// divide first: space may use the full 64 bits
		factor := space / f.Radix()
		res += digit * factor
		space = factor
	}

	return Symbol(res), nil
}

// EncodeLine splits a raw line and encodes it. The split fields are returned
// so callers can read structural columns without splitting twice.
func (e *Encoder) EncodeLine(line string) (Symbol, []string, error) {
	fields := e.Split(line)
	sym, err := e.Encode(fields)
	return sym, fields, err
}
