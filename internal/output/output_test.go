package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/RobBa/alphabet-generator/internal/encoder"
	"github.com/RobBa/alphabet-generator/internal/errs"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"", FormatAbbadingo, false},
		{"0", FormatAbbadingo, false},
		{"abbadingo", FormatAbbadingo, false},
		{"Augmented", FormatAugmented, false},
		{"1", FormatAugmented, false},
		{"json", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errs.Is(err, errs.KindConfig) {
				t.Errorf("ParseFormat(%q) error kind = %v, want config", tt.input, errs.KindOf(err))
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSequenceString(t *testing.T) {
	tests := []struct {
		name string
		seq  Sequence
		want string
	}{
		{"plain", Sequence{Symbols: []encoder.Symbol{3, 0, 5}}, "3 3 0 5"},
		{"labelled", Sequence{Label: 2, Labelled: true, Symbols: []encoder.Symbol{1}}, "2 1 1"},
		{"unlabelled zero label", Sequence{Label: 0, Labelled: true, Symbols: []encoder.Symbol{4, 4}}, "0 2 4 4"},
		{"empty", Sequence{}, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.seq.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAugmentedEntry(t *testing.T) {
	e := AugmentedEntry{
		Source:      "10.0.0.1",
		Destination: "10.0.0.2",
		Symbol:      3,
		Features:    []string{"Proto", "Dur"},
		FlowType:    "botnet",
	}
	want := "10.0.0.1 <-> 10.0.0.2\n3:Proto, Dur/botnet"
	if got := e.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestBlockString(t *testing.T) {
	b := Block{
		Title:    HostTitle("10.0.0.1"),
		Features: []string{"Proto", "Dur"},
		Distinct: 2,
		Sequences: []Sequence{
			{Label: 1, Labelled: true, Symbols: []encoder.Symbol{0, 1}},
			{Label: 1, Labelled: true, Symbols: []encoder.Symbol{1}},
		},
	}
	want := "Host address: 10.0.0.1\nEncoded features: Proto, Dur\n2 2\n1 2 0 1\n1 1 1\n"
	if got := b.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	if got := PairTitle("a", "b"); got != "a <-> b" {
		t.Errorf("PairTitle() = %q", got)
	}
}

func TestWriter_FlushEvery(t *testing.T) {
	buf := &bytes.Buffer{}
	wr := New(buf, FormatAbbadingo, 2)

	if err := wr.WriteHeader(0, 0); err != nil {
		t.Fatalf("WriteHeader() error = %v", err)
	}
	if err := wr.WriteSequence(Sequence{Symbols: []encoder.Symbol{1}}); err != nil {
		t.Fatalf("WriteSequence() error = %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected nothing flushed after one entry, got %q", buf.String())
	}

	if err := wr.WriteSequence(Sequence{Symbols: []encoder.Symbol{2}}); err != nil {
		t.Fatalf("WriteSequence() error = %v", err)
	}
	if got, want := buf.String(), "0 0\n1 1\n1 2\n"; got != want {
		t.Errorf("after two entries got %q, want %q", got, want)
	}
	if wr.Entries() != 2 {
		t.Errorf("Entries() = %d, want 2", wr.Entries())
	}
}

func TestWriter_NoPeriodicFlush(t *testing.T) {
	buf := &bytes.Buffer{}
	wr := New(buf, FormatAugmented, 0)

	for i := 0; i < 5; i++ {
		err := wr.WriteAugmented(AugmentedEntry{Source: "a", Destination: "b", Symbol: encoder.Symbol(i), Features: []string{"F"}, FlowType: "x"})
		if err != nil {
			t.Fatalf("WriteAugmented() error = %v", err)
		}
	}
	if buf.Len() != 0 {
		t.Errorf("expected buffered output, got %q", buf.String())
	}
	if err := wr.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if n := strings.Count(buf.String(), " <-> "); n != 5 {
		t.Errorf("flushed %d entries, want 5", n)
	}
	if wr.Format() != FormatAugmented {
		t.Errorf("Format() = %q", wr.Format())
	}
}

func TestWriter_OnFlush(t *testing.T) {
	flushes := 0
	wr := New(&bytes.Buffer{}, FormatAbbadingo, 1)
	wr.OnFlush(func() { flushes++ })

	for i := 0; i < 3; i++ {
		if err := wr.WriteSequence(Sequence{}); err != nil {
			t.Fatalf("WriteSequence() error = %v", err)
		}
	}
	if flushes != 3 {
		t.Errorf("flushes = %d, want 3", flushes)
	}
}
