package parser

import (
	"reflect"
	"strings"
	"testing"
)

func TestParser_Split(t *testing.T) {
	tests := []struct {
		name      string
		delimiter byte
		input     string
		want      []string
	}{
		{"single spaces", ' ', "tcp 50 10.0.0.1", []string{"tcp", "50", "10.0.0.1"}},
		{"repeated spaces collapse", ' ', "tcp   50", []string{"tcp", "50"}},
		{"tabs fold into spaces", ' ', "tcp\t50\t\t7", []string{"tcp", "50", "7"}},
		{"trailing newline", ' ', "tcp 50\n", []string{"tcp", "50"}},
		{"carriage return", ' ', "tcp 50\r\n", []string{"tcp", "50"}},
		{"comma", ',', "a,b,,c", []string{"a", "b", "c"}},
		{"tab delimiter keeps spaces", '\t', "a b\tc", []string{"a b", "c"}},
		{"empty", ' ', "", []string{}},
		{"zero delimiter defaults to space", 0, "x y", []string{"x", "y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.delimiter).Split(tt.input)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Split(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestField(t *testing.T) {
	fields := []string{"a", "b"}

	if v, ok := Field(fields, 1); !ok || v != "b" {
		t.Errorf("Field(1) = %q, %v", v, ok)
	}
	if _, ok := Field(fields, 2); ok {
		t.Error("Field(2) should be out of range")
	}
	if _, ok := Field(fields, -1); ok {
		t.Error("Field(-1) should be out of range")
	}
}

func TestParser_Parse(t *testing.T) {
	input := "tcp 50\n\n   \nudp 200\n"
	records, err := New(' ').Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("Parse() returned %d records, want 2", len(records))
	}
	if records[1].Line != 4 {
		t.Errorf("records[1].Line = %d, want 4", records[1].Line)
	}
	if records[1].Fields[0] != "udp" {
		t.Errorf("records[1].Fields[0] = %q, want udp", records[1].Fields[0])
	}
}
