// Package parser splits delimited flow records into fields.
//
// Records are single lines of text. Consecutive delimiters collapse, so
// "tcp  50" and "tcp 50" yield the same fields. When the delimiter is a space,
// tabs are treated as spaces, which covers netflow exports that mix the two.
package parser

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// Record is a single raw line together with its split fields.
type Record struct {
	Raw    string
	Fields []string
	Line   int
}

// Parser splits records by a single-character delimiter.
type Parser struct {
	delimiter byte
}

// New creates a Parser for the given delimiter. A zero delimiter means space.
func New(delimiter byte) *Parser {
	if delimiter == 0 {
		delimiter = ' '
	}
	return &Parser{delimiter: delimiter}
}

// Delimiter returns the configured delimiter.
func (p *Parser) Delimiter() byte {
	return p.delimiter
}

// Split splits a line into its non-empty fields.
func (p *Parser) Split(line string) []string {
	line = strings.TrimRight(line, "\r\n")
	if p.delimiter == ' ' {
		line = strings.ReplaceAll(line, "\t", " ")
	}

	parts := strings.Split(line, string(p.delimiter))
	fields := parts[:0]
	for _, part := range parts {
		if part == "" {
			continue
		}
		fields = append(fields, part)
	}
	return fields
}

// Field returns the field at index, or false if the record is too short.
func Field(fields []string, index int) (string, bool) {
	if index < 0 || index >= len(fields) {
		return "", false
	}
	return fields[index], true
}

// ParseFile opens a file and splits every non-blank line in it.
func (p *Parser) ParseFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return p.Parse(f)
}

// Parse reads records from the given reader, skipping blank lines.
func (p *Parser) Parse(r io.Reader) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(r)
	const maxScanTokenSize = 1024 * 1024 // 1MB
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		records = append(records, Record{
			Raw:    line,
			Fields: p.Split(line),
			Line:   lineNum,
		})
	}

	if err := scanner.Err(); err != nil {
		return records, err
	}

	return records, nil
}
