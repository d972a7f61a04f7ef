package schema

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/RobBa/alphabet-generator/internal/errs"
)

// ParseINI reads the line-oriented feature directive format:
//
//	# comment
//	Proto categorical tcp udp = 2
//	Dur rangeBased 80 180 = 1
//	Label benign,malicious = 5
//	SrcIndex = 3
//	DstIndex = 4
//	SourceAddress = 10.0.0.1
//	HasHeader = true
//	FilterByDestination = false
//	BatchSize = 20
//	Delimiter = tab
//	OutputFormat = abbadingo
func ParseINI(r io.Reader) (*Schema, error) {
	b := NewBuilder()
	scanner := bufio.NewScanner(r)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}

		if err := applyDirective(b, line); err != nil {
			return nil, errs.Config("schema", "line %d: %v", lineNum, err)
		}
		if b.err != nil {
			return nil, b.err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.IO("schema", err)
	}

	return b.Build()
}

func applyDirective(b *Builder, line string) error {
	eq := strings.LastIndexByte(line, '=')
	if eq < 0 {
		return fmt.Errorf("%w: missing '=' in %q", errs.ErrInvalidDirective, line)
	}
	head := strings.Fields(line[:eq])
	value := strings.TrimSpace(line[eq+1:])
	if len(head) == 0 || value == "" {
		return fmt.Errorf("%w: %q", errs.ErrInvalidDirective, line)
	}

	name := head[0]
	if len(head) >= 2 {
		switch head[1] {
		case "categorical":
			col, err := parseColumn(name, value)
			if err != nil {
				return err
			}
			b.Categorical(name, col, head[2:]...)
			return nil
		case "rangeBased", "range":
			col, err := parseColumn(name, value)
			if err != nil {
				return err
			}
			bounds := make([]float64, 0, len(head)-2)
			for _, tok := range head[2:] {
				v, err := strconv.ParseFloat(tok, 64)
				if err != nil {
					return fmt.Errorf("feature %s: bound %q is not a number", name, tok)
				}
				bounds = append(bounds, v)
			}
			b.Range(name, col, bounds...)
			return nil
		}
	}

	switch name {
	case "Label":
		col, err := parseColumn(name, value)
		if err != nil {
			return err
		}
		var labels []string
		if len(head) >= 2 {
			for _, l := range strings.Split(strings.Join(head[1:], ""), ",") {
				if l = strings.TrimSpace(l); l != "" {
					labels = append(labels, l)
				}
			}
		}
		b.Label(col, labels...)
	case "SourceAddress":
		b.SourceAddress(value)
	case "SrcIndex":
		col, err := parseColumn(name, value)
		if err != nil {
			return err
		}
		b.Source(col)
	case "DstIndex":
		col, err := parseColumn(name, value)
		if err != nil {
			return err
		}
		b.Destination(col)
	case "HasHeader":
		on, err := parseBool(name, value)
		if err != nil {
			return err
		}
		b.Header(on)
	case "FilterByDestination":
		on, err := parseBool(name, value)
		if err != nil {
			return err
		}
		b.FilterByDestination(on)
	case "BatchSize":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("BatchSize: %q is not an integer", value)
		}
		b.BatchSize(n)
	case "Delimiter":
		d, err := ParseDelimiter(value)
		if err != nil {
			return err
		}
		b.Delimiter(d)
	case "outputFileFormat", "OutputFormat":
		b.OutputFormat(value)
	default:
		return fmt.Errorf("%w: %s is not a known directive", errs.ErrInvalidDirective, name)
	}
	return nil
}

func parseColumn(name, value string) (int, error) {
	col, err := strconv.Atoi(value)
	if err != nil || col < 0 {
		return 0, fmt.Errorf("%s: column %q is not a non-negative integer", name, value)
	}
	return col, nil
}

// parseBool accepts exactly "true" or "false".
func parseBool(name, value string) (bool, error) {
	switch value {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("%s: %q is invalid, give either 'true' or 'false'", name, value)
	}
}

// ParseDelimiter accepts a single character or one of the names space, tab,
// comma, semicolon and pipe.
func ParseDelimiter(value string) (byte, error) {
	switch strings.ToLower(value) {
	case "space", " ":
		return ' ', nil
	case "tab", `\t`, "\t":
		return '\t', nil
	case "comma":
		return ',', nil
	case "semicolon":
		return ';', nil
	case "pipe":
		return '|', nil
	}
	if len(value) != 1 {
		return 0, errs.Config("schema", "delimiter %q must be a single character", value)
	}
	return value[0], nil
}
