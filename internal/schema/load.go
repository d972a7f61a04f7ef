package schema

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/RobBa/alphabet-generator/internal/errs"
)

// Load reads a schema file. Files ending in .yaml or .yml are read as YAML,
// everything else as feature directives.
func Load(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.IO("schema", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(f)
	default:
		return ParseINI(f)
	}
}

type yamlFeature struct {
	Name   string    `yaml:"name"`
	Type   string    `yaml:"type"`
	Column *int      `yaml:"column"`
	Values []string  `yaml:"values"`
	Bounds []float64 `yaml:"bounds"`
}

type yamlLabel struct {
	Column int      `yaml:"column"`
	Values []string `yaml:"values"`
}

type yamlSchema struct {
	Delimiter           string        `yaml:"delimiter"`
	HasHeader           bool          `yaml:"has_header"`
	SourceIndex         *int          `yaml:"source_index"`
	DestinationIndex    *int          `yaml:"destination_index"`
	SourceAddress       string        `yaml:"source_address"`
	FilterByDestination bool          `yaml:"filter_by_destination"`
	BatchSize           int           `yaml:"batch_size"`
	OutputFormat        string        `yaml:"output_format"`
	Label               *yamlLabel    `yaml:"label"`
	Features            []yamlFeature `yaml:"features"`
}

// ParseYAML reads a schema in YAML form:
//
//	delimiter: space
//	source_index: 3
//	destination_index: 4
//	label: {column: 5, values: [benign, malicious]}
//	features:
//	  - {name: Proto, type: categorical, column: 2, values: [tcp, udp]}
//	  - {name: Dur, type: range, column: 1, bounds: [80, 180]}
func ParseYAML(r io.Reader) (*Schema, error) {
	var doc yamlSchema
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, errs.Config("schema", "invalid yaml: %v", err)
	}

	b := NewBuilder().
		Header(doc.HasHeader).
		FilterByDestination(doc.FilterByDestination).
		SourceAddress(doc.SourceAddress).
		OutputFormat(doc.OutputFormat)

	if doc.Delimiter != "" {
		d, err := ParseDelimiter(doc.Delimiter)
		if err != nil {
			return nil, err
		}
		b.Delimiter(d)
	}
	if doc.SourceIndex != nil {
		b.Source(*doc.SourceIndex)
	}
	if doc.DestinationIndex != nil {
		b.Destination(*doc.DestinationIndex)
	}
	if doc.BatchSize != 0 {
		b.BatchSize(doc.BatchSize)
	}
	if doc.Label != nil {
		b.Label(doc.Label.Column, doc.Label.Values...)
	}

	for _, f := range doc.Features {
		if f.Column == nil {
			return nil, errs.Config("schema", "feature %s: missing column", f.Name)
		}
		switch strings.ToLower(f.Type) {
		case "categorical":
			b.Categorical(f.Name, *f.Column, f.Values...)
		case "range", "rangebased":
			b.Range(f.Name, *f.Column, f.Bounds...)
		default:
			return nil, errs.Config("schema", "feature %s: unknown type %q", f.Name, f.Type)
		}
	}

	return b.Build()
}
