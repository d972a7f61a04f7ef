package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RobBa/alphabet-generator/internal/encoder"
	"github.com/RobBa/alphabet-generator/internal/errs"
	"github.com/RobBa/alphabet-generator/internal/parser"
	"github.com/RobBa/alphabet-generator/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema [flags]",
	Short: "Inspect a feature schema",
	Long: `Print the features of a schema with their columns, radices and value
domains, the structural columns and the size of the alphabet space.

With --sample the records of a flow file are encoded one by one and printed
with their symbol, which helps to check a schema against real data.

Examples:
  alphagen schema -s features.ini
  alphagen schema -s features.yaml --sample flows.txt --limit 20`,
	Args: cobra.NoArgs,
	RunE: runSchema,
}

func init() {
	schemaCmd.Flags().String("sample", "", "flow file whose records are encoded and shown")
	schemaCmd.Flags().IntP("limit", "n", 10, "number of sample records to show (0 for all)")

	rootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, args []string) error {
	path := viper.GetString("schema")
	if path == "" {
		return errs.Config("schema", "a schema file is required (--schema)")
	}
	sample, _ := cmd.Flags().GetString("sample")
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := schema.Load(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if err := writeSchema(out, path, s); err != nil {
		return errs.IO("schema", err)
	}
	if sample == "" {
		return nil
	}
	return writeSample(out, s, sample, limit)
}

func writeSchema(w io.Writer, path string, s *schema.Schema) error {
	fmt.Fprintf(w, "Schema: %s\n", path)
	fmt.Fprintf(w, "Delimiter: %q  Header: %t\n", string(s.Delimiter()), s.HasHeader())
	fmt.Fprintf(w, "Source column: %s  Destination column: %s  Label column: %s\n",
		column(s.SourceIndex()), column(s.DestinationIndex()), column(s.LabelIndex()))
	if labels := s.Labels(); len(labels) > 0 {
		fmt.Fprintf(w, "Declared labels: %s\n", strings.Join(labels, ", "))
	}
	if addr := s.SourceAddress(); addr != "" {
		fmt.Fprintf(w, "Source address: %s\n", addr)
	}
	fmt.Fprintf(w, "Filter by destination: %t  Batch size: %d\n", s.FilterByDestination(), s.BatchSize())
	if f := s.OutputFormat(); f != "" {
		fmt.Fprintf(w, "Output format: %s\n", f)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FEATURE\tKIND\tCOLUMN\tRADIX\tDOMAIN")
	for _, f := range s.Features() {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", f.Name(), f.Kind(), f.Column(), f.Radix(), domain(f))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\nAlphabet space: %d symbols\n", s.AlphabetSpaceSize())
	return err
}

func column(index int) string {
	if index == schema.Unset {
		return "-"
	}
	return strconv.Itoa(index)
}

// domain renders the vocabulary of a categorical feature or the bounds of a
// range-based one.
func domain(f schema.Feature) string {
	switch f := f.(type) {
	case *schema.Categorical:
		return strings.Join(f.Values(), " ")
	case *schema.RangeBased:
		bounds := make([]string, len(f.Bounds()))
		for i, b := range f.Bounds() {
			bounds[i] = strconv.FormatFloat(b, 'g', -1, 64)
		}
		return strings.Join(bounds, " ")
	default:
		return ""
	}
}

// writeSample encodes the records of a flow file and prints each with its
// symbol or the reason it cannot be encoded.
func writeSample(w io.Writer, s *schema.Schema, path string, limit int) error {
	records, err := parser.New(s.Delimiter()).ParseFile(path)
	if err != nil {
		return errs.IO("schema", err)
	}
	if s.HasHeader() && len(records) > 0 {
		records = records[1:]
	}

	enc := encoder.New(s)
	fmt.Fprintf(w, "\nSample: %s\n", path)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tSYMBOL\tRECORD")

	failed := 0
	for i, rec := range records {
		if limit > 0 && i >= limit {
			break
		}
		sym, err := enc.Encode(rec.Fields)
		if err != nil {
			failed++
			fmt.Fprintf(tw, "%d\t-\t%s (%v)\n", rec.Line, rec.Raw, err)
			continue
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\n", rec.Line, sym, rec.Raw)
	}
	if err := tw.Flush(); err != nil {
		return errs.IO("schema", err)
	}
	if failed > 0 {
		fmt.Fprintf(w, "%d of the shown records cannot be encoded\n", failed)
	}
	return nil
}
