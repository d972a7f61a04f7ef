package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/RobBa/alphabet-generator/internal/analyzer"
	"github.com/RobBa/alphabet-generator/internal/errs"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// ColorMode determines when to use colored output.
type ColorMode int

const (
	ColorAuto   ColorMode = iota // Auto-detect based on TTY
	ColorAlways                  // Always use colors
	ColorNever                   // Never use colors
)

// ParseColorMode converts "auto", "always" or "never" to a ColorMode.
func ParseColorMode(s string) (ColorMode, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return ColorAuto, nil
	case "always":
		return ColorAlways, nil
	case "never":
		return ColorNever, nil
	default:
		return ColorAuto, errs.Config("output", "unknown color mode %q (must be 'auto', 'always' or 'never')", s)
	}
}

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// shouldColorize determines if output should be colorized based on mode and TTY detection.
func shouldColorize(mode ColorMode, w io.Writer) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	case ColorAuto:
		if f, ok := w.(*os.File); ok {
			return isTerminal(f)
		}
		return false
	}
	return false
}

func paint(on bool, color, text string) string {
	if !on {
		return text
	}
	return color + text + colorReset
}

// Summary describes a finished conversion run.
type Summary struct {
	Command       string
	Output        string
	Records       int
	Filtered      int
	Skipped       int
	AlphabetSpace uint64
	Stats         analyzer.Stats
	Elapsed       time.Duration
}

// WriteSummary writes a short human-readable report of a run. Skipped
// records are highlighted in yellow and an empty run in red.
func WriteSummary(w io.Writer, s Summary, mode ColorMode) error {
	color := shouldColorize(mode, w)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", paint(color, colorBold, s.Command), paint(color, colorGray, s.Output))

	sequences := fmt.Sprintf("%d sequences", s.Stats.TotalSequences)
	if s.Stats.TotalSequences == 0 {
		sequences = paint(color, colorRed, sequences)
	} else {
		sequences = paint(color, colorGreen, sequences)
	}
	fmt.Fprintf(&b, "  records:   %d read, %d filtered\n", s.Records, s.Filtered)
	if s.Skipped > 0 {
		fmt.Fprintf(&b, "  %s\n", paint(color, colorYellow, fmt.Sprintf("skipped:   %d", s.Skipped)))
	}
	fmt.Fprintf(&b, "  output:    %s, %d symbols\n", sequences, s.Stats.TotalSymbols)
	fmt.Fprintf(&b, "  alphabet:  %d distinct, max %d of %d\n", s.Stats.Distinct, s.Stats.MaxSymbol, s.AlphabetSpace)

	if len(s.Stats.TopSymbols) > 0 {
		top := make([]string, 0, len(s.Stats.TopSymbols))
		for _, sc := range s.Stats.TopSymbols {
			top = append(top, fmt.Sprintf("%d×%d", sc.Symbol, sc.Count))
		}
		fmt.Fprintf(&b, "  top:       %s\n", strings.Join(top, " "))
	}
	for _, lc := range s.Stats.Labels {
		fmt.Fprintf(&b, "  label %-3d  %d (%.1f%%)\n", lc.Label, lc.Count, lc.Percent)
	}
	fmt.Fprintf(&b, "  elapsed:   %s\n", s.Elapsed.Round(time.Millisecond))

	if _, err := io.WriteString(w, b.String()); err != nil {
		return errs.IO("summary", err)
	}
	return nil
}
