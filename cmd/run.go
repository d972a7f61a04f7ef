package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/RobBa/alphabet-generator/internal/config"
	"github.com/RobBa/alphabet-generator/internal/errs"
	"github.com/RobBa/alphabet-generator/internal/metrics"
	"github.com/RobBa/alphabet-generator/internal/output"
	"github.com/RobBa/alphabet-generator/internal/schema"
	"github.com/RobBa/alphabet-generator/internal/tail"
	"github.com/RobBa/alphabet-generator/internal/transform"
	"github.com/RobBa/alphabet-generator/internal/window"
)

// conversion describes one invocation of a transformer.
type conversion struct {
	kind   transform.Kind
	follow bool     // inputs[0] is a growing file
	inputs []string // paths or glob patterns
}

// runConversion wires configuration, schema, input, output and metrics
// around a transformer and runs it until the input ends or the process is
// interrupted.
func runConversion(cmd *cobra.Command, conv conversion) error {
	start := time.Now()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	s, err := schema.Load(cfg.Schema)
	if err != nil {
		return err
	}
	logger.Debug("schema loaded", "path", cfg.Schema, "features", len(s.Features()), "alphabet", s.AlphabetSpaceSize())

	format, err := resolveFormat(cfg, s)
	if err != nil {
		return err
	}
	colorMode, err := output.ParseColorMode(cfg.Color)
	if err != nil {
		return err
	}

	var m *metrics.Run
	if cfg.MetricsFile != "" {
		if m, err = metrics.New(string(conv.kind)); err != nil {
			return err
		}
	}

	src, closeInput, err := openInput(cfg, s, conv, logger)
	if err != nil {
		return err
	}
	defer closeInput.Close()

	pairwiseHosts := conv.kind == transform.KindPairwise && s.SourceAddress() == ""
	out, closeOutput, err := openOutput(cmd, cfg.Output, pairwiseHosts)
	if err != nil {
		return err
	}

	tr, err := transform.New(conv.kind, transform.Options{
		Schema:       s,
		Format:       format,
		WindowSize:   cfg.Window.Size,
		WindowStride: cfg.Window.Stride,
		FlushEvery:   cfg.FlushEvery,
		Policy:       cfg.Policy(),
		Follow:       conv.follow,
		Logger:       logger,
		Metrics:      m,
		HostOutput:   transform.HostFiles(hostBase(cfg.Output)),
	})
	if err != nil {
		closeOutput()
		return err
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	// Handle signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("signal received, stopping", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	res, runErr := tr.Run(ctx, src, out)
	if err := closeOutput(); err != nil && runErr == nil {
		runErr = err
	}
	if err := m.WriteFile(cfg.MetricsFile); err != nil {
		logger.Error("failed to write metrics", "path", cfg.MetricsFile, "error", err)
	}

	if res != nil {
		logger.Info("conversion finished",
			"records", res.Records, "filtered", res.Filtered, "skipped", res.Skipped,
			"sequences", res.Tally.Sequences(), "elapsed", time.Since(start))
		for _, path := range res.Outputs {
			logger.Debug("host output written", "path", path)
		}
		if cfg.Summary {
			summary := output.Summary{
				Command:       cmd.Name(),
				Output:        outputName(cfg.Output, res.Outputs),
				Records:       res.Records,
				Filtered:      res.Filtered,
				Skipped:       res.Skipped,
				AlphabetSpace: s.AlphabetSpaceSize(),
				Stats:         res.Tally.Stats(cfg.TopN),
				Elapsed:       time.Since(start),
			}
			if err := output.WriteSummary(cmd.ErrOrStderr(), summary, colorMode); err != nil && runErr == nil {
				runErr = err
			}
		}
	}
	return runErr
}

// resolveFormat picks the output format: the configured one, else the one
// named in the schema.
func resolveFormat(cfg config.Config, s *schema.Schema) (output.Format, error) {
	if cfg.Format != "" {
		return output.ParseFormat(cfg.Format)
	}
	return output.ParseFormat(s.OutputFormat())
}

func openInput(cfg config.Config, s *schema.Schema, conv conversion, logger *slog.Logger) (window.LineSource, io.Closer, error) {
	if !conv.follow {
		paths, err := config.ExpandGlobs(conv.inputs)
		if err != nil {
			return nil, nil, err
		}
		logger.Debug("reading input files", "files", len(paths))
		return transform.OpenFiles(paths, s)
	}

	if len(conv.inputs) != 1 {
		return nil, nil, errs.Config("input", "exactly one file can be followed, got %d", len(conv.inputs))
	}
	poll, err := cfg.Poll()
	if err != nil {
		return nil, nil, err
	}
	return transform.OpenFollow(conv.inputs[0], s, tail.Options{
		PollInterval: poll,
		FollowRotate: cfg.FollowRotate,
		FromEnd:      cfg.FromEnd,
		Logger:       logger,
	})
}

// openOutput opens the main output. Stdout is used when path is empty or
// "-". When every host goes to its own file the main output is not created.
func openOutput(cmd *cobra.Command, path string, discard bool) (io.Writer, func() error, error) {
	noop := func() error { return nil }
	if discard {
		return io.Discard, noop, nil
	}
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), noop, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errs.IO("output", err)
	}
	return f, func() error {
		if err := f.Close(); err != nil {
			return errs.IO("output", err)
		}
		return nil
	}, nil
}

// hostBase is the prefix of per-host output files: the output path without
// its extension, or "alphagen" when writing to stdout.
func hostBase(path string) string {
	if path == "" || path == "-" {
		return "alphagen"
	}
	return strings.TrimSuffix(path, filepath.Ext(path))
}

func outputName(path string, extra []string) string {
	switch {
	case len(extra) > 0:
		return strings.Join(extra, ", ")
	case path == "" || path == "-":
		return "stdout"
	default:
		return path
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
