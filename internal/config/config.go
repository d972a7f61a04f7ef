// Package config provides the run configuration of alphagen and helpers
// for validating it.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/RobBa/alphabet-generator/internal/errs"
)

// Config holds the application-wide configuration.
type Config struct {
	Schema       string       `mapstructure:"schema"`
	Output       string       `mapstructure:"output"`
	Format       string       `mapstructure:"format"` // empty: take it from the schema
	Window       WindowConfig `mapstructure:"window"`
	FlushEvery   int          `mapstructure:"flush_every"`
	PollInterval string       `mapstructure:"poll_interval"` // e.g. "250ms", "1s"
	FollowRotate bool         `mapstructure:"follow_rotate"`
	FromEnd      bool         `mapstructure:"from_end"`
	OnError      string       `mapstructure:"on_error"` // abort or skip
	MetricsFile  string       `mapstructure:"metrics_file"`
	LogLevel     string       `mapstructure:"log_level"`
	Verbose      bool         `mapstructure:"verbose"`
	Summary      bool         `mapstructure:"summary"`
	Color        string       `mapstructure:"color"` // auto, always, never
	TopN         int          `mapstructure:"top_n"`
}

// WindowConfig holds the fixed window geometry.
type WindowConfig struct {
	Size   int `mapstructure:"size"`
	Stride int `mapstructure:"stride"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Window:       WindowConfig{Size: 10, Stride: 1},
		FlushEvery:   100,
		PollInterval: "250ms",
		OnError:      string(PolicyAbort),
		LogLevel:     "error",
		Color:        "auto",
		TopN:         5,
	}
}

// ErrorPolicy decides what happens to a record that cannot be encoded.
type ErrorPolicy string

const (
	PolicyAbort ErrorPolicy = "abort"
	PolicySkip  ErrorPolicy = "skip"
)

// ParseErrorPolicy converts a string to an ErrorPolicy. Empty means abort.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "abort":
		return PolicyAbort, nil
	case "skip":
		return PolicySkip, nil
	default:
		return "", errs.Config("config", "on_error must be 'abort' or 'skip', got %q", s)
	}
}

// ParseLevel converts a string to a slog level. Unknown names report false.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug", "dbg":
		return slog.LevelDebug, true
	case "info", "inf":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error", "err":
		return slog.LevelError, true
	default:
		return slog.LevelError, false
	}
}

// Level returns the effective log level. Verbose raises it to debug.
func (c Config) Level() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	level, _ := ParseLevel(c.LogLevel)
	return level
}

// Poll returns the parsed poll interval.
func (c Config) Poll() (time.Duration, error) {
	if c.PollInterval == "" {
		return 0, nil
	}
	d, err := ParseDuration(c.PollInterval)
	if err != nil {
		return 0, errs.Config("config", "poll_interval: %v", err)
	}
	return d, nil
}

// Policy returns the parsed error policy.
func (c Config) Policy() ErrorPolicy {
	p, err := ParseErrorPolicy(c.OnError)
	if err != nil {
		return PolicyAbort
	}
	return p
}

// Validate checks the configuration. Errors are of the config kind.
func (c Config) Validate() error {
	if c.Schema == "" {
		return errs.Config("config", "a schema file is required (--schema)")
	}
	if c.Window.Size < 1 || c.Window.Stride < 1 || c.Window.Size < c.Window.Stride {
		return errs.New(errs.KindConfig, "config", fmt.Errorf("%w: window.size %d, window.stride %d: need size >= stride >= 1",
			errs.ErrInvalidWindow, c.Window.Size, c.Window.Stride))
	}
	if c.FlushEvery < 0 {
		return errs.Config("config", "flush_every must not be negative, got %d", c.FlushEvery)
	}
	if _, err := ParseErrorPolicy(c.OnError); err != nil {
		return err
	}
	if c.LogLevel != "" {
		if _, ok := ParseLevel(c.LogLevel); !ok {
			return errs.Config("config", "unknown log_level %q", c.LogLevel)
		}
	}
	d, err := c.Poll()
	if err != nil {
		return err
	}
	if d < 0 {
		return errs.Config("config", "poll_interval must not be negative")
	}
	if c.TopN < 0 {
		return errs.Config("config", "top_n must not be negative, got %d", c.TopN)
	}
	return nil
}
