package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RobBa/alphabet-generator/internal/config"
	"github.com/RobBa/alphabet-generator/internal/errs"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "alphagen",
	Short: "Encode netflow records into symbol sequences",
	Long: `Alphagen turns delimited netflow records into integer symbols and writes
them as Abbadingo sequences for automaton-learning tools.

Every record is mapped onto one symbol by a feature schema: categorical
features look their value up in a vocabulary, range-based features bucket a
number by ascending bounds, and together they form a mixed-radix number.

Examples:
  alphagen convert -s features.ini -o traces.txt flows.txt
  alphagen convert -s features.ini --window-size 5 --window-stride 2 'flows-*.txt'
  alphagen stream -s features.ini -o live.txt /var/log/netflow.txt
  alphagen pairwise -s features.ini -o hosts.txt flows.txt
  alphagen schema -s features.ini --sample flows.txt`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is called by main.main(). It runs the root command and reports
// errors on stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.alphagen.yaml)")
	flags.StringP("schema", "s", "", "feature schema file (.ini directives or .yaml)")
	flags.StringP("output", "o", "", "output file (default stdout)")
	flags.StringP("format", "f", "", "output format (abbadingo, augmented); default taken from the schema")
	flags.Int("window-size", 10, "records per window")
	flags.Int("window-stride", 1, "records the window advances per sequence")
	flags.Int("flush-every", 100, "flush live output every N sequences")
	flags.String("poll-interval", "250ms", "longest wait between checks of a followed file")
	flags.Bool("follow-rotate", false, "keep following when the file is rotated")
	flags.Bool("from-end", false, "start following at the current end of the file")
	flags.String("on-error", "abort", "what to do with records that cannot be encoded (abort, skip)")
	flags.String("metrics-file", "", "write run metrics in Prometheus text format to this file")
	flags.String("log-level", "error", "log level (debug, info, warn, error)")
	flags.BoolP("verbose", "v", false, "enable verbose logging")
	flags.Bool("summary", false, "print a run summary on stderr")
	flags.String("color", "auto", "color the summary (auto, always, never)")
	flags.Int("top", 5, "most frequent symbols listed in the summary")

	bind := map[string]string{
		"schema":        "schema",
		"output":        "output",
		"format":        "format",
		"window.size":   "window-size",
		"window.stride": "window-stride",
		"flush_every":   "flush-every",
		"poll_interval": "poll-interval",
		"follow_rotate": "follow-rotate",
		"from_end":      "from-end",
		"on_error":      "on-error",
		"metrics_file":  "metrics-file",
		"log_level":     "log-level",
		"verbose":       "verbose",
		"summary":       "summary",
		"color":         "color",
		"top_n":         "top",
	}
	for key, flag := range bind {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".alphagen")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("ALPHAGEN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// setDefaults registers config.Default with viper so that keys missing from
// flags, environment and config file still decode.
func setDefaults() {
	def := config.Default()
	viper.SetDefault("window.size", def.Window.Size)
	viper.SetDefault("window.stride", def.Window.Stride)
	viper.SetDefault("flush_every", def.FlushEvery)
	viper.SetDefault("poll_interval", def.PollInterval)
	viper.SetDefault("on_error", def.OnError)
	viper.SetDefault("log_level", def.LogLevel)
	viper.SetDefault("color", def.Color)
	viper.SetDefault("top_n", def.TopN)
}

// loadConfig decodes and validates the run configuration.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, errs.Config("config", "failed to unmarshal config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// newLogger creates the text logger of a run.
func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))
}
