// wess-e2e runs the Wess end-to-end scenarios: it points wess.toml at the test
// settings, launches the service, executes the Gherkin features against it and
// restores everything afterwards.
//
// Usage:
//
//	wess-e2e run [paths...]             Start the service, run features, stop it
//	wess-e2e run --no-service           Run features against an already running service
//	wess-e2e config apply test|prod     Rewrite wess.toml with the test or prod settings
//	wess-e2e config show                Print the settings currently in wess.toml
//	wess-e2e fixtures check <name>...   Parse fixture byte files and report their sizes
//	wess-e2e version                    Print the version
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wess-dev/wess-e2e/internal/config"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// errScenariosFailed marks a run whose scenarios failed. The suite output has
// already described the failures.
var errScenariosFailed = errors.New("scenarios failed")

// rootOptions holds global flags and the state every subcommand shares.
type rootOptions struct {
	ConfigPath string
	LogLevel   string
	LogFile    string

	fs      afero.Fs
	cfg     *config.Config
	logger  *slog.Logger
	logSink io.Closer
}

func newRootCommand(fs afero.Fs) *cobra.Command {
	opts := &rootOptions{fs: fs}

	cmd := &cobra.Command{
		Use:           "wess-e2e",
		Short:         "End-to-end scenarios for the Wess WebAssembly service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.setupLogging(cmd.ErrOrStderr()); err != nil {
				return err
			}
			cfg, err := config.Load(opts.fs, opts.ConfigPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logSink != nil {
				return opts.logSink.Close()
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultFile, "harness config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.LogFile, "log-file", "", "write JSON logs to this file, rotated")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newConfigCommand(opts))
	cmd.AddCommand(newFixturesCommand(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wess-e2e %s\n", version)
		},
	})

	return cmd
}

func (o *rootOptions) setupLogging(stderr io.Writer) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q", o.LogLevel)
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	if o.LogFile == "" {
		o.logger = slog.New(slog.NewTextHandler(stderr, handlerOpts))
		return nil
	}
	sink := &lumberjack.Logger{
		Filename:   o.LogFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	o.logSink = sink
	o.logger = slog.New(slog.NewJSONHandler(sink, handlerOpts))
	return nil
}

func main() {
	if err := newRootCommand(afero.NewOsFs()).Execute(); err != nil {
		if err != errScenariosFailed {
			fmt.Fprintf(os.Stderr, "error: %s\n", strings.TrimSpace(err.Error()))
		}
		os.Exit(1)
	}
}
