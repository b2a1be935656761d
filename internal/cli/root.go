// Package cli defines the command-line interface for devenv.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/clock"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/docker"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/logging"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/runner"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/selfupdate"
)

// Version is the devenv release, set at build time with -ldflags.
var Version = "dev"

// Options stores global CLI options shared between commands.
type Options struct {
	Root     string
	LogLevel string
}

// Deps overrides the collaborators commands talk to. Zero values select the real
// implementations.
type Deps struct {
	Runner    runner.Runner
	Clock     clock.Clock
	Inspector docker.Inspector
	Releases  selfupdate.Source
	Stdin     io.Reader
	Stdout    io.Writer
}

// Execute builds the root command, runs it with the provided args and logger, and returns any error.
func Execute(args []string, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewLogger(os.Stderr, logging.LevelInfo)
	}

	rootCmd := newRootCommand(&Options{}, logger, Deps{})
	rootCmd.SetArgs(args)

	return rootCmd.Execute()
}

// newRootCommand constructs the root cobra.Command with global flags and subcommands.
func newRootCommand(opts *Options, logger *slog.Logger, deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "devenv",
		Short:         "devenv runs a multi-application development environment on docker compose",
		Long:          "devenv clones the applications of a dev-env-config repository, assembles their compose fragments, provisions shared commodities and starts every service in dependency order.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadSettings(nil)
			if err != nil {
				return err
			}
			if opts.LogLevel == "" {
				opts.LogLevel = cfg.LogLevel
			}
			if opts.Root == "" {
				opts.Root = cfg.Root
			}
			level := logging.ParseLevel(opts.LogLevel)
			logger = logging.NewLogger(os.Stderr, level).With("run", uuid.NewString())
			ctx := context.WithValue(cmd.Context(), loggerKey{}, logger)
			ctx = context.WithValue(ctx, settingsKey{}, cfg)
			cmd.SetContext(ctx)
			logger.Debug("logger initialized", "level", level, "root", opts.Root)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Root, "root", "", "devenv root directory (default $DEVENV_ROOT or the working directory)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newCheckUpdateCommand(opts, deps),
		newPrepareConfigCommand(opts, deps),
		newUpdateAppsCommand(opts, deps),
		newPrepareComposeCommand(opts, deps),
		newBuildCommand(opts, deps),
		newProvisionCommand(opts, deps),
		newStartCommand(opts, deps),
		newStopCommand(opts, deps),
		newResetCommand(opts, deps),
		newUpCommand(opts, deps),
	)

	return cmd
}

// loggerKey is a private context key used to store a logger in command contexts.
type loggerKey struct{}

// settingsKey stores the parsed DEVENV_* settings.
type settingsKey struct{}

// LoggerFromContext extracts a logger from the context or falls back to a default logger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return logging.NewLogger(os.Stderr, logging.LevelInfo)
	}
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return logging.NewLogger(os.Stderr, logging.LevelInfo)
}

func settingsFromContext(ctx context.Context) settings {
	if ctx != nil {
		if s, ok := ctx.Value(settingsKey{}).(settings); ok {
			return s
		}
	}
	s, _ := loadSettings(map[string]string{})
	return s
}
