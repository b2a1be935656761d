package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/clock"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/compose"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/config"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/console"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/docker"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/engine"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/env"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/logging"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/runner"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/state"
)

// session bundles what one command invocation needs.
type session struct {
	settings settings
	layout   config.Layout
	logger   *slog.Logger
	printer  *console.Printer
	prompter *console.Prompter
	runner   runner.Runner
	clock    clock.Clock
	store    *state.Store
	deps     Deps

	composer *compose.Client
	docker   *docker.Client
}

func newSession(cmd *cobra.Command, opts *Options, deps Deps) (*session, error) {
	logger := LoggerFromContext(cmd.Context())
	s := settingsFromContext(cmd.Context())

	root := opts.Root
	if root == "" {
		root = s.Root
	}
	layout, err := config.NewLayout(root)
	if err != nil {
		return nil, fmt.Errorf("resolve devenv root %q: %w", root, err)
	}

	var out io.Writer = cmd.OutOrStdout()
	if deps.Stdout != nil {
		out = deps.Stdout
	}
	var in io.Reader = cmd.InOrStdin()
	if deps.Stdin != nil {
		in = deps.Stdin
	}
	printer := console.New(out)

	r := deps.Runner
	if r == nil {
		r = runner.NewExec(logger)
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}

	return &session{
		settings: s,
		layout:   layout,
		logger:   logger,
		printer:  printer,
		prompter: console.NewPrompter(in, printer),
		runner:   r,
		clock:    clk,
		store:    state.NewStore(layout, logger),
		deps:     deps,
	}, nil
}

// compose returns the compose client, building its environment from the process
// environment and the optional .env files.
func (s *session) compose() (*compose.Client, error) {
	if s.composer != nil {
		return s.composer, nil
	}
	vars, err := env.Overlay(s.layout.EnvFiles()...)
	if err != nil {
		return nil, err
	}
	c := compose.NewClient(s.settings.composeCommand(), s.layout.FileList(), vars, s.runner)
	c.Dir = s.layout.Root
	c.Output = logging.NewWriter(s.logger, "compose")
	s.composer = c
	return c, nil
}

// runtime returns the container runtime client.
func (s *session) runtime() (*docker.Client, error) {
	if s.docker != nil {
		return s.docker, nil
	}
	if s.deps.Inspector != nil {
		s.docker = docker.NewWithInspector(s.deps.Inspector, s.runner, s.logger)
		return s.docker, nil
	}
	c, err := docker.New(s.runner, s.logger)
	if err != nil {
		return nil, err
	}
	s.docker = c
	return c, nil
}

// close releases the runtime client.
func (s *session) close() {
	if s.docker == nil {
		return
	}
	if err := s.docker.Close(); err != nil {
		s.logger.Debug("close docker client failed", "error", err)
	}
}

// loadConfig reads the environment configuration and every application configuration.
func (s *session) loadConfig() (*config.Environment, map[string]*config.AppConfig, error) {
	envCfg, err := config.LoadEnvironment(s.layout)
	if err != nil {
		return nil, nil, err
	}
	appCfgs, err := config.LoadAppConfigs(s.layout, envCfg)
	if err != nil {
		return nil, nil, err
	}
	return envCfg, appCfgs, nil
}

// requireFileList prints the operator message when there is nothing to start.
func (s *session) requireFileList() error {
	if err := engine.CheckFileList(s.layout.FileList()); err != nil {
		return s.fail(err)
	}
	return nil
}

// fail prints the operator-facing part of err and returns it.
func (s *session) fail(err error) error {
	var fatal *engine.FatalError
	switch {
	case errors.Is(err, engine.ErrNothingToStart):
		s.printer.Error("Nothing to start!")
	case errors.As(err, &fatal):
		s.printer.Error("%s", fatal.Msg)
		s.printer.Lines(fatal.Tail...)
	}
	return err
}

// fatalFromLog builds a FatalError carrying the tail of logFile.
func (s *session) fatalFromLog(msg, logFile string, res runner.Result, err error) error {
	tail := res.Tail(tailLines)
	if fileTail, ferr := runner.TailFile(logFile, tailLines); ferr == nil && len(fileTail) > 0 {
		tail = fileTail
	}
	return s.fail(&engine.FatalError{Msg: msg, Tail: tail, Err: err})
}

// withSession wraps a command body with session setup and teardown.
func withSession(opts *Options, deps Deps, fn func(ctx context.Context, s *session) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		s, err := newSession(cmd, opts, deps)
		if err != nil {
			return err
		}
		defer s.close()
		if err := os.MkdirAll(s.layout.LogDir(), 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		return fn(cmd.Context(), s)
	}
}
