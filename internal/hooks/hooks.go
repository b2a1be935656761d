// Package hooks runs the custom provisioning scripts applications ship in their
// fragments directory once the environment has started.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/config"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/console"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/logging"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/runner"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/state"
)

const (
	// OnceScript runs the first time an environment is started with the application.
	OnceScript = "custom-provision.sh"
	// AlwaysScript runs on every start.
	AlwaysScript = "custom-provision-always.sh"
)

// Kind tells when a step runs.
type Kind int

const (
	// Once steps are guarded by the custom provision marker.
	Once Kind = iota
	// Always steps run unconditionally.
	Always
)

func (k Kind) String() string {
	if k == Once {
		return "once-only"
	}
	return "always"
}

// Step is one script of one application.
type Step struct {
	App    string
	Kind   Kind
	Script string
}

// Executor discovers and runs custom provisioning steps.
type Executor struct {
	layout  config.Layout
	store   *state.Store
	runner  runner.Runner
	printer *console.Printer
	logger  *slog.Logger
	shell   string
}

// NewExecutor constructs an Executor.
func NewExecutor(layout config.Layout, store *state.Store, r runner.Runner, printer *console.Printer, logger *slog.Logger) *Executor {
	if printer == nil {
		printer = console.Discard()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Executor{layout: layout, store: store, runner: r, printer: printer, logger: logger, shell: "sh"}
}

// Steps lists the scripts present for every application, once-only before always
// for each application.
func (e *Executor) Steps(envCfg *config.Environment) []Step {
	var steps []Step
	for _, app := range envCfg.AppNames() {
		dir := e.layout.FragmentsDir(app)
		for _, s := range []struct {
			kind Kind
			name string
		}{{Once, OnceScript}, {Always, AlwaysScript}} {
			path := filepath.Join(dir, s.name)
			if _, err := os.Stat(path); err == nil {
				steps = append(steps, Step{App: app, Kind: s.kind, Script: path})
			}
		}
	}
	return steps
}

// Run executes every step of envCfg. Failing steps do not stop later ones; their
// errors are joined.
func (e *Executor) Run(ctx context.Context, envCfg *config.Environment) error {
	var errs []error
	for _, step := range e.Steps(envCfg) {
		if err := e.RunStep(ctx, step); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RunStep executes one step. A once-only step already recorded in the marker is
// skipped; it is recorded only after it exits successfully.
func (e *Executor) RunStep(ctx context.Context, step Step) error {
	e.printer.Notice("Found a custom provision script (%s) in %s", step.Kind, step.App)
	if step.Kind == Once {
		done, err := e.store.CustomProvisioned(step.App)
		if err != nil {
			return err
		}
		if done {
			e.printer.Warn("Custom provision script has already been run for %s, skipping", step.App)
			return nil
		}
	}

	res, err := e.runner.Run(ctx, runner.Cmd{
		Name:   e.shell,
		Args:   []string{step.Script},
		Dir:    e.layout.AppDir(step.App),
		Output: e.printer.Writer(),
	})
	if err != nil {
		return fmt.Errorf("run %s for %s: %w", filepath.Base(step.Script), step.App, err)
	}
	if !res.OK() {
		return fmt.Errorf("%s for %s exited with %d", filepath.Base(step.Script), step.App, res.ExitCode)
	}
	e.logger.Info("custom provision script finished", "app", step.App, "kind", step.Kind.String())

	if step.Kind == Once {
		return e.store.SetCustomProvisioned(step.App)
	}
	return nil
}
