// Package apps clones and fast-forwards the application checkouts of an
// environment with a small bounded worker pool.
package apps

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/clock"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/config"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/console"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/git"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/logging"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/runner"
)

// DefaultWorkers is the number of applications synchronized concurrently.
const DefaultWorkers = 3

// ErrorPause keeps a failed update visible before the next block is printed.
const ErrorPause = 3 * time.Second

// Action is what happened to one application.
type Action string

const (
	ActionSkipped Action = "skipped"
	ActionUpdated Action = "updated"
	ActionCloned  Action = "cloned"
	ActionFailed  Action = "failed"
)

// Outcome is the result of synchronizing one application.
type Outcome struct {
	App    string
	Action Action
	Err    error
}

// Syncer synchronizes application checkouts.
type Syncer struct {
	layout  config.Layout
	runner  runner.Runner
	printer *console.Printer
	clock   clock.Clock
	logger  *slog.Logger

	// Workers bounds concurrent synchronizations.
	Workers int
}

// NewSyncer constructs a Syncer with DefaultWorkers.
func NewSyncer(layout config.Layout, r runner.Runner, printer *console.Printer, clk clock.Clock, logger *slog.Logger) *Syncer {
	if printer == nil {
		printer = console.Discard()
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Syncer{layout: layout, runner: r, printer: printer, clock: clk, logger: logger, Workers: DefaultWorkers}
}

// Update synchronizes every application of envCfg and waits for all of them.
// Each application's output is printed as one uninterrupted block. Per-application
// failures are reported in the outcomes, not returned.
func (s *Syncer) Update(ctx context.Context, envCfg *config.Environment) ([]Outcome, error) {
	names := envCfg.AppNames()
	outcomes := make([]Outcome, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.Workers, 1))
	for i, name := range names {
		app := envCfg.Applications[name]
		g.Go(func() error {
			block := &block{printer: s.printer}
			block.add(console.Green, "================== %s ==================", name)
			action, err := s.sync(gctx, name, app, block)
			block.flush()
			outcomes[i] = Outcome{App: name, Action: action, Err: err}
			if err != nil {
				s.logger.Warn("application update failed", "app", name, "error", err)
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

func (s *Syncer) sync(ctx context.Context, name string, app config.Application, out *block) (Action, error) {
	if app.LocalOnly() {
		out.add(console.Blue, "This app is local-only; skipping")
		return ActionSkipped, nil
	}
	dir := s.layout.AppDir(name)
	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		return s.update(ctx, name, app, git.NewRepository(dir, s.runner), out)
	case err == nil || errors.Is(err, fs.ErrNotExist):
		return s.clone(ctx, name, app, dir, out)
	default:
		return ActionFailed, fmt.Errorf("stat %q: %w", dir, err)
	}
}

func (s *Syncer) update(ctx context.Context, name string, app config.Application, repo *git.Repository, out *block) (Action, error) {
	branch, err := repo.CurrentBranch(ctx)
	if err != nil {
		return s.failed(ctx, out, fmt.Sprintf("Error while updating %s", name), err)
	}
	if branch == git.Detached {
		out.add(console.Yellow, "Detached head detected; skipping update")
		return ActionSkipped, nil
	}
	if want := app.RequiredRef(); branch != want {
		out.add(console.Yellow, "The current branch (%s) differs from the devenv configuration (%s); skipping update", branch, want)
		return ActionSkipped, nil
	}

	res, err := repo.Fetch(ctx, "origin")
	out.lines(res.Lines)
	if err != nil {
		return s.failed(ctx, out, fmt.Sprintf("Error while updating %s", name), err)
	}
	res, err = repo.MergeFastForward(ctx)
	out.lines(res.Lines)
	if err != nil {
		out.add(console.Yellow, "The local branch couldn't be fast forwarded (a merge is probably required); skipping update")
		return ActionSkipped, nil
	}
	return ActionUpdated, nil
}

func (s *Syncer) clone(ctx context.Context, name string, app config.Application, dir string, out *block) (Action, error) {
	out.add(console.Blue, "%s does not yet exist; cloning", name)
	repo, res, err := git.Clone(ctx, s.runner, app.Repo, dir)
	out.lines(res.Lines)
	if err != nil {
		return s.failed(ctx, out, fmt.Sprintf("Error while cloning %s", name), err)
	}
	branch, err := repo.CurrentBranch(ctx)
	if err != nil {
		return ActionFailed, err
	}
	if want := app.RequiredRef(); want != "" && branch != want {
		res, err := repo.Checkout(ctx, want)
		out.lines(res.Lines)
		if err != nil {
			return ActionFailed, err
		}
	}
	return ActionCloned, nil
}

func (s *Syncer) failed(ctx context.Context, out *block, msg string, err error) (Action, error) {
	out.add(console.Red, "%s", msg)
	out.add(console.Yellow, "Continuing in %d seconds...", int(ErrorPause/time.Second))
	_ = s.clock.Sleep(ctx, ErrorPause)
	return ActionFailed, err
}

// block collects one application's output so it can be printed atomically.
type block struct {
	mu      sync.Mutex
	printer *console.Printer
	buf     []string
}

func (b *block) add(c console.Color, format string, args ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, b.printer.Sprint(c, fmt.Sprintf(format, args...)))
}

func (b *block) lines(lines []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, lines...)
}

func (b *block) flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.printer.Lines(b.buf...)
	b.buf = nil
}
