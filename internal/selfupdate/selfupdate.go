// Package selfupdate tells the operator when a newer devenv release exists and
// updates the checkout on request. Every failure is reported and then ignored.
package selfupdate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/creativeprojects/go-selfupdate"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/clock"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/config"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/console"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/git"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/logging"
)

// DefaultSlug is the GitHub repository publishing devenv releases.
const DefaultSlug = "psweeting1/common-dev-enviroment-prototype"

// ReleaseBranch is the only branch update checks run on.
const ReleaseBranch = "master"

// Pause keeps warnings visible before the command continues.
const Pause = 5 * time.Second

const dateLayout = "2006-01-02"

// ErrUpdated reports a successful update; the command must be rerun.
var ErrUpdated = errors.New("devenv updated, rerun the command")

// Release describes the latest published release.
type Release struct {
	Version string
	Notes   string
	Newer   bool
}

// Source finds the latest release relative to current.
type Source interface {
	DetectLatest(ctx context.Context, current string) (Release, bool, error)
}

// GitHub detects releases of a GitHub repository.
type GitHub struct {
	Slug string
}

// DetectLatest implements Source.
func (g GitHub) DetectLatest(ctx context.Context, current string) (Release, bool, error) {
	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(g.Slug))
	if err != nil {
		return Release{}, false, fmt.Errorf("detect latest release of %s: %w", g.Slug, err)
	}
	if !found {
		return Release{}, false, nil
	}
	return Release{
		Version: latest.Version(),
		Notes:   latest.ReleaseNotes,
		Newer:   latest.GreaterThan(strings.TrimPrefix(current, "v")),
	}, true, nil
}

// Confirmer asks a yes/no question.
type Confirmer interface {
	Confirm(question string) (bool, error)
}

// Checker runs the update check against the devenv checkout at the layout root.
type Checker struct {
	layout  config.Layout
	source  Source
	repo    *git.Repository
	confirm Confirmer
	printer *console.Printer
	clock   clock.Clock
	logger  *slog.Logger
}

// NewChecker constructs a Checker.
func NewChecker(layout config.Layout, source Source, repo *git.Repository, confirm Confirmer, printer *console.Printer, clk clock.Clock, logger *slog.Logger) *Checker {
	if printer == nil {
		printer = console.Discard()
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Checker{layout: layout, source: source, repo: repo, confirm: confirm, printer: printer, clock: clk, logger: logger}
}

// Check compares current with the latest release. It returns ErrUpdated after a
// successful update and a non-nil error only when ctx is done.
func (c *Checker) Check(ctx context.Context, current string) error {
	c.printer.Info("This is a universal dev env (version %s)", current)
	if current == "" || current == "dev" {
		c.logger.Debug("skipping update check for development build")
		return nil
	}

	branch, err := c.repo.CurrentBranch(ctx)
	if err != nil {
		c.logger.Debug("read devenv branch failed", "error", err)
	}
	if branch != ReleaseBranch {
		c.printer.Lines(
			c.printer.Sprint(console.Yellow, "*******************************************************"),
			c.printer.Sprint(console.Yellow, "**                     WARNING!                      **"),
			c.printer.Sprint(console.Yellow, "**         YOU ARE NOT ON THE MASTER BRANCH          **"),
			c.printer.Sprint(console.Yellow, "**            UPDATE CHECKING IS DISABLED            **"),
			c.printer.Sprint(console.Yellow, "**          THERE MAY BE UNSTABLE FEATURES           **"),
			c.printer.Sprint(console.Yellow, "**   IF YOU DON'T KNOW WHY YOU ARE ON THIS BRANCH    **"),
			c.printer.Sprint(console.Yellow, "**          THEN YOU PROBABLY SHOULDN'T BE!          **"),
			c.printer.Sprint(console.Yellow, "*******************************************************"),
			"",
		)
		c.printer.Warn("Continuing in 5 seconds (CTRL+C to quit)...")
		return c.clock.Sleep(ctx, Pause)
	}

	rel, found, err := c.source.DetectLatest(ctx, current)
	if err != nil || !found {
		if err != nil {
			c.logger.Warn("update check failed", "error", err)
		}
		c.printer.Warn("There was an error retrieving the current dev-env version. I'll just get on with starting the machine.")
		c.printer.Warn("Continuing in 5 seconds...")
		return c.clock.Sleep(ctx, Pause)
	}
	if !rel.Newer {
		c.printer.Success("This is the latest version.")
		return nil
	}

	c.printer.Warn("A new version is available - v%s", strings.TrimPrefix(rel.Version, "v"))
	c.printer.Warn("Changes:")
	c.printer.Warn("%s", rel.Notes)
	c.printer.Blank()

	if c.refusedToday() {
		c.printer.Warn("You've already said you don't want to update today, so I won't ask again. To update manually, run git pull.")
		c.printer.Blank()
		return nil
	}

	yes, err := c.confirm.Confirm("Would you like to update now?")
	if err != nil {
		c.logger.Warn("read update answer failed", "error", err)
		return nil
	}
	if !yes {
		c.printer.Blank()
		c.printer.Warn("Okay. I'll ask again tomorrow. If you want to update in the meantime, simply run git pull yourself.")
		c.printer.Warn("Continuing in 5 seconds...")
		c.printer.Blank()
		if err := os.WriteFile(c.layout.UpdateCheckFile(), []byte(c.clock.Now().Format(dateLayout)), 0o644); err != nil {
			c.logger.Warn("record declined update failed", "error", err)
		}
		return c.clock.Sleep(ctx, Pause)
	}

	if _, err := c.repo.Pull(ctx); err != nil {
		c.logger.Warn("update failed", "error", err)
		c.printer.Warn("There was an error retrieving the new dev-env. Sorry. I'll just get on with starting the machine.")
		c.printer.Warn("Continuing in 5 seconds...")
		return c.clock.Sleep(ctx, Pause)
	}
	c.printer.Warn("Update successful.")
	c.printer.Warn("Please rerun your command (devenv up)")
	return ErrUpdated
}

// refusedToday reports whether the operator declined an update today. A refusal
// recorded on an earlier day is cleared.
func (c *Checker) refusedToday() bool {
	path := c.layout.UpdateCheckFile()
	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Debug("read update check file failed", "error", err)
		}
		return false
	}
	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(string(raw)), time.Local)
	if err == nil && day.Format(dateLayout) == c.clock.Now().Format(dateLayout) {
		return true
	}
	_ = os.Remove(path)
	return false
}
