// Package git provides typed access to the git CLI. Every Repository method
// targets its directory with "git -C <dir>".
package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/runner"
)

// Detached is reported by CurrentBranch when HEAD does not point at a branch.
const Detached = "detached"

// Repository is a git working tree at a specific directory.
type Repository struct {
	dir    string
	runner runner.Runner
}

// NewRepository returns a Repository targeting dir.
func NewRepository(dir string, r runner.Runner) *Repository {
	return &Repository{dir: dir, runner: r}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string { return r.dir }

// Run executes a git command in the repository. The result carries the combined
// output even when the command fails.
func (r *Repository) Run(ctx context.Context, args ...string) (runner.Result, error) {
	return run(ctx, r.runner, append([]string{"-C", r.dir}, args...)...)
}

// CurrentBranch returns the checked out branch, or Detached.
func (r *Repository) CurrentBranch(ctx context.Context) (string, error) {
	res, err := r.Run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	branch := strings.TrimSpace(strings.Join(res.Tail(1), ""))
	if branch == "HEAD" {
		return Detached, nil
	}
	return branch, nil
}

// Fetch fetches from remote.
func (r *Repository) Fetch(ctx context.Context, remote string) (runner.Result, error) {
	return r.Run(ctx, "fetch", remote)
}

// MergeFastForward fast-forwards the current branch to its upstream.
func (r *Repository) MergeFastForward(ctx context.Context) (runner.Result, error) {
	return r.Run(ctx, "merge", "--ff-only")
}

// Pull pulls the current branch.
func (r *Repository) Pull(ctx context.Context) (runner.Result, error) {
	return r.Run(ctx, "pull")
}

// Checkout checks out ref.
func (r *Repository) Checkout(ctx context.Context, ref string) (runner.Result, error) {
	return r.Run(ctx, "checkout", ref)
}

// Clone clones url into dir and returns the new Repository.
func Clone(ctx context.Context, rn runner.Runner, url, dir string) (*Repository, runner.Result, error) {
	res, err := run(ctx, rn, "clone", url, dir)
	if err != nil {
		return nil, res, err
	}
	return NewRepository(dir, rn), res, nil
}

func run(ctx context.Context, rn runner.Runner, args ...string) (runner.Result, error) {
	res, err := rn.Run(ctx, runner.Cmd{Name: "git", Args: args})
	if err != nil {
		return res, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	if !res.OK() {
		return res, fmt.Errorf("git %s exited with %d: %s", strings.Join(args, " "), res.ExitCode, strings.Join(res.Tail(1), ""))
	}
	return res, nil
}
