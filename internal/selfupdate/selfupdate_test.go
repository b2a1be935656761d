package selfupdate

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/clock"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/config"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/console"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/git"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/runner"
)

type fakeSource struct {
	rel   Release
	found bool
	err   error
}

func (f fakeSource) DetectLatest(context.Context, string) (Release, bool, error) {
	return f.rel, f.found, f.err
}

type answer struct {
	yes   bool
	asked int
}

func (a *answer) Confirm(string) (bool, error) {
	a.asked++
	return a.yes, nil
}

type fixture struct {
	layout config.Layout
	runner *runner.Fake
	clock  *clock.Fake
	out    *bytes.Buffer
	answer *answer
}

func newFixture(t *testing.T, branch string) *fixture {
	t.Helper()
	return &fixture{
		layout: config.Layout{Root: t.TempDir()},
		runner: runner.NewFake(func(cmd runner.Cmd) (runner.Result, error) {
			if cmd.Args[2] == "rev-parse" {
				return runner.Result{Lines: []string{branch}}, nil
			}
			return runner.Result{}, nil
		}),
		clock:  clock.NewFake(time.Date(2026, 10, 17, 9, 0, 0, 0, time.Local)),
		out:    &bytes.Buffer{},
		answer: &answer{},
	}
}

func (f *fixture) check(src Source) error {
	c := NewChecker(f.layout, src, git.NewRepository(f.layout.Root, f.runner), f.answer, console.New(f.out), f.clock, nil)
	return c.Check(context.Background(), "3.1.0")
}

var newer = fakeSource{rel: Release{Version: "3.2.0", Notes: "- faster startup", Newer: true}, found: true}

func TestOffReleaseBranchPrintsBanner(t *testing.T) {
	f := newFixture(t, "feature/x")
	require.NoError(t, f.check(newer))
	assert.Contains(t, f.out.String(), "YOU ARE NOT ON THE MASTER BRANCH")
	assert.Equal(t, []time.Duration{Pause}, f.clock.Sleeps())
	assert.Zero(t, f.answer.asked)
}

func TestLatestVersion(t *testing.T) {
	f := newFixture(t, ReleaseBranch)
	require.NoError(t, f.check(fakeSource{rel: Release{Version: "3.1.0"}, found: true}))
	assert.Contains(t, f.out.String(), "This is the latest version.")
}

func TestDetectionFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, ReleaseBranch)
	require.NoError(t, f.check(fakeSource{err: errors.New("rate limited")}))
	assert.Contains(t, f.out.String(), "I'll just get on with starting the machine.")
}

func TestDeclineIsRememberedForTheDay(t *testing.T) {
	f := newFixture(t, ReleaseBranch)

	require.NoError(t, f.check(newer))
	assert.Equal(t, 1, f.answer.asked)
	raw, err := os.ReadFile(f.layout.UpdateCheckFile())
	require.NoError(t, err)
	assert.Equal(t, "2026-10-17", string(raw))

	require.NoError(t, f.check(newer))
	assert.Equal(t, 1, f.answer.asked, "not asked twice on the same day")
	assert.Contains(t, f.out.String(), "so I won't ask again")
}

func TestStaleDeclineIsCleared(t *testing.T) {
	f := newFixture(t, ReleaseBranch)
	require.NoError(t, os.WriteFile(f.layout.UpdateCheckFile(), []byte("2026-10-16"), 0o644))

	require.NoError(t, f.check(newer))
	assert.Equal(t, 1, f.answer.asked)
}

func TestAcceptPullsAndAsksForRerun(t *testing.T) {
	f := newFixture(t, ReleaseBranch)
	f.answer.yes = true

	err := f.check(newer)
	require.ErrorIs(t, err, ErrUpdated)
	assert.Contains(t, f.runner.Commands(), "git -C "+f.layout.Root+" pull")
}
