package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/clock"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/config"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/engine"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/fragments"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/logging"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/runner"
)

type inspector map[string]container.InspectResponse

func (i inspector) ContainerInspect(_ context.Context, id string, _ client.ContainerInspectOptions) (client.ContainerInspectResult, error) {
	return client.ContainerInspectResult{Container: i[id]}, nil
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func execute(t *testing.T, root string, deps Deps, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	deps.Stdout = &out
	if deps.Clock == nil {
		deps.Clock = clock.NewFake(time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC))
	}
	if deps.Runner == nil {
		deps.Runner = runner.NewFake(nil)
	}
	cmd := newRootCommand(&Options{}, logging.Discard(), deps)
	cmd.SetArgs(append([]string{"--root", root, "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoadSettings(t *testing.T) {
	s, err := loadSettings(map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, ".", s.Root)
	assert.Equal(t, []string{"docker", "compose"}, s.composeCommand())
	assert.Equal(t, 3, s.MaxInProgress)
	assert.Equal(t, 9, s.RestartThreshold)
	assert.Equal(t, 5*time.Second, s.SweepInterval)
	assert.Zero(t, s.CommodityWaitMax)

	s, err = loadSettings(map[string]string{
		"DEVENV_COMPOSE_CMD":        "docker-compose",
		"DEVENV_MAX_IN_PROGRESS":    "5",
		"DEVENV_COMMODITY_WAIT_MAX": "2m",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"docker-compose"}, s.composeCommand())
	assert.Equal(t, 5, s.MaxInProgress)
	assert.Equal(t, 2*time.Minute, s.CommodityWaitMax)

	_, err = loadSettings(map[string]string{"DEVENV_MAX_IN_PROGRESS": "0"})
	require.Error(t, err)
	_, err = loadSettings(map[string]string{"DEVENV_SWEEP_INTERVAL": "soon"})
	require.Error(t, err)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(assert.AnError))
	assert.Equal(t, 2, ExitCode(&ExitError{Code: 2, Err: assert.AnError}))
}

func TestFreshContainers(t *testing.T) {
	assert.Equal(t, []string{"postgres-13"}, freshContainers([]string{"web"}, []string{"web", "postgres-13"}))
	assert.Nil(t, freshContainers([]string{"web"}, []string{"web"}))
}

func TestStopWithoutFileListIsNoop(t *testing.T) {
	fake := runner.NewFake(nil)
	_, err := execute(t, t.TempDir(), Deps{Runner: fake}, "stop")
	require.NoError(t, err)
	assert.Empty(t, fake.Commands())
}

func TestBuildWithEmptyFileListFails(t *testing.T) {
	root := t.TempDir()
	write(t, config.Layout{Root: root}.FileList(), "")

	out, err := execute(t, root, Deps{}, "build")
	require.ErrorIs(t, err, engine.ErrNothingToStart)
	assert.Contains(t, out, "Nothing to start!")
}

func TestBuildFailurePrintsLogTail(t *testing.T) {
	root := t.TempDir()
	layout := config.Layout{Root: root}
	write(t, layout.FileList(), "a.yml")
	fake := runner.NewFake(func(cmd runner.Cmd) (runner.Result, error) {
		if cmd.LogFile != "" {
			write(t, cmd.LogFile, "step 1\nstep 2\nno space left on device\n")
		}
		return runner.Result{ExitCode: 1}, nil
	})

	out, err := execute(t, root, Deps{Runner: fake}, "build", "--no-pull")
	var fatal *engine.FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Contains(t, out, "Something went wrong when building the images")
	assert.Contains(t, out, "no space left on device")
	assert.Equal(t, []string{"docker compose build"}, fake.Commands())
}

func TestPrepareComposeWritesFragmentList(t *testing.T) {
	root := t.TempDir()
	layout := config.Layout{Root: root}
	write(t, layout.EnvironmentFile(), "applications:\n  web:\n    repo: none\n")
	write(t, layout.AppConfigFile("web"), "commodities: [postgres-13]\n")
	write(t, filepath.Join(layout.FragmentsDir("web"), fragments.DefaultFragment), "services: {}\n")

	out, err := execute(t, root, Deps{}, "prepare-compose")
	require.NoError(t, err)
	assert.Contains(t, out, "Found a new commodity dependency from web to postgres-13")

	paths, err := fragments.ReadList(layout.FileList())
	require.NoError(t, err)
	assert.Equal(t, []string{
		layout.RootFragment(),
		filepath.Join(layout.FragmentsDir("web"), fragments.DefaultFragment),
		layout.CommodityFragment("logging"),
		layout.CommodityFragment("postgres-13"),
	}, paths)
	assert.FileExists(t, layout.CommoditiesFile())
}

func TestResetKeepConfig(t *testing.T) {
	root := t.TempDir()
	layout := config.Layout{Root: root}
	write(t, layout.EnvironmentFile(), "applications: {}\n")
	write(t, layout.ContextFile(), "local")
	write(t, layout.FileList(), "a.yml")
	write(t, layout.CommoditiesFile(), "version: \"2\"\n")
	fake := runner.NewFake(nil)

	out, err := execute(t, root, Deps{Runner: fake}, "reset", "--keep-config")
	require.NoError(t, err)
	assert.Contains(t, out, "Environment reset")
	assert.Equal(t, []string{"docker compose down --rmi all --volumes --remove-orphans"}, fake.Commands())
	assert.NoFileExists(t, layout.FileList())
	assert.NoFileExists(t, layout.CommoditiesFile())
	assert.FileExists(t, layout.EnvironmentFile())
	assert.FileExists(t, layout.ContextFile())
}

func TestResetAsksAndDiscardsConfig(t *testing.T) {
	root := t.TempDir()
	layout := config.Layout{Root: root}
	write(t, layout.EnvironmentFile(), "applications: {}\n")
	write(t, layout.ContextFile(), "local")

	out, err := execute(t, root, Deps{Stdin: bytes.NewBufferString("maybe\nno\n")}, "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "Would you like to KEEP your dev-env configuration files?")
	assert.NoDirExists(t, layout.ConfigDir())
	assert.NoFileExists(t, layout.ContextFile())
}

func startFixture(t *testing.T) (string, *runner.Fake) {
	t.Helper()
	root := t.TempDir()
	layout := config.Layout{Root: root}
	write(t, layout.EnvironmentFile(), "applications:\n  web:\n    repo: none\npost-up-message: Visit http://localhost:8080\n")
	write(t, layout.AppConfigFile("web"), "expensive_startup:\n  - compose_service: web\n    healthcheck_cmd: docker\n")
	write(t, layout.FileList(), "a.yml")
	t.Setenv("GITHUB_OUTPUT", filepath.Join(root, "step-output"))
	fake := runner.NewFake(func(cmd runner.Cmd) (runner.Result, error) {
		if slices.Contains(cmd.Args, "config") {
			return runner.Result{Lines: []string{"logstash", "db", "web"}}, nil
		}
		return runner.Result{}, nil
	})
	return root, fake
}

func TestStartHealthyEnvironment(t *testing.T) {
	root, fake := startFixture(t)
	ins := inspector{"web": {State: &container.State{Health: &container.Health{Status: container.Healthy}}}}

	out, err := execute(t, root, Deps{Runner: fake, Inspector: ins}, "start")
	require.NoError(t, err)
	assert.Contains(t, out, "Environment is ready for use")
	assert.Contains(t, out, "Visit http://localhost:8080")
	assert.Contains(t, fake.Commands(), "docker compose up -d --no-deps --remove-orphans logstash")
	assert.Contains(t, fake.Commands(), "docker compose up -d --no-deps --remove-orphans db")
	assert.Contains(t, fake.Commands(), "docker compose up -d --no-deps --remove-orphans web")
}

func TestStartDegradedExitsWithCodeTwo(t *testing.T) {
	root, fake := startFixture(t)
	ins := inspector{"web": {RestartCount: 10, State: &container.State{Health: &container.Health{Status: "starting"}}}}

	out, err := execute(t, root, Deps{Runner: fake, Inspector: ins}, "start")
	require.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))
	assert.Contains(t, out, "the following containers failed to start")
	assert.Contains(t, out, "web (restarted 10 times)")
	assert.Contains(t, fake.Commands(), "docker compose stop web")

	raw, err := os.ReadFile(filepath.Join(root, "step-output"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "status=degraded\n")
	assert.Contains(t, string(raw), "failed=web (restarted 10 times)\n")
}
