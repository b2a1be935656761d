package compose

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/env"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/runner"
)

func TestUpArguments(t *testing.T) {
	tests := []struct {
		name string
		opts UpOptions
		want string
	}{
		{name: "bulk", opts: UpOptions{Services: []string{"a", "b"}, Detach: true, RemoveOrphans: true}, want: "docker compose up -d --remove-orphans a b"},
		{name: "single", opts: UpOptions{Services: []string{"api"}, Detach: true, NoDeps: true}, want: "docker compose up -d --no-deps api"},
		{name: "create only", opts: UpOptions{NoStart: true, ForceRecreate: true, RemoveOrphans: true}, want: "docker compose up --remove-orphans --force-recreate --no-start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := runner.NewFake(nil)
			c := NewClient(nil, "", nil, r)
			_, err := c.Up(context.Background(), tt.opts)
			require.NoError(t, err)
			assert.Equal(t, []string{tt.want}, r.Commands())
		})
	}
}

func TestFileListIsPassedThroughEnvironment(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, ".docker-compose-file-list")
	joined := strings.Join([]string{"/x/root.yml", "/x/app.yml"}, Separator())
	require.NoError(t, os.WriteFile(list, []byte(joined), 0o644))

	r := runner.NewFake(nil)
	c := NewClient([]string{"docker-compose"}, list, env.Vars{"HOME": "/home/dev"}, r)
	_, err := c.Stop(context.Background(), "api")
	require.NoError(t, err)

	calls := r.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "docker-compose", calls[0].Name)
	assert.Equal(t, []string{"stop", "api"}, calls[0].Args)
	assert.Contains(t, calls[0].Env, "COMPOSE_FILE="+joined)
	assert.Contains(t, calls[0].Env, "COMPOSE_PATH_SEPARATOR="+Separator())
	assert.Contains(t, calls[0].Env, "HOME=/home/dev")
}

func TestNonZeroExitIsTypedError(t *testing.T) {
	r := runner.NewFake(func(runner.Cmd) (runner.Result, error) {
		return runner.Result{ExitCode: 2, Lines: []string{"pulling", "failed to build"}}, nil
	})
	c := NewClient(nil, "", nil, r)

	res, err := c.Build(context.Background(), true, "")
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "build", cerr.Op)
	assert.Equal(t, []string{"failed to build"}, res.Tail(1))
	assert.Equal(t, []string{"docker compose build --pull"}, r.Commands())
}

func TestServiceListings(t *testing.T) {
	r := runner.NewFake(func(cmd runner.Cmd) (runner.Result, error) {
		if cmd.Args[1] == "ps" {
			return runner.Result{Lines: []string{"postgres-13", "", "api"}}, nil
		}
		return runner.Result{Lines: []string{"api", "web", "postgres-13"}}, nil
	})
	c := NewClient(nil, "", nil, r)

	ps, err := c.PSServices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"postgres-13", "api"}, ps)

	all, err := c.ConfigServices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "web", "postgres-13"}, all)

	assert.Equal(t, []string{
		"docker compose ps --all --services",
		"docker compose config --services",
	}, r.Commands())
}

func TestDownArguments(t *testing.T) {
	r := runner.NewFake(nil)
	_, err := NewClient(nil, "", nil, r).Down(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"docker compose down --rmi all --volumes --remove-orphans"}, r.Commands())
}

// flushCounter records writes and how often Flush was called.
type flushCounter struct {
	strings.Builder
	flushes int
}

func (f *flushCounter) Flush() { f.flushes++ }

func TestOutputIsFlushedAfterEachCall(t *testing.T) {
	r := runner.NewFake(func(runner.Cmd) (runner.Result, error) {
		return runner.Result{Lines: []string{"Stopping api"}}, nil
	})
	out := &flushCounter{}
	c := NewClient(nil, "", nil, r)
	c.Output = out

	_, err := c.Stop(context.Background(), "api")
	require.NoError(t, err)
	_, err = c.Down(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, out.flushes)
	assert.Contains(t, out.String(), "Stopping api")
}

func TestUpWithLogFileBypassesOutput(t *testing.T) {
	r := runner.NewFake(nil)
	out := &flushCounter{}
	c := NewClient(nil, "", nil, r)
	c.Output = out

	_, err := c.Up(context.Background(), UpOptions{
		Services:  []string{"api"},
		Detach:    true,
		LogFile:   "/tmp/containerstart.log",
		AppendLog: true,
	})
	require.NoError(t, err)

	calls := r.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/tmp/containerstart.log", calls[0].LogFile)
	assert.True(t, calls[0].AppendLog)
	assert.Nil(t, calls[0].Output)
	assert.Zero(t, out.flushes)
}
