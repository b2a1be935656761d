package hooks

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/config"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/runner"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/state"
)

func writeScript(t *testing.T, layout config.Layout, app, name string) string {
	t.Helper()
	dir := layout.FragmentsDir(app)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return path
}

func setup(t *testing.T, handler runner.Handler) (*Executor, *runner.Fake, *state.Store, config.Layout, *config.Environment) {
	t.Helper()
	layout := config.Layout{Root: t.TempDir()}
	store := state.NewStore(layout, nil)
	r := runner.NewFake(handler)
	envCfg := &config.Environment{Applications: map[string]config.Application{"api": {}, "web": {}, "bare": {}}}
	envCfg.SetOrder("api", "web", "bare")
	return NewExecutor(layout, store, r, nil, nil), r, store, layout, envCfg
}

func TestOnceScriptRunsOnlyOnce(t *testing.T) {
	exec, r, store, layout, envCfg := setup(t, nil)
	once := writeScript(t, layout, "api", OnceScript)
	always := writeScript(t, layout, "web", AlwaysScript)

	require.NoError(t, exec.Run(context.Background(), envCfg))
	require.NoError(t, exec.Run(context.Background(), envCfg))

	assert.Equal(t, []string{"sh " + once, "sh " + always, "sh " + always}, r.Commands())
	done, err := store.CustomProvisioned("api")
	require.NoError(t, err)
	assert.True(t, done)

	marker, _, err := store.LoadCustomProvision()
	require.NoError(t, err)
	assert.Equal(t, "1", marker.Version)
	assert.Equal(t, []string{"api"}, marker.Applications)
}

func TestFailedOnceScriptIsNotRecorded(t *testing.T) {
	exec, r, store, layout, envCfg := setup(t, func(runner.Cmd) (runner.Result, error) {
		return runner.Result{ExitCode: 3}, nil
	})
	writeScript(t, layout, "api", OnceScript)
	writeScript(t, layout, "api", AlwaysScript)

	err := exec.Run(context.Background(), envCfg)
	require.Error(t, err)
	assert.Len(t, r.Commands(), 2, "later steps still run")

	done, err := store.CustomProvisioned("api")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestStepsOrder(t *testing.T) {
	exec, _, _, layout, envCfg := setup(t, nil)
	writeScript(t, layout, "web", AlwaysScript)
	writeScript(t, layout, "web", OnceScript)

	steps := exec.Steps(envCfg)
	require.Len(t, steps, 2)
	assert.Equal(t, Once, steps[0].Kind)
	assert.Equal(t, Always, steps[1].Kind)
	assert.Equal(t, "web", steps[0].App)
}
