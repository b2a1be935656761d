package fragments

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/clock"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/config"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/console"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("services: {}\n"), 0o644))
}

func TestAssemble(t *testing.T) {
	layout := config.Layout{Root: t.TempDir()}
	envCfg := &config.Environment{Applications: map[string]config.Application{
		"api":   {Variant: "slim"},
		"web":   {},
		"batch": {Variant: "missing"},
		"empty": {},
	}}
	envCfg.SetOrder("api", "web", "batch", "empty")

	touch(t, filepath.Join(layout.FragmentsDir("api"), "compose-fragment.yml"))
	touch(t, filepath.Join(layout.FragmentsDir("api"), "compose-fragment.slim.yml"))
	touch(t, filepath.Join(layout.FragmentsDir("web"), "compose-fragment.yml"))
	touch(t, filepath.Join(layout.FragmentsDir("web"), "old-compose-fragment.yml"))
	touch(t, filepath.Join(layout.FragmentsDir("batch"), "compose-fragment.yml"))
	touch(t, filepath.Join(layout.FragmentsDir("batch"), "compose-fragment.other.yml"))

	var out bytes.Buffer
	clk := clock.NewFake(time.Unix(0, 0))
	a := NewAssembler(layout, console.New(&out), clk)

	paths, err := a.Assemble(context.Background(), envCfg, []string{"logging", "postgres-13"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		layout.RootFragment(),
		filepath.Join(layout.FragmentsDir("api"), "compose-fragment.slim.yml"),
		filepath.Join(layout.FragmentsDir("web"), "compose-fragment.yml"),
		filepath.Join(layout.FragmentsDir("batch"), "compose-fragment.yml"),
		layout.CommodityFragment("logging"),
		layout.CommodityFragment("postgres-13"),
	}, paths)

	assert.Contains(t, out.String(), `api: Selected compose variant "slim"`)
	assert.Contains(t, out.String(), "Unsupported fragment in web: old-compose-fragment.yml")
	assert.Contains(t, out.String(), "Cannot find a valid compose fragment file in empty")
	assert.Equal(t, []time.Duration{DefaultMissingPause}, clk.Sleeps())
}

func TestListRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".docker-compose-file-list")

	got, err := ReadList(path)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, WriteList(path, []string{"/a/root.yml", "/a/app.yml"}))
	got, err = ReadList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a/root.yml", "/a/app.yml"}, got)

	require.NoError(t, os.WriteFile(path, nil, 0o644))
	got, err = ReadList(path)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFragmentName(t *testing.T) {
	assert.Equal(t, "compose-fragment.yml", FragmentName(""))
	assert.Equal(t, "compose-fragment.slim.yml", FragmentName("slim"))
}
