package commodity

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/clock"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/compose"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/config"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/health"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/runner"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/state"
)

func environment(apps ...string) *config.Environment {
	cfg := &config.Environment{Applications: map[string]config.Application{}}
	for _, app := range apps {
		cfg.Applications[app] = config.Application{}
	}
	cfg.SetOrder(apps...)
	return cfg
}

func TestResolveUnionsDeclarationsAndAddsLogging(t *testing.T) {
	envCfg := environment("api", "web", "batch")
	appCfgs := map[string]*config.AppConfig{
		"api": {Commodities: []string{"postgres-13", "auth", "postgres-13"}},
		"web": {Commodities: []string{"auth"}},
	}

	res := Resolve(envCfg, appCfgs)
	assert.Equal(t, []string{"auth", "logging", "postgres-13"}, res.Commodities)
	assert.Equal(t, map[string][]string{
		"api": {"postgres-13", "auth"},
		"web": {"auth"},
	}, res.ByApp)
}

func TestResolveWithoutApplications(t *testing.T) {
	res := Resolve(environment(), nil)
	assert.Equal(t, []string{Logging}, res.Commodities)
	assert.Empty(t, res.ByApp)
}

func TestMergeIsIdempotentAndKeepsStaleEntries(t *testing.T) {
	layout := config.Layout{Root: t.TempDir()}
	store := state.NewStore(layout, nil)

	require.NoError(t, store.SetCommodityProvisioned("retired", "postgres-13", true))
	require.NoError(t, store.SetCommodityProvisioned("api", "auth", true))

	res := Resolve(environment("api"), map[string]*config.AppConfig{
		"api": {Commodities: []string{"auth", "postgres-17"}},
	})

	first, err := Merge(store, res, nil)
	require.NoError(t, err)
	raw1, err := os.ReadFile(layout.CommoditiesFile())
	require.NoError(t, err)

	second, err := Merge(store, res, nil)
	require.NoError(t, err)
	raw2, err := os.ReadFile(layout.CommoditiesFile())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, string(raw1), string(raw2))
	assert.True(t, second.Provisioned("retired", "postgres-13"), "stale entries are never removed")
	assert.True(t, second.Provisioned("api", "auth"), "existing status is preserved")
	assert.True(t, second.Has("api", "postgres-17"))
	assert.False(t, second.Provisioned("api", "postgres-17"))
	assert.Equal(t, []string{"auth", "logging", "postgres-17"}, second.Commodities)
}

func TestContainerToCommodity(t *testing.T) {
	assert.Equal(t, "auth", ContainerToCommodity("openldap"))
	assert.Equal(t, "postgres-13", ContainerToCommodity("postgres-13"))
}

type fakeComposer struct{ ups [][]string }

func (f *fakeComposer) Up(_ context.Context, opts compose.UpOptions) (runner.Result, error) {
	f.ups = append(f.ups, opts.Services)
	return runner.Result{}, nil
}

// readyAfter reports healthy once it has been probed n times.
type readyAfter struct {
	n      int
	probes int
}

func (r *readyAfter) Probe(context.Context, string, health.Check) bool {
	r.probes++
	return r.probes > r.n
}

type fakeRuntime struct{ execs []string }

func (f *fakeRuntime) CopyTo(_ context.Context, src, container, dest string) error {
	f.execs = append(f.execs, "cp "+filepath.Base(src)+" "+container+":"+dest)
	return nil
}

func (f *fakeRuntime) ExecArgs(_ context.Context, container string, args ...string) (runner.Result, error) {
	f.execs = append(f.execs, container+" "+args[0])
	return runner.Result{}, nil
}

type fixture struct {
	layout   config.Layout
	store    *state.Store
	composer *fakeComposer
	prober   *readyAfter
	runtime  *fakeRuntime
	clock    *clock.Fake
	prov     *Provisioner
	envCfg   *config.Environment
	appCfgs  map[string]*config.AppConfig
}

func newFixture(t *testing.T, apps ...string) *fixture {
	t.Helper()
	f := &fixture{
		layout:   config.Layout{Root: t.TempDir()},
		composer: &fakeComposer{},
		prober:   &readyAfter{n: 2},
		runtime:  &fakeRuntime{},
		clock:    clock.NewFake(time.Unix(0, 0)),
		envCfg:   environment(apps...),
		appCfgs:  map[string]*config.AppConfig{},
	}
	f.store = state.NewStore(f.layout, nil)
	for _, app := range apps {
		f.appCfgs[app] = &config.AppConfig{Commodities: []string{"postgres-13"}}
		dir := f.layout.FragmentsDir(app)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, PostgresPayload), []byte("select 1;"), 0o644))
	}
	_, err := Merge(f.store, Resolve(f.envCfg, f.appCfgs), nil)
	require.NoError(t, err)

	f.prov = NewProvisioner(Deps{
		Layout:   f.layout,
		Store:    f.store,
		Composer: f.composer,
		Prober:   f.prober,
		Runtime:  f.runtime,
		Clock:    f.clock,
	}, Postgres("13"))
	return f
}

func (f *fixture) provisioned(t *testing.T, app string) bool {
	t.Helper()
	ok, err := f.store.CommodityProvisioned(app, "postgres-13")
	require.NoError(t, err)
	return ok
}

func TestSharedInstanceFreshContainerProvisionsEveryApp(t *testing.T) {
	f := newFixture(t, "api", "web")
	require.NoError(t, f.store.SetCommodityProvisioned("api", "postgres-13", true))

	err := f.prov.ProvisionAll(context.Background(), f.envCfg, f.appCfgs, []string{"postgres-13"})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"postgres-13"}}, f.composer.ups, "container started exactly once")
	assert.Equal(t, []string{
		"cp postgres-init-fragment.sql postgres-13:/postgres-init-fragment.sql",
		"postgres-13 psql",
		"cp postgres-init-fragment.sql postgres-13:/postgres-init-fragment.sql",
		"postgres-13 psql",
	}, f.runtime.execs)
	assert.True(t, f.provisioned(t, "api"))
	assert.True(t, f.provisioned(t, "web"))
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second, 3 * time.Second}, f.clock.Sleeps(),
		"two polls then one settle")
}

func TestProvisionSkipsAlreadyProvisioned(t *testing.T) {
	f := newFixture(t, "api")
	require.NoError(t, f.store.SetCommodityProvisioned("api", "postgres-13", true))

	require.NoError(t, f.prov.ProvisionAll(context.Background(), f.envCfg, f.appCfgs, nil))
	assert.Empty(t, f.composer.ups)
	assert.Empty(t, f.runtime.execs)
}

func TestProvisionSkipsAppsWithoutPayload(t *testing.T) {
	f := newFixture(t, "api")
	require.NoError(t, os.Remove(filepath.Join(f.layout.FragmentsDir("api"), PostgresPayload)))

	require.NoError(t, f.prov.ProvisionAll(context.Background(), f.envCfg, f.appCfgs, nil))
	assert.Empty(t, f.composer.ups)
	assert.False(t, f.provisioned(t, "api"))
}

func TestProvisionMaxWaitEscalates(t *testing.T) {
	f := newFixture(t, "api")
	f.prober.n = 1000
	f.prov.MaxWait = 10 * time.Second

	err := f.prov.ProvisionAll(context.Background(), f.envCfg, f.appCfgs, nil)
	require.ErrorIs(t, err, ErrNotReady)
	assert.False(t, f.provisioned(t, "api"))
}

func TestPostgresInstances(t *testing.T) {
	insts := PostgresInstances()
	require.Len(t, insts, 2)
	assert.Equal(t, "postgres-13", insts[0].Container)
	assert.Equal(t, "Postgres 17", insts[1].Label)
}
