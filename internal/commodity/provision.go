package commodity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/clock"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/compose"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/config"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/console"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/health"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/logging"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/runner"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/state"
)

const (
	// DefaultPollInterval is the pause between readiness probes of a commodity container.
	DefaultPollInterval = 3 * time.Second
	// DefaultSettle is the pause after a commodity container first reports healthy.
	DefaultSettle = 3 * time.Second
)

// ErrNotReady is returned when a commodity container stays unhealthy beyond MaxWait.
var ErrNotReady = errors.New("commodity container not ready")

// Composer starts commodity containers.
type Composer interface {
	Up(ctx context.Context, opts compose.UpOptions) (runner.Result, error)
}

// Prober answers readiness of a container.
type Prober interface {
	Probe(ctx context.Context, service string, check health.Check) bool
}

// Runtime copies payloads into and runs commands inside commodity containers.
type Runtime interface {
	CopyTo(ctx context.Context, src, container, dest string) error
	ExecArgs(ctx context.Context, container string, args ...string) (runner.Result, error)
}

// ApplyFunc applies the payload at path for app inside the instance container.
type ApplyFunc func(ctx context.Context, rt Runtime, inst Instance, app, path string) error

// Instance is one physical commodity container shared by every application that
// declares its commodity.
type Instance struct {
	// Commodity is the key used in application declarations and the status table.
	Commodity string
	// Container is the compose service and container name.
	Container string
	// Label names the instance in operator-facing lines.
	Label string
	// Payload is the per-application initialization file under fragments/.
	Payload string
	// Apply runs the payload.
	Apply ApplyFunc
}

// Deps are the collaborators of a Provisioner.
type Deps struct {
	Layout   config.Layout
	Store    *state.Store
	Composer Composer
	Prober   Prober
	Runtime  Runtime
	Printer  *console.Printer
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Provisioner runs the shared-instance provisioning protocol for each registered
// Instance.
type Provisioner struct {
	deps      Deps
	instances []Instance

	// PollInterval is the pause between readiness probes.
	PollInterval time.Duration
	// Settle is the pause after the container first reports healthy.
	Settle time.Duration
	// MaxWait bounds the readiness wait; zero waits indefinitely.
	MaxWait time.Duration
}

// NewProvisioner constructs a Provisioner with the default intervals.
func NewProvisioner(deps Deps, instances ...Instance) *Provisioner {
	if deps.Printer == nil {
		deps.Printer = console.Discard()
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	return &Provisioner{
		deps:         deps,
		instances:    instances,
		PollInterval: DefaultPollInterval,
		Settle:       DefaultSettle,
	}
}

// Instances returns the registered instances in provisioning order.
func (p *Provisioner) Instances() []Instance {
	return append([]Instance(nil), p.instances...)
}

// ProvisionAll provisions every registered instance in order. fresh lists the
// containers created by this run.
func (p *Provisioner) ProvisionAll(ctx context.Context, envCfg *config.Environment, appCfgs map[string]*config.AppConfig, fresh []string) error {
	p.deps.Printer.Info("Provisioning commodities...")
	var errs []error
	for _, inst := range p.instances {
		if err := p.Provision(ctx, inst, envCfg, appCfgs, fresh); err != nil {
			if ctx.Err() != nil {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Provision applies inst's payload for every application that requires it and has a
// payload, skipping applications already provisioned unless the container is fresh.
// The container is started at most once.
func (p *Provisioner) Provision(ctx context.Context, inst Instance, envCfg *config.Environment, appCfgs map[string]*config.AppConfig, fresh []string) error {
	if envCfg == nil || len(envCfg.Applications) == 0 {
		return nil
	}
	commodity := ContainerToCommodity(inst.Commodity)
	isFresh := slices.Contains(fresh, inst.Container)
	if isFresh {
		p.deps.Printer.Warn("The %s container has been newly created - provision status in .commodities will be ignored", inst.Label)
	}

	started := false
	var errs []error
	for _, app := range envCfg.AppNames() {
		if !appCfgs[app].Requires(commodity) {
			continue
		}
		payload := filepath.Join(p.deps.Layout.FragmentsDir(app), inst.Payload)
		if _, err := os.Stat(payload); err != nil {
			continue
		}
		p.deps.Printer.Notice("Found %s init payload in %s", inst.Label, app)

		done, err := p.deps.Store.CommodityProvisioned(app, commodity)
		if err != nil {
			return err
		}
		if done && !isFresh {
			p.deps.Printer.Warn("%s has previously been provisioned for %s, skipping", inst.Label, app)
			continue
		}

		if !started {
			if err := p.startAndWait(ctx, inst); err != nil {
				return err
			}
			started = true
		}

		p.deps.Printer.Notice("Executing %s payload for %s...", inst.Label, app)
		if err := inst.Apply(ctx, p.deps.Runtime, inst, app, payload); err != nil {
			p.deps.Printer.Error("Provisioning %s for %s failed: %v", inst.Label, app, err)
			errs = append(errs, fmt.Errorf("provision %s for %s: %w", inst.Container, app, err))
			continue
		}
		p.deps.Printer.Notice("...done.")
		if err := p.deps.Store.SetCommodityProvisioned(app, commodity, true); err != nil {
			return err
		}
		p.deps.Logger.Info("commodity provisioned", "app", app, "commodity", commodity)
	}
	return errors.Join(errs...)
}

func (p *Provisioner) startAndWait(ctx context.Context, inst Instance) error {
	if _, err := p.deps.Composer.Up(ctx, compose.UpOptions{Services: []string{inst.Container}, Detach: true}); err != nil {
		return fmt.Errorf("start %s: %w", inst.Container, err)
	}
	p.deps.Printer.Info("Waiting for %s to finish initialising", inst.Label)

	deadline := time.Time{}
	if p.MaxWait > 0 {
		deadline = p.deps.Clock.Now().Add(p.MaxWait)
	}
	for !p.deps.Prober.Probe(ctx, inst.Container, config.NativeHealthcheck) {
		if !deadline.IsZero() && !p.deps.Clock.Now().Before(deadline) {
			return fmt.Errorf("%s after %s: %w", inst.Container, p.MaxWait, ErrNotReady)
		}
		p.deps.Printer.Warn("%s is unavailable - sleeping", inst.Label)
		if err := p.deps.Clock.Sleep(ctx, p.PollInterval); err != nil {
			return err
		}
	}
	if err := p.deps.Clock.Sleep(ctx, p.Settle); err != nil {
		return err
	}
	p.deps.Printer.Success("%s is ready", inst.Label)
	return nil
}
