package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/clock"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/compose"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/config"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/console"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/health"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/logging"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/runner"
)

// Composer is the compose tool surface used during startup.
type Composer interface {
	Up(ctx context.Context, opts compose.UpOptions) (runner.Result, error)
	Stop(ctx context.Context, services ...string) (runner.Result, error)
	ConfigServices(ctx context.Context) ([]string, error)
}

// Runtime supplies per-container diagnostics.
type Runtime interface {
	LastLogLine(ctx context.Context, container string) (string, error)
	RestartCount(ctx context.Context, container string) (int, error)
}

// Prober answers service health.
type Prober interface {
	Probe(ctx context.Context, service string, check health.Check) bool
	ProbeTarget(ctx context.Context, t *health.Target) bool
}

// PostStart runs once the expensive services have settled.
type PostStart interface {
	Run(ctx context.Context, envCfg *config.Environment) error
}

// Options tune the startup loop.
type Options struct {
	// MaxInProgress caps descriptors started but not yet healthy.
	MaxInProgress int
	// RestartThreshold abandons a descriptor whose restart count exceeds it.
	RestartThreshold int
	// SweepInterval is the pause between sweeps while anything is in progress.
	SweepInterval time.Duration
	// DependencyBackoff is the pause after an unmet dependency.
	DependencyBackoff time.Duration
	// LoggingService is started first, alone.
	LoggingService string
	// LoggingSettle is the pause after starting LoggingService.
	LoggingSettle time.Duration
	// LogTailLines is the number of log lines shown on fatal errors.
	LogTailLines int
	// FileList is the fragment list file; missing or empty means nothing to start.
	FileList string
	// StartLogFile receives the output of the bulk start. Individual expensive
	// starts append to it.
	StartLogFile string
}

// DefaultOptions returns the standard startup tuning.
func DefaultOptions() Options {
	return Options{
		MaxInProgress:     3,
		RestartThreshold:  9,
		SweepInterval:     5 * time.Second,
		DependencyBackoff: 3 * time.Second,
		LoggingService:    "logstash",
		LoggingSettle:     3 * time.Second,
		LogTailLines:      10,
	}
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Composer  Composer
	Runtime   Runtime
	Prober    Prober
	PostStart PostStart
	Printer   *console.Printer
	Clock     clock.Clock
	Logger    *slog.Logger
}

// Orchestrator is the single controller of the startup work queues. It is not safe
// for concurrent use.
type Orchestrator struct {
	deps Deps
	opts Options

	todo       []*Descriptor
	inProgress []*Descriptor
	failed     []*Descriptor
	healthy    []*Descriptor
	available  map[string]bool
}

// New constructs an Orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	if deps.Printer == nil {
		deps.Printer = console.Discard()
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if opts.MaxInProgress <= 0 {
		opts.MaxInProgress = 1
	}
	return &Orchestrator{deps: deps, opts: opts}
}

// CheckFileList returns ErrNothingToStart when the fragment list is missing or empty.
func CheckFileList(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNothingToStart
		}
		return fmt.Errorf("stat fragment list %q: %w", path, err)
	}
	if info.Size() == 0 {
		return ErrNothingToStart
	}
	return nil
}

// Start brings up the environment: the logging service, then every inexpensive
// service in bulk, then the expensive services through the bounded loop, then the
// post-start step. Failures of individual expensive services are reported, not
// returned.
func (o *Orchestrator) Start(ctx context.Context, envCfg *config.Environment, appCfgs map[string]*config.AppConfig) (*Report, error) {
	if err := CheckFileList(o.opts.FileList); err != nil {
		return nil, err
	}
	services, err := o.deps.Composer.ConfigServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list composed services: %w", err)
	}

	plan := Classify(services, envCfg, appCfgs, o.deps.Printer)
	o.load(plan)
	inexpensive := remove(plan.Inexpensive, o.opts.LoggingService)
	o.deps.Logger.Info("startup planned",
		"services", len(plan.Topology),
		"inexpensive", len(inexpensive),
		"expensive", len(plan.Expensive),
		"disabled", len(plan.Disabled))

	if err := o.startLogging(ctx); err != nil {
		return nil, err
	}
	if err := o.startInexpensive(ctx, inexpensive); err != nil {
		return nil, err
	}
	if len(o.todo) > 0 {
		o.deps.Printer.Info("Starting expensive services... (appending to %s)", o.opts.StartLogFile)
	}
	if err := o.Drive(ctx); err != nil {
		return nil, err
	}

	if o.deps.PostStart != nil {
		if err := o.deps.PostStart.Run(ctx, envCfg); err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			o.deps.Logger.Warn("post-start provisioning failed", "error", err)
			o.deps.Printer.Error("Custom provisioning reported errors: %v", err)
		}
	}

	report := o.report()
	if envCfg != nil {
		report.PostUpMessage = envCfg.PostUpMessage
	}
	return report, nil
}

// load resets the queues from plan.
func (o *Orchestrator) load(plan Plan) {
	o.todo = nil
	o.inProgress = nil
	o.failed = nil
	o.healthy = nil
	o.available = make(map[string]bool, len(plan.Topology))
	for _, s := range plan.Topology {
		o.available[s] = true
	}
	for _, s := range plan.Disabled {
		delete(o.available, s)
	}
	for _, d := range plan.Expensive {
		d.State = Todo
		o.todo = append(o.todo, d)
	}
}

func (o *Orchestrator) startLogging(ctx context.Context) error {
	if o.opts.LoggingService == "" {
		return nil
	}
	res, err := o.deps.Composer.Up(ctx, compose.UpOptions{
		Services:      []string{o.opts.LoggingService},
		Detach:        true,
		NoDeps:        true,
		RemoveOrphans: true,
	})
	if serr := o.deps.Clock.Sleep(ctx, o.opts.LoggingSettle); serr != nil {
		return serr
	}
	if err != nil {
		return &FatalError{
			Msg:  "Something went wrong when initialising live container logging. Check the output above.",
			Tail: res.Tail(o.opts.LogTailLines),
			Err:  err,
		}
	}
	return nil
}

func (o *Orchestrator) startInexpensive(ctx context.Context, services []string) error {
	if len(services) == 0 {
		return nil
	}
	o.deps.Printer.Info("Starting inexpensive services... (logging to %s)", o.opts.StartLogFile)
	res, err := o.deps.Composer.Up(ctx, compose.UpOptions{
		Services:      services,
		Detach:        true,
		NoDeps:        true,
		RemoveOrphans: true,
		LogFile:       o.opts.StartLogFile,
	})
	if err == nil {
		return nil
	}
	tail := res.Tail(o.opts.LogTailLines)
	if len(tail) == 0 && o.opts.StartLogFile != "" {
		tail, _ = runner.TailFile(o.opts.StartLogFile, o.opts.LogTailLines)
	}
	return &FatalError{
		Msg:  fmt.Sprintf("Something went wrong when starting the containers, check the log file. Here are the last %d lines:", o.opts.LogTailLines),
		Tail: tail,
		Err:  err,
	}
}

// Drive runs sweeps until todo and in-progress are both empty or ctx is done.
func (o *Orchestrator) Drive(ctx context.Context) error {
	for len(o.todo) > 0 || len(o.inProgress) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(o.inProgress) > 0 {
			o.deps.Printer.Blank()
			if err := o.deps.Clock.Sleep(ctx, o.opts.SweepInterval); err != nil {
				return err
			}
		}
		o.sweep(ctx)
		o.diagnose(ctx)
		o.resolveStarved()
		if err := o.admit(ctx); err != nil {
			return err
		}
	}
	return nil
}

// sweep removes every in-progress descriptor that now probes healthy.
func (o *Orchestrator) sweep(ctx context.Context) {
	still := o.inProgress[:0]
	for _, d := range o.inProgress {
		if o.deps.Prober.ProbeTarget(ctx, &d.Target) {
			d.State = Healthy
			o.healthy = append(o.healthy, d)
			o.deps.Printer.Success("%s is healthy", d.Service)
			o.deps.Logger.Info("service healthy", "service", d.Service, "attempts", d.Attempts)
			continue
		}
		still = append(still, d)
	}
	o.inProgress = still
}

// diagnose reports the state of every in-progress descriptor and abandons those
// restarted more often than the threshold.
func (o *Orchestrator) diagnose(ctx context.Context) {
	still := o.inProgress[:0]
	for _, d := range o.inProgress {
		line, err := o.deps.Runtime.LastLogLine(ctx, d.Service)
		if err != nil {
			o.deps.Logger.Debug("read last log line failed", "service", d.Service, "error", err)
		}
		o.deps.Printer.Warn("Not yet (Last log line: %s)", line)

		count, err := o.deps.Runtime.RestartCount(ctx, d.Service)
		if err != nil {
			o.deps.Logger.Debug("read restart count failed", "service", d.Service, "error", err)
			count = 0
		}
		d.Restarts = count
		if count > 0 {
			o.deps.Printer.Notice("The container has exited (crashed?) and been restarted %d times (max %d allowed)", count, o.opts.RestartThreshold+1)
		}
		if count > o.opts.RestartThreshold {
			o.deps.Printer.Error("The failure threshold has been reached. Skipping this container")
			o.fail(d, fmt.Sprintf("restarted %d times", count))
			if _, err := o.deps.Composer.Stop(ctx, d.Service); err != nil {
				o.deps.Logger.Warn("stop abandoned service failed", "service", d.Service, "error", err)
			}
			continue
		}
		still = append(still, d)
	}
	o.inProgress = still
}

// resolveStarved fails every todo descriptor that can never be admitted: it waits on
// itself, or one of its dependencies failed, is not part of the started topology, or
// is queued behind it.
func (o *Orchestrator) resolveStarved() {
	for changed := true; changed; {
		changed = false
		for i, d := range o.todo {
			reason := o.blockedReason(d, i)
			if reason == "" {
				continue
			}
			o.deps.Printer.Error("%s will not be started: %s", d.Service, reason)
			o.todo = slices.Delete(o.todo, i, i+1)
			o.fail(d, reason)
			changed = true
			break
		}
	}
}

func (o *Orchestrator) blockedReason(d *Descriptor, pos int) string {
	for _, dep := range d.WaitFor {
		if dep.Service == d.Service {
			return "waits on itself"
		}
		if slices.ContainsFunc(o.failed, func(f *Descriptor) bool { return f.Service == dep.Service }) {
			return fmt.Sprintf("dependency %s failed", dep.Service)
		}
		if !o.available[dep.Service] {
			return fmt.Sprintf("dependency %s unavailable", dep.Service)
		}
		if slices.ContainsFunc(o.todo[pos+1:], func(q *Descriptor) bool { return q.Service == dep.Service }) {
			return fmt.Sprintf("dependency %s is queued after it", dep.Service)
		}
	}
	return ""
}

// admit starts todo descriptors in order while capacity remains. The first unmet
// dependency ends admission for this sweep after DependencyBackoff.
func (o *Orchestrator) admit(ctx context.Context) error {
	for len(o.inProgress) < o.opts.MaxInProgress && len(o.todo) > 0 {
		d := o.todo[0]
		if len(d.WaitFor) > 0 {
			o.deps.Printer.Info("%s has dependencies it would like to be healthy before starting:", d.Service)
		}
		for _, dep := range d.WaitFor {
			o.deps.Printer.Info("Checking if %s is healthy (%s)", dep.Service, dep.Check.Describe())
			if !o.deps.Prober.Probe(ctx, dep.Service, dep.Check) {
				o.deps.Printer.Warn("%s is not healthy, so %s will not be started yet", dep.Service, d.Service)
				return o.deps.Clock.Sleep(ctx, o.opts.DependencyBackoff)
			}
			o.deps.Printer.Success("It is!")
		}

		o.todo = o.todo[1:]
		if _, err := o.deps.Composer.Up(ctx, compose.UpOptions{
			Services:      []string{d.Service},
			Detach:        true,
			NoDeps:        true,
			RemoveOrphans: true,
			LogFile:       o.opts.StartLogFile,
			AppendLog:     true,
		}); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.deps.Printer.Error("Could not start %s: %v", d.Service, err)
			o.fail(d, "start failed")
			continue
		}
		d.Attempts = 0
		d.State = InProgress
		o.inProgress = append(o.inProgress, d)
		o.deps.Logger.Info("service started", "service", d.Service, "app", d.App)
	}
	return nil
}

func (o *Orchestrator) fail(d *Descriptor, reason string) {
	d.State = Failed
	d.Reason = reason
	o.failed = append(o.failed, d)
	o.deps.Logger.Warn("service failed", "service", d.Service, "reason", reason)
}

// Snapshot lists the services in each queue.
type Snapshot struct {
	Todo       []string
	InProgress []string
	Failed     []string
	Healthy    []string
}

// Snapshot returns the current queue contents.
func (o *Orchestrator) Snapshot() Snapshot {
	names := func(ds []*Descriptor) []string {
		out := make([]string, 0, len(ds))
		for _, d := range ds {
			out = append(out, d.Service)
		}
		return out
	}
	return Snapshot{
		Todo:       names(o.todo),
		InProgress: names(o.inProgress),
		Failed:     names(o.failed),
		Healthy:    names(o.healthy),
	}
}

func (o *Orchestrator) report() *Report {
	r := &Report{Healthy: len(o.healthy)}
	for _, d := range o.failed {
		r.Failed = append(r.Failed, FailedService{Service: d.Service, App: d.App, Reason: d.Reason})
	}
	return r
}
