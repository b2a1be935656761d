// Package engine contains the staged startup orchestration of an environment:
// classifying composed services, starting cheap ones in bulk and driving expensive
// ones through a bounded, dependency-aware start and health loop.
package engine

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/config"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/console"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/health"
)

// ErrNothingToStart is returned when the fragment list is missing or empty.
var ErrNothingToStart = errors.New("nothing to start")

// FatalError aborts a start. Tail holds the log lines to show the operator.
type FatalError struct {
	Msg  string
	Tail []string
	Err  error
}

func (e *FatalError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *FatalError) Unwrap() error { return e.Err }

// State is the lifecycle position of a Descriptor.
type State int

const (
	// Todo descriptors have not been started.
	Todo State = iota
	// InProgress descriptors were started and are not yet healthy.
	InProgress
	// Healthy descriptors finished successfully.
	Healthy
	// Failed descriptors were abandoned.
	Failed
)

func (s State) String() string {
	switch s {
	case Todo:
		return "todo"
	case InProgress:
		return "in-progress"
	case Healthy:
		return "healthy"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Descriptor tracks one expensive service through startup.
type Descriptor struct {
	health.Target

	// App is the application declaring the service.
	App string
	// WaitFor lists services that must probe healthy before this one is started.
	WaitFor []health.Target
	// Restarts is the last observed container restart count.
	Restarts int
	// State is the current lifecycle position.
	State State
	// Reason explains a Failed state.
	Reason string
}

// Plan is the classification of the composed services.
type Plan struct {
	// Topology is every service defined by the fragments.
	Topology []string
	// Disabled services have auto-start turned off.
	Disabled []string
	// Expensive services are started individually, in declaration order.
	Expensive []*Descriptor
	// Inexpensive services are started in one bulk call.
	Inexpensive []string
}

// Classify partitions services into disabled, expensive and inexpensive ones.
// Expensive declarations naming services absent from the topology are ignored.
func Classify(services []string, envCfg *config.Environment, appCfgs map[string]*config.AppConfig, printer *console.Printer) Plan {
	if printer == nil {
		printer = console.Discard()
	}
	plan := Plan{Topology: append([]string(nil), services...)}
	remaining := append([]string(nil), services...)

	printer.Info("Checking application configurations...")
	apps := envCfg.AppNames()
	for _, app := range apps {
		for _, opt := range envCfg.Applications[app].Options {
			if opt.AutoStarts() {
				continue
			}
			printer.Notice("Dev-env-config option found - service %s autostart is FALSE", opt.ComposeServiceName)
			plan.Disabled = append(plan.Disabled, opt.ComposeServiceName)
			remaining = remove(remaining, opt.ComposeServiceName)
		}
	}

	// Disabled services are known for every app before any expensive declaration
	// is matched.
	for _, app := range apps {
		cfg := appCfgs[app]
		if cfg == nil {
			continue
		}
		for _, svc := range cfg.ExpensiveStartup {
			if !slices.Contains(remaining, svc.ComposeService) {
				continue
			}
			printer.Notice("Found expensive to start service %s", svc.ComposeService)
			d := &Descriptor{
				Target: health.Target{Service: svc.ComposeService, Check: checkOf(svc.HealthcheckCmd)},
				App:    app,
			}
			for _, dep := range svc.WaitUntilHealthy {
				d.WaitFor = append(d.WaitFor, health.Target{Service: dep.ComposeService, Check: checkOf(dep.HealthcheckCmd)})
			}
			plan.Expensive = append(plan.Expensive, d)
			remaining = remove(remaining, svc.ComposeService)
		}
	}
	plan.Inexpensive = remaining
	return plan
}

func checkOf(cmd string) health.Check {
	if strings.TrimSpace(cmd) == "" {
		return health.Check(config.NativeHealthcheck)
	}
	return health.Check(cmd)
}

func remove(list []string, name string) []string {
	return slices.DeleteFunc(list, func(s string) bool { return s == name })
}
