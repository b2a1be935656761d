// Package health decides whether a running service container is ready, either from
// the runtime's own healthcheck status or by running a custom command inside it.
package health

import (
	"context"
	"strings"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/config"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/console"
)

// StatusHealthy is the only runtime health status treated as ready.
const StatusHealthy = "healthy"

// Check is a health check specification: the literal "docker" selects the runtime's
// native healthcheck, anything else is a shell command run inside the container.
type Check string

// Native reports whether c uses the runtime's native healthcheck.
func (c Check) Native() bool {
	return strings.TrimSpace(string(c)) == config.NativeHealthcheck
}

// Describe names the mechanism for operator-facing lines.
func (c Check) Describe() string {
	if c.Native() {
		return "using Docker healthcheck"
	}
	return "using custom healthcheck"
}

// Runtime is the container runtime surface needed to probe a service.
type Runtime interface {
	// HealthStatus returns the runtime's health status string for container.
	HealthStatus(ctx context.Context, container string) (string, error)
	// Exec runs command through a shell inside container and returns its exit code.
	Exec(ctx context.Context, container, command string) (int, error)
}

// Target is a service to be probed together with its attempt counter.
type Target struct {
	// Service is the compose service (and container) name.
	Service string
	// Check is the health check specification.
	Check Check
	// Attempts counts probes issued against this target since it was last reset.
	Attempts int
}

// Prober answers "is this service healthy right now". It never retries or sleeps.
type Prober struct {
	rt      Runtime
	printer *console.Printer
}

// NewProber constructs a Prober over rt. A nil printer discards progress lines.
func NewProber(rt Runtime, printer *console.Printer) *Prober {
	if printer == nil {
		printer = console.Discard()
	}
	return &Prober{rt: rt, printer: printer}
}

// Probe checks service once. Query failures count as not healthy.
func (p *Prober) Probe(ctx context.Context, service string, check Check) bool {
	if check.Native() {
		status, err := p.rt.HealthStatus(ctx, service)
		if err != nil {
			return false
		}
		return strings.TrimSpace(status) == StatusHealthy
	}
	code, err := p.rt.Exec(ctx, service, string(check))
	return err == nil && code == 0
}

// ProbeTarget increments t.Attempts, prints a progress line and probes t.
func (p *Prober) ProbeTarget(ctx context.Context, t *Target) bool {
	t.Attempts++
	p.printer.Info("Checking if %s is healthy (%s) - Attempt %d", t.Service, t.Check.Describe(), t.Attempts)
	return p.Probe(ctx, t.Service, t.Check)
}
