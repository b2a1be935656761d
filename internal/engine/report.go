package engine

import (
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/console"
)

// FailedService is an expensive service abandoned during startup.
type FailedService struct {
	Service string
	App     string
	Reason  string
}

// Report summarizes a completed start.
type Report struct {
	// Failed lists abandoned services in the order they failed.
	Failed []FailedService
	// Healthy counts expensive services that became healthy.
	Healthy int
	// PostUpMessage is the operator message from the environment configuration.
	PostUpMessage string
}

// Degraded reports whether any expensive service failed.
func (r *Report) Degraded() bool { return len(r.Failed) > 0 }

// Print writes the end-of-start summary.
func (r *Report) Print(p *console.Printer) {
	if r.Degraded() {
		p.Warn("All done, but the following containers failed to start - check logs/log.txt for any useful error messages:")
		for _, f := range r.Failed {
			p.Warn("  %s (%s)", f.Service, f.Reason)
		}
	} else {
		p.Success("Environment is ready for use")
	}
	if r.PostUpMessage != "" {
		p.Blank()
		p.Warn("Special message from your dev-env-config:")
		p.Notice("%s", r.PostUpMessage)
	}
}
