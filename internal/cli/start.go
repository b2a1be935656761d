package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/engine"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/ghoutput"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/health"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/hooks"
)

// tailLines is the number of log lines printed on fatal errors.
const tailLines = 10

// newStartCommand creates the "start" subcommand.
func newStartCommand(opts *Options, deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start every composed service in dependency order",
		Long:  "start brings up the logging service, then every inexpensive service in one call, then the expensive services at most a few at a time, waiting for each to become healthy. Exits with code 2 when an expensive service failed.",
		RunE:  withSession(opts, deps, start),
	}
}

func start(ctx context.Context, s *session) error {
	if err := s.requireFileList(); err != nil {
		return err
	}
	envCfg, appCfgs, err := s.loadConfig()
	if err != nil {
		return err
	}
	cc, err := s.compose()
	if err != nil {
		return err
	}
	rt, err := s.runtime()
	if err != nil {
		return err
	}

	opts := engine.DefaultOptions()
	opts.FileList = s.layout.FileList()
	opts.StartLogFile = s.layout.LogFile("containerstart.log")
	opts.MaxInProgress = s.settings.MaxInProgress
	opts.RestartThreshold = s.settings.RestartThreshold
	opts.SweepInterval = s.settings.SweepInterval
	opts.LogTailLines = tailLines

	orch := engine.New(engine.Deps{
		Composer:  cc,
		Runtime:   rt,
		Prober:    health.NewProber(rt, s.printer),
		PostStart: hooks.NewExecutor(s.layout, s.store, s.runner, s.printer, s.logger),
		Printer:   s.printer,
		Clock:     s.clock,
		Logger:    s.logger,
	}, opts)

	report, err := orch.Start(ctx, envCfg, appCfgs)
	if err != nil {
		return s.fail(err)
	}
	report.Print(s.printer)
	if err := ghoutput.Write(ghoutput.Path(), startOutputs(report)); err != nil {
		s.logger.Warn("publish step outputs failed", "error", err)
	}
	if report.Degraded() {
		return &ExitError{Code: 2, Err: fmt.Errorf("%d expensive services failed to start", len(report.Failed))}
	}
	return nil
}

// startOutputs summarizes report as CI step outputs.
func startOutputs(report *engine.Report) map[string]string {
	status := "ready"
	if report.Degraded() {
		status = "degraded"
	}
	failed := make([]string, 0, len(report.Failed))
	for _, f := range report.Failed {
		failed = append(failed, fmt.Sprintf("%s (%s)", f.Service, f.Reason))
	}
	return map[string]string{
		"status":  status,
		"healthy": strconv.Itoa(report.Healthy),
		"failed":  strings.Join(failed, "\n"),
	}
}
