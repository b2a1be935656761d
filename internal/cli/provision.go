package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/commodity"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/compose"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/health"
)

// newProvisionCommand creates the "provision" subcommand.
func newProvisionCommand(opts *Options, deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Recreate containers and provision shared commodities",
		RunE:  withSession(opts, deps, provision),
	}
}

func provision(ctx context.Context, s *session) error {
	envCfg, appCfgs, err := s.loadConfig()
	if err != nil {
		return err
	}
	cc, err := s.compose()
	if err != nil {
		return err
	}

	before, err := cc.PSServices(ctx)
	if err != nil {
		s.logger.Warn("list existing containers failed", "error", err)
	}
	logFile := s.layout.LogFile("containercreate.log")
	s.printer.Info("Recreating containers... (logging to %s)", logFile)
	res, err := cc.Up(ctx, compose.UpOptions{
		RemoveOrphans: true,
		ForceRecreate: true,
		NoStart:       true,
		LogFile:       logFile,
	})
	if err != nil {
		return s.fatalFromLog(
			fmt.Sprintf("Something went wrong when creating the containers, check the log file. Here are the last %d lines:", tailLines),
			logFile, res, err)
	}
	after, err := cc.PSServices(ctx)
	if err != nil {
		s.logger.Warn("list created containers failed", "error", err)
	}
	fresh := freshContainers(before, after)
	s.logger.Debug("containers created", "fresh", fresh)

	rt, err := s.runtime()
	if err != nil {
		return err
	}
	prov := commodity.NewProvisioner(commodity.Deps{
		Layout:   s.layout,
		Store:    s.store,
		Composer: cc,
		Prober:   health.NewProber(rt, s.printer),
		Runtime:  rt,
		Printer:  s.printer,
		Clock:    s.clock,
		Logger:   s.logger,
	}, commodity.PostgresInstances()...)
	prov.PollInterval = s.settings.ProbeInterval
	prov.MaxWait = s.settings.CommodityWaitMax
	return prov.ProvisionAll(ctx, envCfg, appCfgs, fresh)
}

// freshContainers lists the services present after creation but not before.
func freshContainers(before, after []string) []string {
	var fresh []string
	for _, svc := range after {
		if !slices.Contains(before, svc) && !slices.Contains(fresh, svc) {
			fresh = append(fresh, svc)
		}
	}
	return fresh
}
