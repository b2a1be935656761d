package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/apps"
)

// newUpdateAppsCommand creates the "update-apps" subcommand.
func newUpdateAppsCommand(opts *Options, deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "update-apps",
		Short: "Clone missing applications and fast-forward the others",
		RunE:  withSession(opts, deps, updateApps),
	}
}

func updateApps(ctx context.Context, s *session) error {
	envCfg, _, err := s.loadConfig()
	if err != nil {
		return err
	}
	s.printer.Info("Updating apps:")
	outcomes, err := apps.NewSyncer(s.layout, s.runner, s.printer, s.clock, s.logger).Update(ctx, envCfg)
	if err != nil {
		return err
	}
	failed := 0
	for _, o := range outcomes {
		if o.Action == apps.ActionFailed {
			failed++
		}
	}
	s.logger.Info("applications synchronized", "apps", len(outcomes), "failed", failed)
	return nil
}
