package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/commodity"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/fragments"
)

// newPrepareComposeCommand creates the "prepare-compose" subcommand.
func newPrepareComposeCommand(opts *Options, deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "prepare-compose",
		Short: "Resolve commodities and write the compose fragment list",
		RunE:  withSession(opts, deps, prepareCompose),
	}
}

func prepareCompose(ctx context.Context, s *session) error {
	envCfg, appCfgs, err := s.loadConfig()
	if err != nil {
		return err
	}
	res := commodity.Resolve(envCfg, appCfgs)
	table, err := commodity.Merge(s.store, res, s.printer)
	if err != nil {
		return err
	}
	paths, err := fragments.NewAssembler(s.layout, s.printer, s.clock).Assemble(ctx, envCfg, table.Commodities)
	if err != nil {
		return err
	}
	if err := fragments.WriteList(s.layout.FileList(), paths); err != nil {
		return err
	}
	s.logger.Info("compose fragments assembled", "fragments", len(paths), "commodities", len(table.Commodities))
	return nil
}
