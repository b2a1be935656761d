package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/configrepo"
)

// newPrepareConfigCommand creates the "prepare-config" subcommand.
func newPrepareConfigCommand(opts *Options, deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "prepare-config",
		Short: "Clone or update the dev-env-config repository",
		RunE:  withSession(opts, deps, prepareConfig),
	}
}

func prepareConfig(ctx context.Context, s *session) error {
	err := configrepo.NewPreparer(s.layout, s.runner, s.printer, s.prompter).Prepare(ctx)
	if errors.Is(err, configrepo.ErrLocalInitialized) {
		return &ExitError{Code: 1, Err: err}
	}
	return err
}
