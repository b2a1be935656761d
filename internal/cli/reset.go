package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/configrepo"
)

// newResetCommand creates the "reset" subcommand.
func newResetCommand(opts *Options, deps Deps) *cobra.Command {
	var keepConfig bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove containers, images, volumes and generated state",
	}
	cmd.RunE = withSession(opts, deps, func(ctx context.Context, s *session) error {
		keep := keepConfig
		if !cmd.Flags().Changed("keep-config") {
			var err error
			keep, err = s.prompter.Confirm("Would you like to KEEP your dev-env configuration files?")
			if err != nil {
				return err
			}
		}
		return reset(ctx, s, keep)
	})
	cmd.Flags().BoolVar(&keepConfig, "keep-config", false, "Keep the dev-env-config checkout without asking")
	return cmd
}

func reset(ctx context.Context, s *session, keepConfig bool) error {
	var errs []error
	// Down needs the fragment list, so it runs before the state files go.
	cc, err := s.compose()
	if err != nil {
		return err
	}
	if _, err := cc.Down(ctx); err != nil {
		if ctx.Err() != nil {
			return err
		}
		s.logger.Warn("compose down failed", "error", err)
	}
	if !keepConfig {
		errs = append(errs, configrepo.Remove(s.layout))
	}
	errs = append(errs, s.store.Reset())
	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.printer.Success("Environment reset")
	return nil
}
