package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/engine"
)

// newStopCommand creates the "stop" subcommand.
func newStopCommand(opts *Options, deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop every running service",
		RunE:  withSession(opts, deps, stop),
	}
}

func stop(ctx context.Context, s *session) error {
	if engine.CheckFileList(s.layout.FileList()) != nil {
		s.logger.Debug("no fragment list, nothing to stop")
		return nil
	}
	cc, err := s.compose()
	if err != nil {
		return err
	}
	s.printer.Info("Stopping apps:")
	_, err = cc.Stop(ctx)
	return err
}
