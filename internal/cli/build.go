package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// newBuildCommand creates the "build" subcommand.
func newBuildCommand(opts *Options, deps Deps) *cobra.Command {
	var noPull bool
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the images of every composed service",
		RunE: withSession(opts, deps, func(ctx context.Context, s *session) error {
			return build(ctx, s, !noPull)
		}),
	}
	cmd.Flags().BoolVar(&noPull, "no-pull", false, "Do not pull newer base images")
	return cmd
}

func build(ctx context.Context, s *session, pull bool) error {
	if err := s.requireFileList(); err != nil {
		return err
	}
	cc, err := s.compose()
	if err != nil {
		return err
	}
	logFile := s.layout.LogFile("imagebuild.log")
	s.printer.Info("Building images (might take a while)... (logging to %s)", logFile)
	res, err := cc.Build(ctx, pull, logFile)
	if err != nil {
		return s.fatalFromLog(
			fmt.Sprintf("Something went wrong when building the images, check the log file. Here are the last %d lines:", tailLines),
			logFile, res, err)
	}
	return nil
}
