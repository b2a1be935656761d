package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/git"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/selfupdate"
)

// newCheckUpdateCommand creates the "check-update" subcommand.
func newCheckUpdateCommand(opts *Options, deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "check-update",
		Short: "Check whether a newer devenv release is available",
		RunE:  withSession(opts, deps, checkUpdate),
	}
}

func checkUpdate(ctx context.Context, s *session) error {
	source := s.deps.Releases
	if source == nil {
		source = selfupdate.GitHub{Slug: selfupdate.DefaultSlug}
	}
	checker := selfupdate.NewChecker(s.layout, source, git.NewRepository(s.layout.Root, s.runner), s.prompter, s.printer, s.clock, s.logger)
	return checker.Check(ctx, Version)
}
