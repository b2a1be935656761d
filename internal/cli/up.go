package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// newUpCommand creates the "up" subcommand running the whole pipeline.
func newUpCommand(opts *Options, deps Deps) *cobra.Command {
	var noPull, skipUpdate bool
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Prepare, build, provision and start the environment",
		RunE: withSession(opts, deps, func(ctx context.Context, s *session) error {
			steps := []struct {
				name string
				run  func(context.Context, *session) error
			}{
				{"check-update", checkUpdate},
				{"prepare-config", prepareConfig},
				{"update-apps", updateApps},
				{"prepare-compose", prepareCompose},
				{"build", func(ctx context.Context, s *session) error { return build(ctx, s, !noPull) }},
				{"provision", provision},
				{"start", start},
			}
			for _, step := range steps {
				if skipUpdate && step.name == "check-update" {
					continue
				}
				s.logger.Debug("running step", "step", step.name)
				if err := step.run(ctx, s); err != nil {
					return err
				}
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&noPull, "no-pull", false, "Do not pull newer base images")
	cmd.Flags().BoolVar(&skipUpdate, "skip-update-check", false, "Skip the release check")
	return cmd
}
