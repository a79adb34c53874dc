package main

import (
	"github.com/spf13/cobra"

	"echotask/internal/config"
	"echotask/internal/rewrite"
	"echotask/internal/ui"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "echotask",
		Short:         "Capture and manage quick task memos",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.openSession(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer s.Close()
			return ui.Run(s.mgr, cloudClient(s.cfg, s), s.cfg)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newAddCommand(ctx))
	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newToggleCommand(ctx))
	rootCmd.AddCommand(newDoneCommand(ctx))
	rootCmd.AddCommand(newRemoveCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))
	rootCmd.AddCommand(newImportCommand(ctx))
	rootCmd.AddCommand(newRewriteCommand(ctx))

	return rootCmd
}

// cloudClient returns a rewrite client when the cloud collaborator is
// enabled, nil otherwise.
func cloudClient(cfg config.Config, s *session) *rewrite.Client {
	if !cfg.Cloud.Enabled {
		return nil
	}
	return rewrite.NewClient(cfg.Cloud, s.logger)
}
