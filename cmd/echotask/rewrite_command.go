package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"echotask/internal/rewrite"
)

func newRewriteCommand(ctx *commandContext) *cobra.Command {
	var cloud bool

	cmd := &cobra.Command{
		Use:   "rewrite <text>...",
		Short: "Clean up memo text without saving a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.Join(args, " ")
			if !cloud {
				fmt.Fprintln(cmd.OutOrStdout(), rewrite.Local(raw))
				return nil
			}
			return ctx.withSession(cmd.Context(), func(s *session) error {
				fmt.Fprintln(cmd.OutOrStdout(), cloudRewriteOrLocal(cmd, s, raw))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&cloud, "cloud", false, "Use the configured cloud model")
	return cmd
}

// cloudRewriteOrLocal asks the cloud model for a rewrite and falls back to
// the local pass on any failure, mirroring how the interactive session
// treats the cloud as strictly optional.
func cloudRewriteOrLocal(cmd *cobra.Command, s *session, raw string) string {
	client := rewrite.NewClient(s.cfg.Cloud, s.logger)
	text, err := client.Rewrite(cmd.Context(), raw)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "cloud rewrite failed (%v), using local rewrite\n", err)
		return rewrite.Local(raw)
	}
	return text
}
