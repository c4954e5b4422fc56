package main

import (
	"strings"

	"github.com/spf13/cobra"
)

func newRefineCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refine <content-id> <feedback...>",
		Short: "Produce a refined version from human feedback",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := ctx.ensureOrchestrator(cmd.Context())
			if err != nil {
				return err
			}
			defer ctx.close()

			contentID := args[0]
			feedback := strings.Join(args[1:], " ")

			version, err := orch.Refine(cmd.Context(), contentID, feedback)
			if err != nil {
				return err
			}
			cmd.Printf("Created refined version %s (ordinal %d) from %s\n",
				version.ID, version.StageOrdinal, version.BasedOnVersionID)
			return nil
		},
	}
}
