package main

import (
	"github.com/spf13/cobra"

	"quill/internal/daemon"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			st, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			orch, err := ctx.ensureOrchestrator(cmd.Context())
			if err != nil {
				return err
			}

			d, err := daemon.New(cfg, st, orch, ctx.registry, ctx.ranker, ctx.procName, logger)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.Start(cmd.Context()); err != nil {
				return err
			}
			<-cmd.Context().Done()
			return nil
		},
	}
}
