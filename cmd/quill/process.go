package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Inspect orchestration runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newProcessListCommand(ctx))
	cmd.AddCommand(newProcessShowCommand(ctx))
	return cmd
}

func newProcessListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			defer ctx.close()

			records, err := st.ListProcessRecords(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				cmd.Println("No runs recorded.")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, record := range records {
				ended := ""
				if record.EndedAt != nil {
					ended = record.EndedAt.Format("2006-01-02 15:04:05")
				}
				rows = append(rows, []string{
					record.ProcessID,
					string(record.Status),
					strconv.Itoa(record.Metrics.ItemsProcessed),
					strconv.Itoa(len(record.ItemResults)),
					record.StartedAt.Format("2006-01-02 15:04:05"),
					ended,
				})
			}
			cmd.Println(renderTable(
				[]string{"PROCESS ID", "STATUS", "OK", "ITEMS", "STARTED", "ENDED"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")
	return cmd
}

func newProcessShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <process-id>",
		Short: "Show one run in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			defer ctx.close()

			record, err := st.GetProcessRecord(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if record == nil {
				return fmt.Errorf("process %q not found", args[0])
			}
			printRunRecord(cmd, record)
			for stage, seconds := range record.Metrics.StageSeconds {
				cmd.Printf("  %s: %.1fs\n", stage, seconds)
			}
			return nil
		},
	}
}
