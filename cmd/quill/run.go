package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"quill/internal/store"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run [start-locator]",
		Short: "Harvest and transform content synchronously",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			locator := cfg.Harvester.StartLocator
			if len(args) > 0 {
				locator = args[0]
			}
			if strings.TrimSpace(locator) == "" {
				return fmt.Errorf("no start locator given and none configured")
			}

			orch, err := ctx.ensureOrchestrator(cmd.Context())
			if err != nil {
				return err
			}
			defer ctx.close()

			record, err := orch.Run(cmd.Context(), locator)
			if err != nil {
				return err
			}
			printRunRecord(cmd, record)
			if record.Status == store.ProcessFailed {
				return fmt.Errorf("run failed: %s", record.Error)
			}
			return nil
		},
	}
}

func printRunRecord(cmd *cobra.Command, record *store.ProcessRecord) {
	cmd.Printf("Process %s: %s\n", record.ProcessID, record.Status)
	if record.Error != "" {
		cmd.Printf("Error: %s\n", record.Error)
	}
	if len(record.ItemResults) == 0 {
		return
	}

	rows := make([][]string, 0, len(record.ItemResults))
	for _, result := range record.ItemResults {
		detail := result.Error
		if detail == "" {
			stages := make([]string, 0, len(result.VersionIDs))
			for stage := range result.VersionIDs {
				stages = append(stages, stage)
			}
			sort.Strings(stages)
			detail = strings.Join(stages, ", ")
		}
		rows = append(rows, []string{
			result.ContentID,
			result.Title,
			string(result.Status),
			strconv.FormatFloat(result.Seconds, 'f', 1, 64),
			detail,
		})
	}
	cmd.Println(renderTable(
		[]string{"CONTENT ID", "TITLE", "STATUS", "SECONDS", "DETAIL"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
	cmd.Printf("Processed %d/%d items, %d characters\n",
		record.Metrics.ItemsProcessed, len(record.ItemResults), record.Metrics.TotalCharacters)
}
