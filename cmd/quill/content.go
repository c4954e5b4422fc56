package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"quill/internal/store"
)

func newContentCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "content",
		Short: "Inspect stored content and versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newContentListCommand(ctx))
	cmd.AddCommand(newContentShowCommand(ctx))
	return cmd
}

func newContentListCommand(ctx *commandContext) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored content items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			defer ctx.close()

			items, err := st.ListSources(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				cmd.Println("No content stored.")
				return nil
			}

			rows := make([][]string, 0, len(items))
			for _, item := range items {
				versions, _ := st.CountVersions(cmd.Context(), item.ID)
				rows = append(rows, []string{
					item.ID,
					item.Title,
					strconv.Itoa(item.SequenceNumber),
					strconv.Itoa(versions),
					item.CreatedAt.Format("2006-01-02 15:04"),
				})
			}
			cmd.Println(renderTable(
				[]string{"ID", "TITLE", "SEQ", "VERSIONS", "CREATED"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum items to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Items to skip")
	return cmd
}

func newContentShowCommand(ctx *commandContext) *cobra.Command {
	var stageFlag string
	var history bool
	cmd := &cobra.Command{
		Use:   "show <content-id>",
		Short: "Show a content item, optionally a stage version or full history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			defer ctx.close()

			contentID := args[0]
			item, err := st.GetContent(cmd.Context(), contentID)
			if err != nil {
				return err
			}
			if item == nil {
				return fmt.Errorf("content %q not found", contentID)
			}

			if history {
				return printVersionHistory(cmd, ctx, contentID)
			}

			cmd.Printf("ID:      %s\n", item.ID)
			cmd.Printf("Title:   %s\n", item.Title)
			if item.SequenceNumber > 0 {
				cmd.Printf("Seq:     %d\n", item.SequenceNumber)
			}
			if item.OriginLocator != "" {
				cmd.Printf("Origin:  %s\n", item.OriginLocator)
			}
			cmd.Printf("Created: %s\n", item.CreatedAt.Format("2006-01-02 15:04:05"))

			body := item.Body
			if stageFlag != "" {
				stage, ok := store.ParseStage(stageFlag)
				if !ok {
					return fmt.Errorf("unknown stage %q", stageFlag)
				}
				version, err := st.GetLatestVersion(cmd.Context(), contentID, stage)
				if err != nil {
					return err
				}
				if version == nil {
					return fmt.Errorf("no %s version for %q", stage, contentID)
				}
				cmd.Printf("Stage:   %s (version %s, ordinal %d)\n", stage, version.ID, version.StageOrdinal)
				body = version.Body
			}
			cmd.Println()
			cmd.Println(body)
			return nil
		},
	}
	cmd.Flags().StringVar(&stageFlag, "stage", "", "Show the latest version of this stage instead of the source")
	cmd.Flags().BoolVar(&history, "history", false, "List the full version history instead of a body")
	return cmd
}

func printVersionHistory(cmd *cobra.Command, ctx *commandContext, contentID string) error {
	st, err := ctx.ensureStore()
	if err != nil {
		return err
	}
	versions, err := st.ListVersions(cmd.Context(), contentID, "", 0, 0)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		cmd.Println("No versions recorded.")
		return nil
	}

	rows := make([][]string, 0, len(versions))
	for _, version := range versions {
		rows = append(rows, []string{
			version.ID,
			string(version.Stage),
			strconv.Itoa(version.StageOrdinal),
			version.ProducedBy,
			version.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	cmd.Println(renderTable(
		[]string{"VERSION ID", "STAGE", "ORD", "PRODUCED BY", "CREATED"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	))
	return nil
}
