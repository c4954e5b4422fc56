package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"quill/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newConfigInitCommand(ctx))
	cmd.AddCommand(newConfigShowCommand(ctx))
	return cmd
}

func newConfigInitCommand(ctx *commandContext) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if ctx.configFlag != nil {
				path = *ctx.configFlag
			}
			if path == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				path = defaultPath
			} else {
				expanded, err := config.ExpandPath(path)
				if err != nil {
					return err
				}
				path = expanded
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
			}
			if err := config.CreateSample(path); err != nil {
				return err
			}
			cmd.Printf("Wrote sample configuration to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			source := ctx.configPath
			if !ctx.configExists {
				source = "(defaults; no file found)"
			}
			cmd.Printf("Config:     %s\n", source)
			cmd.Printf("Data dir:   %s\n", cfg.Paths.DataDir)
			cmd.Printf("Log dir:    %s\n", cfg.Paths.LogDir)
			cmd.Printf("API bind:   %s\n", cfg.Paths.APIBind)
			cmd.Printf("Database:   %s\n", cfg.DatabasePath())
			cmd.Printf("Backend:    %s\n", cfg.LLM.Backend)
			if cfg.LLM.Backend == "chat" {
				cmd.Printf("Model:      %s\n", cfg.LLM.Model)
				cmd.Printf("Base URL:   %s\n", cfg.LLM.BaseURL)
			}
			cmd.Printf("Harvester:  max %d items, %.1f req/s\n",
				cfg.Harvester.MaxItems, cfg.Harvester.RequestsPerSecond)
			cmd.Printf("Pipeline:   %ds stage timeout, %d transform candidates\n",
				cfg.Pipeline.StageTimeoutSeconds, cfg.Pipeline.TransformCandidates)
			cmd.Printf("Ranking:    eps=%.2f alpha=%.2f gamma=%.2f\n",
				cfg.Ranking.ExplorationRate, cfg.Ranking.LearningRate, cfg.Ranking.DiscountFactor)
			return nil
		},
	}
}
