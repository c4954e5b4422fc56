package main

import (
	"context"
	"fmt"
	"log/slog"

	"quill/internal/config"
	"quill/internal/harvester"
	"quill/internal/logging"
	"quill/internal/pipeline"
	"quill/internal/processor"
	"quill/internal/ranking"
	"quill/internal/registry"
	"quill/internal/store"
)

// commandContext lazily wires the pieces commands need: configuration, the
// content store, and the orchestrator. Everything is built on first use so
// cheap commands (config init) never open the database.
type commandContext struct {
	configFlag *string

	cfg          *config.Config
	configPath   string
	configExists bool
	logger       *slog.Logger
	store        *store.Store
	registry     *registry.Registry
	ranker       *ranking.Engine
	orchestrator *pipeline.Orchestrator
	procName     string
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	path := ""
	if c.configFlag != nil {
		path = *c.configFlag
	}
	cfg, resolvedPath, exists, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	c.configPath = resolvedPath
	c.configExists = exists
	return cfg, nil
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	if c.logger != nil {
		return c.logger, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, err
	}
	c.logger = logger
	return logger, nil
}

func (c *commandContext) ensureStore() (*store.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open content store: %w", err)
	}
	c.store = st
	return st, nil
}

func (c *commandContext) ensureOrchestrator(ctx context.Context) (*pipeline.Orchestrator, error) {
	if c.orchestrator != nil {
		return c.orchestrator, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	st, err := c.ensureStore()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}

	proc, err := processor.New(cfg.LLM, cfg.Pipeline)
	if err != nil {
		return nil, err
	}
	c.procName = proc.Name()
	c.registry = registry.New(st, registry.OptionsFromConfig(cfg.Pipeline), logger)
	c.ranker = ranking.New(ranking.Params{
		ExplorationRate: cfg.Ranking.ExplorationRate,
		LearningRate:    cfg.Ranking.LearningRate,
		DiscountFactor:  cfg.Ranking.DiscountFactor,
		Seed:            cfg.Ranking.Seed,
	})
	source := harvester.New(cfg.Harvester, logger)
	c.orchestrator = pipeline.New(ctx, cfg.Pipeline, st, source, proc, c.ranker, c.registry, logger)
	return c.orchestrator, nil
}

func (c *commandContext) close() {
	if c.store != nil {
		_ = c.store.Close()
		c.store = nil
	}
}
