// Command quilld runs the content pipeline daemon: it owns the content
// store, serves the HTTP API, and executes transformation runs.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"quill/internal/config"
	"quill/internal/daemon"
	"quill/internal/harvester"
	"quill/internal/logging"
	"quill/internal/pipeline"
	"quill/internal/processor"
	"quill/internal/ranking"
	"quill/internal/registry"
	"quill/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open content store", logging.Error(err))
		return
	}

	proc, err := processor.New(cfg.LLM, cfg.Pipeline)
	if err != nil {
		logger.Error("init processor", logging.Error(err))
		_ = st.Close()
		return
	}

	reg := registry.New(st, registry.OptionsFromConfig(cfg.Pipeline), logger)
	ranker := ranking.New(ranking.Params{
		ExplorationRate: cfg.Ranking.ExplorationRate,
		LearningRate:    cfg.Ranking.LearningRate,
		DiscountFactor:  cfg.Ranking.DiscountFactor,
		Seed:            cfg.Ranking.Seed,
	})
	source := harvester.New(cfg.Harvester, logger)
	orch := pipeline.New(ctx, cfg.Pipeline, st, source, proc, ranker, reg, logger)

	d, err := daemon.New(cfg, st, orch, reg, ranker, proc.Name(), logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		_ = st.Close()
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("quilld shutting down")
}
