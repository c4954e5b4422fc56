package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateHarvester(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateRanking(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateLLM() error {
	switch c.LLM.Backend {
	case "chat", "static":
	case "":
		return errors.New("llm.backend must be set")
	default:
		return fmt.Errorf("llm.backend: unsupported value %q (expected chat or static)", c.LLM.Backend)
	}
	if c.LLM.Backend == "chat" && c.LLM.Model == "" {
		return errors.New("llm.model must be set when llm.backend is chat")
	}
	if c.LLM.TimeoutSeconds < 0 {
		return errors.New("llm.timeout_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateHarvester() error {
	if c.Harvester.MaxItems <= 0 {
		return errors.New("harvester.max_items must be positive")
	}
	if c.Harvester.RequestsPerSecond <= 0 {
		return errors.New("harvester.requests_per_second must be positive")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.StageTimeoutSeconds <= 0 {
		return errors.New("pipeline.stage_timeout_seconds must be positive")
	}
	if c.Pipeline.TransformCandidates <= 0 {
		return errors.New("pipeline.transform_candidates must be positive")
	}
	for i, variant := range c.Pipeline.TransformPrompts {
		if strings.TrimSpace(variant.Text) == "" {
			return fmt.Errorf("pipeline.transform_prompts[%d].text must not be empty", i)
		}
		if variant.Weight <= 0 {
			return fmt.Errorf("pipeline.transform_prompts[%d].weight must be positive", i)
		}
	}
	return nil
}

func (c *Config) validateRanking() error {
	if c.Ranking.ExplorationRate < 0 || c.Ranking.ExplorationRate > 1 {
		return errors.New("ranking.exploration_rate must be between 0 and 1")
	}
	if c.Ranking.LearningRate <= 0 || c.Ranking.LearningRate > 1 {
		return errors.New("ranking.learning_rate must be between 0 and 1")
	}
	if c.Ranking.DiscountFactor < 0 || c.Ranking.DiscountFactor > 1 {
		return errors.New("ranking.discount_factor must be between 0 and 1")
	}
	return nil
}
