// Package testsupport provides helpers for constructing configs and stores
// in tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"quill/internal/config"
)

// NewConfig returns a validated configuration rooted in a temp directory.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.LockFile = filepath.Join(base, "quill.lock")
	cfg.LLM.Backend = "static"
	cfg.Harvester.StartLocator = ""
	cfg.Pipeline.StageTimeoutSeconds = 5
	cfg.Pipeline.PromptSeed = 1
	cfg.Ranking.Seed = 1

	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}
