package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.Paths.LockFile == "" {
		t.Fatal("lock file not derived from data dir")
	}
	if cfg.DatabasePath() != filepath.Join(cfg.Paths.DataDir, "quill.db") {
		t.Fatalf("database path = %q", cfg.DatabasePath())
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if exists {
		t.Fatal("reported existing file")
	}
	if resolved != path {
		t.Fatalf("resolved = %q", resolved)
	}
	if cfg.LLM.Backend != "chat" || cfg.Harvester.MaxItems != 10 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[llm]
backend = "static"

[harvester]
max_items = 3
requests_per_second = 2.5

[pipeline]
transform_candidates = 2

[[pipeline.transform_prompts]]
text = "Rewrite plainly."
weight = 3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !exists {
		t.Fatal("file not detected")
	}
	if cfg.LLM.Backend != "static" {
		t.Fatalf("backend = %q", cfg.LLM.Backend)
	}
	if cfg.Harvester.MaxItems != 3 || cfg.Harvester.RequestsPerSecond != 2.5 {
		t.Fatalf("harvester = %+v", cfg.Harvester)
	}
	if cfg.Pipeline.TransformCandidates != 2 {
		t.Fatalf("candidates = %d", cfg.Pipeline.TransformCandidates)
	}
	if len(cfg.Pipeline.TransformPrompts) != 1 || cfg.Pipeline.TransformPrompts[0].Weight != 3 {
		t.Fatalf("prompts = %+v", cfg.Pipeline.TransformPrompts)
	}
	// Untouched sections keep defaults.
	if cfg.Ranking.DiscountFactor != 0.9 {
		t.Fatalf("discount = %v", cfg.Ranking.DiscountFactor)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "bad backend",
			body:    "[llm]\nbackend = \"oracle\"\n",
			wantErr: "llm.backend",
		},
		{
			name:    "chat without model",
			body:    "[llm]\nbackend = \"chat\"\nmodel = \"\"\n",
			wantErr: "llm.model",
		},
		{
			name:    "zero max items",
			body:    "[harvester]\nmax_items = 0\n",
			wantErr: "harvester.max_items",
		},
		{
			name:    "exploration out of range",
			body:    "[ranking]\nexploration_rate = 1.5\n",
			wantErr: "ranking.exploration_rate",
		},
		{
			name:    "weightless prompt",
			body:    "[[pipeline.transform_prompts]]\ntext = \"x\"\nweight = 0\n",
			wantErr: "pipeline.transform_prompts[0].weight",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tc.body), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, _, _, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error = %v, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	got, err := expandPath("~/quill/config.toml")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if got != filepath.Join(home, "quill", "config.toml") {
		t.Fatalf("got %q", got)
	}

	got, err = expandPath("~")
	if err != nil {
		t.Fatalf("expand bare tilde: %v", err)
	}
	if got != home {
		t.Fatalf("bare tilde = %q", got)
	}

	if got, err := expandPath(""); err != nil || got != "" {
		t.Fatalf("empty path = %q, %v", got, err)
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("create sample: %v", err)
	}
	if _, _, exists, err := Load(path); err != nil || !exists {
		t.Fatalf("load sample: exists=%v err=%v", exists, err)
	}
}
