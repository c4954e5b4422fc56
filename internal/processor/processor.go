package processor

import (
	"context"
	"fmt"
	"strings"

	"quill/internal/config"
)

// Input carries the source material for a stage operation.
type Input struct {
	Title string
	Body  string
	// Notes holds upstream commentary: review findings for the edit stage,
	// human feedback for the refine stage.
	Notes string
}

// Output is the product of one stage operation.
type Output struct {
	Body     string
	Metadata map[string]string
}

// Review is the structured result of the review stage.
type Review struct {
	Score float64 `json:"score"`
	Notes string  `json:"notes"`
}

// Processor runs the content transformation stages. Implementations must be
// safe for concurrent use; the orchestrator fans out one goroutine per item.
type Processor interface {
	Name() string
	Transform(ctx context.Context, in Input) (*Output, error)
	ReviewContent(ctx context.Context, in Input) (*Review, error)
	Edit(ctx context.Context, in Input) (*Output, error)
	Refine(ctx context.Context, in Input) (*Output, error)
}

// New selects a backend from configuration. The prompt selector is shared so
// both backends report which transform variant they used.
func New(llm config.LLM, pipeline config.Pipeline) (Processor, error) {
	prompts := newPromptSelector(pipeline.TransformPrompts, pipeline.PromptSeed)
	switch strings.ToLower(strings.TrimSpace(llm.Backend)) {
	case "chat":
		return newChatProcessor(llm, prompts), nil
	case "static":
		return newStaticProcessor(prompts), nil
	default:
		return nil, fmt.Errorf("unknown processor backend %q", llm.Backend)
	}
}
