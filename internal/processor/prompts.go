package processor

import (
	"math/rand"
	"strconv"
	"sync"
	"time"

	"quill/internal/config"
)

const defaultTransformPrompt = "You are a skilled literary rewriter. Rewrite the chapter below in a modern, " +
	"engaging voice while preserving every plot point, character, and factual detail. " +
	"Respond with the rewritten chapter text only."

const reviewPrompt = "You are a meticulous content reviewer. Assess the rewritten chapter for fidelity to " +
	"the original, coherence, and style. Respond with JSON only: " +
	`{"score": <0..1>, "notes": "<specific findings>"}`

const editPrompt = "You are a careful copy editor. Apply the reviewer notes to the chapter below, fixing " +
	"every issue raised while keeping the voice intact. Respond with the edited chapter text only."

const refinePrompt = "You are revising a chapter according to reader feedback. Apply the feedback faithfully " +
	"while keeping the story intact. Respond with the revised chapter text only."

// promptSelector picks a transform system prompt from weighted variants.
// Selection draws from a seeded source so a fixed seed reproduces the same
// variant sequence across runs.
type promptSelector struct {
	variants    []config.PromptVariant
	totalWeight int

	mu  sync.Mutex
	rng *rand.Rand
}

func newPromptSelector(variants []config.PromptVariant, seed int64) *promptSelector {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	total := 0
	for _, v := range variants {
		total += v.Weight
	}
	return &promptSelector{
		variants:    variants,
		totalWeight: total,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// pick returns a transform prompt and its variant label. With no configured
// variants it falls back to the built-in prompt.
func (p *promptSelector) pick() (string, string) {
	if len(p.variants) == 0 || p.totalWeight <= 0 {
		return defaultTransformPrompt, "default"
	}

	p.mu.Lock()
	draw := p.rng.Intn(p.totalWeight)
	p.mu.Unlock()

	for i, v := range p.variants {
		draw -= v.Weight
		if draw < 0 {
			return v.Text, variantLabel(i)
		}
	}
	last := len(p.variants) - 1
	return p.variants[last].Text, variantLabel(last)
}

func variantLabel(index int) string {
	return "variant-" + strconv.Itoa(index)
}
