package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

const hashPrefixLen = 12

// Generator derives stable identifiers for newly stored content.
//
// An identifier mixes a truncated content hash with a timestamp and a
// process-local nonce, so submitting identical content twice yields two
// distinct ids. The store is append-only and never deduplicates.
type Generator struct {
	now   func() time.Time
	nonce atomic.Uint64
}

// New constructs a Generator using the wall clock.
func New() *Generator {
	return &Generator{now: time.Now}
}

// NewWithClock constructs a Generator with an injected clock for tests.
func NewWithClock(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

// Content returns an identifier for a source document.
func (g *Generator) Content(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	digest := hex.EncodeToString(sum[:])[:hashPrefixLen]
	return fmt.Sprintf("content_%d_%d_%s", g.now().Unix(), g.nonce.Add(1), digest)
}

// Version returns an identifier for a stage-tagged derivative of a content item.
func (g *Generator) Version(contentID, stage string) string {
	stage = strings.TrimSpace(stage)
	return fmt.Sprintf("%s_%s_%d_%d", contentID, stage, g.now().Unix(), g.nonce.Add(1))
}

// Process returns an identifier for an orchestration run.
func (g *Generator) Process(suffix string) string {
	return fmt.Sprintf("process_%d_%s", g.now().Unix(), suffix)
}
