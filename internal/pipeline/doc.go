// Package pipeline orchestrates transformation runs. A run harvests source
// items, then drives each one through transform, review, and edit stages
// concurrently, recording per-item outcomes and aggregate metrics in a
// process record. Refinement of stored content by human feedback runs
// outside the staged flow.
package pipeline
