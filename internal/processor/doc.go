// Package processor produces new content versions from existing ones. Each
// backend implements the same stage operations (transform, review, edit,
// refine); the chat backend talks to an OpenAI-compatible completion API and
// the static backend runs fully offline with deterministic rewrites.
package processor
