// Package registry tracks orchestration runs. Active runs live in memory for
// cheap status polling; terminal records are persisted to the store and
// evicted from memory after a TTL, with lookups falling back to the store.
package registry
