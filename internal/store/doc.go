// Package store persists content items, their stage-tagged versions, and
// orchestration run records in SQLite.
//
// Sources and versions are append-only: rows are inserted, never updated or
// deleted. A version's lineage chain (based_on_version_id) always points at
// an earlier insert, so following it terminates and cannot cycle. Lookup
// methods return (nil, nil) when an id does not resolve; callers translate
// that into their own not-found handling.
package store
