// Package daemon runs the long-lived quilld process: it enforces
// single-instance execution with a lock file, serves the HTTP API, and owns
// the lifecycle of the run registry and orchestrator.
package daemon
