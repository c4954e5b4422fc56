// Package logging provides slog construction and shared attribute helpers.
//
// Two output formats are supported: a compact console format for interactive
// use and JSON for machine consumption. Components tag their loggers with
// WithComponent so console lines read "ts LEVEL component: msg".
package logging
