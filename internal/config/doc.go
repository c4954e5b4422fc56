// Package config loads, validates, and normalizes Quill's TOML configuration.
package config
