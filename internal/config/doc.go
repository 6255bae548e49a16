// Package config defines the build settings of wrs-builder and provides
// helpers to load, validate and save them in YAML format.
//
// Validate fills defaults (patterns, history file name, merge retries and
// tool executables) so callers can rely on every optional field being set.
package config
