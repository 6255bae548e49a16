// Package version exposes build metadata for wrs-builder.
//
// Version, Commit and BuildTime are injected via -ldflags and default to
// values suitable for local builds.
package version
