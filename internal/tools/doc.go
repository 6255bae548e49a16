// Package tools wraps the external servicing executables used by the builder:
// DISM for mounting images and adding packages, expand for extracting package
// manifests and robocopy for the merge copy.
//
// Each wrapper only builds a command line, runs it through a Runner and
// interprets the exit code. Policy (retry, halt, rollback) lives in the callers.
package tools
