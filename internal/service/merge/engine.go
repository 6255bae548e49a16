package merge

import (
	"context"
	"errors"
	"fmt"
	"os"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/oshokin/wrs-builder/internal/domain/servicing"
	"github.com/oshokin/wrs-builder/internal/logger"
)

// Copier performs a recursive, additive copy and reports a robocopy exit code.
// A non-nil error means the copy could not be performed at all.
type Copier interface {
	Copy(ctx context.Context, src, dst string) (int, error)
}

// ErrEmptyVersion is returned when an output directory is requested for an unset version.
var ErrEmptyVersion = errors.New("version is empty")

// Engine merges changed file trees into the repair source.
type Engine struct {
	copier Copier
}

// NewEngine creates an Engine using the given copier.
func NewEngine(copier Copier) *Engine {
	return &Engine{
		copier: copier,
	}
}

// Merge copies src into dst and classifies the result. The destination is
// created when missing and is never pruned.
func (e *Engine) Merge(ctx context.Context, src, dst string) Result {
	ctx = logger.WithKV(ctx, "source", src, "destination", dst)

	info, err := os.Stat(src)
	switch {
	case err != nil:
		return e.report(ctx, Result{Outcome: Failure, ExitCode: -1, Reason: fmt.Sprintf("source unavailable: %v", err)})
	case !info.IsDir():
		return e.report(ctx, Result{Outcome: Failure, ExitCode: -1, Reason: "source is not a directory"})
	}

	if err = os.MkdirAll(dst, 0o755); err != nil {
		return e.report(ctx, Result{Outcome: Failure, ExitCode: -1, Reason: fmt.Sprintf("create destination: %v", err)})
	}

	logger.InfoKV(ctx, "Merging component store")

	exitCode, err := e.copier.Copy(ctx, src, dst)
	if err != nil {
		return e.report(ctx, Result{Outcome: Failure, ExitCode: -1, Reason: err.Error()})
	}

	return e.report(ctx, Classify(exitCode))
}

func (e *Engine) report(ctx context.Context, result Result) Result {
	kvs := []any{"outcome", result.Outcome.String(), "exit_code", result.ExitCode, "reason", result.Reason}

	switch result.Outcome {
	case Success:
		logger.InfoKV(ctx, "Merge finished", kvs...)
	case SuccessWithWarning:
		logger.WarnKV(ctx, "Merge finished with warnings", kvs...)
	default:
		logger.ErrorKV(ctx, "Merge failed", kvs...)
	}

	return result
}

// VersionDir returns <root>/<version>, creating it on first use. The version
// comes from package metadata, so the join is confined to root.
func VersionDir(root string, version servicing.Version) (string, error) {
	if version.IsZero() {
		return "", ErrEmptyVersion
	}

	dir, err := securejoin.SecureJoin(root, version.String())
	if err != nil {
		return "", fmt.Errorf("resolve output directory: %w", err)
	}

	if err = os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	return dir, nil
}
