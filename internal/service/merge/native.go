package merge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/samber/lo"
	"github.com/siderolabs/go-retry/retry"

	"github.com/oshokin/wrs-builder/internal/logger"
)

const (
	// partialSuffix marks a file that is still being written.
	partialSuffix = ".wrs-partial"
	// minRetryWait keeps the retry ticker interval positive.
	minRetryWait = time.Millisecond
	// copyTimeout bounds all attempts of one file. The attempt counter
	// enforces the retry limit, so this only has to outlast slow copies.
	copyTimeout = 24 * time.Hour
	// ownerWrite is the permission bit needed to replace a read-only file.
	ownerWrite = 0o200
)

// Stats counts what a single native copy did.
type Stats struct {
	Copied     int
	Skipped    int
	Extra      int
	Mismatched int
	Failed     int
	Bytes      int64
}

// ExitCode renders the counters as a robocopy-compatible exit code.
func (s *Stats) ExitCode() int {
	code := 0

	if s.Copied > 0 {
		code |= exitCopied
	}

	if s.Extra > 0 {
		code |= exitExtra
	}

	if s.Mismatched > 0 {
		code |= exitMismatched
	}

	if s.Failed > 0 {
		code |= exitFailed
	}

	return code
}

// NativeCopier is a Copier implemented in Go. It copies files that are new
// or differ in size or modification time, preserves modes and timestamps,
// never deletes destination files and retries each failing file.
type NativeCopier struct {
	retries int
	wait    time.Duration
	copyOne func(src, dst string, info fs.FileInfo) error
}

// NewNativeCopier creates a copier retrying each file retries times, waiting wait between attempts.
func NewNativeCopier(retries int, wait time.Duration) *NativeCopier {
	return &NativeCopier{
		retries: max(retries, 0),
		wait:    max(wait, minRetryWait),
		copyOne: copyFile,
	}
}

// Copy implements Copier.
func (c *NativeCopier) Copy(ctx context.Context, src, dst string) (int, error) {
	stats, err := c.CopyTree(ctx, src, dst)
	if err != nil {
		return -1, err
	}

	return stats.ExitCode(), nil
}

// CopyTree copies src into dst and returns the counters.
func (c *NativeCopier) CopyTree(ctx context.Context, src, dst string) (*Stats, error) {
	var (
		stats = new(Stats)
		dirs  []dirTimes
	)

	walkErr := filepath.WalkDir(src, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			logger.WarnKV(ctx, "Unable to read source entry", "path", path, "error", err)

			stats.Failed++

			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		target := filepath.Join(dst, rel)

		switch {
		case entry.IsDir():
			times, skip := c.visitDir(ctx, path, target, stats)
			if skip {
				return filepath.SkipDir
			}

			dirs = append(dirs, times)
		case entry.Type().IsRegular():
			c.visitFile(ctx, path, target, entry, stats)
		default:
			// Links and junctions are not followed.
			stats.Skipped++
		}

		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk %s: %w", src, walkErr)
	}

	// Children first so restoring a parent is not undone by a later write.
	for _, d := range slices.Backward(dirs) {
		_ = os.Chtimes(d.path, d.modTime, d.modTime)
	}

	logger.InfoKV(ctx, "Native copy finished",
		"copied", stats.Copied,
		"skipped", stats.Skipped,
		"extra", stats.Extra,
		"mismatched", stats.Mismatched,
		"failed", stats.Failed,
		"size", datasize.ByteSize(stats.Bytes).HumanReadable(),
	)

	return stats, nil
}

// dirTimes remembers a directory whose timestamp is restored after copying.
type dirTimes struct {
	path    string
	modTime time.Time
}

// visitDir creates target and counts destination entries missing from the source.
func (c *NativeCopier) visitDir(ctx context.Context, path, target string, stats *Stats) (dirTimes, bool) {
	info, err := os.Stat(path)
	if err != nil {
		stats.Failed++

		return dirTimes{}, true
	}

	targetInfo, err := os.Stat(target)

	switch {
	case err == nil && !targetInfo.IsDir():
		logger.WarnKV(ctx, "Destination is a file where the source has a directory", "path", target)

		stats.Mismatched++

		return dirTimes{}, true
	case err == nil:
		stats.Extra += countExtras(path, target)
	default:
		if err = os.MkdirAll(target, info.Mode().Perm()|0o700); err != nil {
			logger.WarnKV(ctx, "Unable to create directory", "path", target, "error", err)

			stats.Failed++

			return dirTimes{}, true
		}
	}

	return dirTimes{path: target, modTime: info.ModTime()}, false
}

// visitFile copies a single file when it is new or changed.
func (c *NativeCopier) visitFile(ctx context.Context, path, target string, entry fs.DirEntry, stats *Stats) {
	info, err := entry.Info()
	if err != nil {
		stats.Failed++

		return
	}

	targetInfo, err := os.Stat(target)
	if err == nil {
		if targetInfo.IsDir() {
			logger.WarnKV(ctx, "Destination is a directory where the source has a file", "path", target)

			stats.Mismatched++

			return
		}

		if targetInfo.Size() == info.Size() && targetInfo.ModTime().Equal(info.ModTime()) {
			stats.Skipped++

			return
		}
	}

	if err = c.copyWithRetry(ctx, path, target, info); err != nil {
		logger.WarnKV(ctx, "File copy failed", "path", path, "error", err)

		stats.Failed++

		return
	}

	stats.Copied++
	stats.Bytes += info.Size()
}

// copyWithRetry attempts the copy up to retries+1 times.
func (c *NativeCopier) copyWithRetry(ctx context.Context, path, target string, info fs.FileInfo) error {
	var (
		attempts int
		lastErr  error
	)

	err := retry.Constant(copyTimeout, retry.WithUnits(c.wait)).RetryWithContext(ctx, func(context.Context) error {
		attempts++

		lastErr = c.copyOne(path, target, info)

		switch {
		case lastErr == nil:
			return nil
		case errors.Is(lastErr, fs.ErrNotExist), attempts > c.retries:
			return lastErr
		default:
			logger.DebugKV(ctx, "Retrying file copy", "path", path, "attempt", attempts, "error", lastErr)

			return retry.ExpectedError(lastErr)
		}
	})
	if err == nil {
		return nil
	}

	if lastErr != nil {
		return lastErr
	}

	return err
}

// copyFile writes src to a partial file next to dst and renames it into place,
// then restores mode and timestamps.
func copyFile(src, dst string, info fs.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}

	defer func() {
		_ = in.Close()
	}()

	partial := dst + partialSuffix

	out, err := os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm()|ownerWrite)
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(partial)

		return err
	}

	if err = out.Close(); err != nil {
		_ = os.Remove(partial)

		return err
	}

	if err = os.Chtimes(partial, info.ModTime(), info.ModTime()); err != nil {
		_ = os.Remove(partial)

		return err
	}

	// Windows refuses to replace a read-only file.
	if existing, statErr := os.Stat(dst); statErr == nil && existing.Mode().Perm()&ownerWrite == 0 {
		if err = os.Chmod(dst, existing.Mode().Perm()|ownerWrite); err != nil {
			_ = os.Remove(partial)

			return err
		}
	}

	if err = os.Rename(partial, dst); err != nil {
		_ = os.Remove(partial)

		return err
	}

	return os.Chmod(dst, info.Mode().Perm())
}

// countExtras returns how many entries of target have no counterpart in source.
func countExtras(source, target string) int {
	sourceEntries, err := os.ReadDir(source)
	if err != nil {
		return 0
	}

	targetEntries, err := os.ReadDir(target)
	if err != nil {
		return 0
	}

	names := lo.SliceToMap(sourceEntries, func(entry fs.DirEntry) (string, struct{}) {
		return entry.Name(), struct{}{}
	})

	return lo.CountBy(targetEntries, func(entry fs.DirEntry) bool {
		_, ok := names[entry.Name()]

		return !ok
	})
}
