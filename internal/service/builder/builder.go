package builder

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/wrs-builder/internal/config"
	"github.com/oshokin/wrs-builder/internal/logger"
	"github.com/oshokin/wrs-builder/internal/repository/history"
	"github.com/oshokin/wrs-builder/internal/service/catalog"
	"github.com/oshokin/wrs-builder/internal/service/discovery"
	"github.com/oshokin/wrs-builder/internal/service/installer"
	"github.com/oshokin/wrs-builder/internal/service/merge"
	"github.com/oshokin/wrs-builder/internal/tools"
)

// Options controls a build run.
type Options struct {
	// Config holds validated settings; flags and environment overrides are already applied.
	Config *config.Config
	// Folders limits the run to these image folders. Empty means all of them.
	Folders []string
}

// errConfigRequired is returned when Run is called without settings.
var errConfigRequired = errors.New("configuration must be provided")

// Run processes every image and returns the per-image results.
// The returned error is set only when the run could not start.
func Run(ctx context.Context, opts *Options) (*Summary, error) {
	ctx = logger.WithName(ctx, "wrs-builder")

	if opts == nil || opts.Config == nil {
		return nil, errConfigRequired
	}

	cfg := opts.Config

	// Two runs over the same folder would corrupt the history, warn about it early.
	warnAboutOtherInstances(ctx)

	runner := tools.ExecRunner{}
	dism := tools.NewDISM(cfg.Tools.DISM, runner)

	entries, err := catalog.New(cfg, dism).Locate(ctx, opts.Folders...)
	if err != nil {
		return nil, fmt.Errorf("locate images: %w", err)
	}

	logger.InfoKV(ctx, "Starting build",
		"images", len(entries),
		"image_path", cfg.ImagePath,
		"wrs_path", cfg.WRSPath,
		"native_copy", cfg.Merge.Native,
	)

	o := &orchestrator{
		mounter:         dism,
		installer:       installer.New(dism),
		merger:          merge.NewEngine(newCopier(cfg, runner)),
		discoverer:      discovery.New(tools.NewExpand(cfg.Tools.Expand, runner), cfg.PackagePatterns),
		repositories:    fileRepository,
		wrsPath:         cfg.WRSPath,
		historyFilename: cfg.HistoryFilename,
	}

	summary := o.build(ctx, entries)

	logger.InfoKV(ctx, "Build finished",
		"completed", summary.Count(StatusCompleted),
		"halted", summary.Count(StatusHalted),
		"skipped", summary.Count(StatusSkipped),
		"aborted", summary.Count(StatusAborted),
	)

	return summary, nil
}

// Discover registers new update packages of every image without mounting anything.
func Discover(ctx context.Context, opts *Options) (*Summary, error) {
	ctx = logger.WithName(ctx, "wrs-discover")

	if opts == nil || opts.Config == nil {
		return nil, errConfigRequired
	}

	cfg := opts.Config
	runner := tools.ExecRunner{}

	entries, err := catalog.New(cfg, tools.NewDISM(cfg.Tools.DISM, runner)).Locate(ctx, opts.Folders...)
	if err != nil {
		return nil, fmt.Errorf("locate images: %w", err)
	}

	discoverer := discovery.New(tools.NewExpand(cfg.Tools.Expand, runner), cfg.PackagePatterns)
	summary := new(Summary)

	for _, entry := range entries {
		summary.Results = append(summary.Results,
			discoverImage(ctx, discoverer, entry, cfg.HistoryFilename))
	}

	return summary, nil
}

func discoverImage(
	ctx context.Context,
	discoverer *discovery.Discoverer,
	entry catalog.Entry,
	historyFilename string,
) ImageResult {
	ctx = logger.WithKV(ctx, "image", imageLabel(entry))
	result := ImageResult{Folder: entry.Folder, Name: imageLabel(entry)}

	if entry.Err != nil {
		return result.finish(ctx, StatusSkipped, entry.Err)
	}

	repo := fileRepository(entry.Image.HistoryPath(historyFilename))

	ledger, err := repo.Load(ctx)
	if err != nil {
		return result.finish(ctx, StatusAborted, fmt.Errorf("load history: %w", err))
	}

	report, err := discoverer.Discover(ctx, entry.Image.Folder(), ledger, repo)
	if err != nil {
		return result.finish(ctx, StatusAborted, err)
	}

	if err = report.Err(); err != nil {
		logger.WarnKV(ctx, "Some update packages were not registered", "error", err)
	}

	logger.InfoKV(ctx, "Discovery finished",
		"added", len(report.Added),
		"known", len(report.Skipped),
		"failed", len(report.Failed),
		"pending", len(ledger.OrderedPending()),
	)

	return result.finish(ctx, StatusCompleted, nil)
}

// newCopier selects robocopy or the built-in copier.
func newCopier(cfg *config.Config, runner tools.Runner) merge.Copier {
	if cfg.Merge.Native {
		return merge.NewNativeCopier(cfg.Merge.RetryCount(), cfg.Merge.RetryWait)
	}

	return tools.NewRobocopy(cfg.Tools.Robocopy, runner, cfg.Merge.RetryCount(), cfg.Merge.RetryWait)
}

func fileRepository(path string) history.Repository {
	return history.NewFileRepository(path)
}

// finish records the terminal status and logs it.
func (r ImageResult) finish(ctx context.Context, status Status, err error) ImageResult {
	r.Status = status
	if err != nil {
		r.Reason = err.Error()
	}

	switch status {
	case StatusCompleted:
		logger.InfoKV(ctx, "Image completed", "applied", r.Applied)
	case StatusHalted:
		logger.ErrorKV(ctx, "Image halted, the next run resumes from the last applied update", "reason", r.Reason)
	default:
		logger.ErrorKV(ctx, "Image not processed", "status", status.String(), "reason", r.Reason)
	}

	return r
}

// imageLabel is used in logs before the image name is known.
func imageLabel(entry catalog.Entry) string {
	if entry.Image.Name != "" {
		return entry.Image.Name
	}

	return entry.Folder
}
