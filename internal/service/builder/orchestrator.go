package builder

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/wrs-builder/internal/domain/servicing"
	"github.com/oshokin/wrs-builder/internal/logger"
	"github.com/oshokin/wrs-builder/internal/repository/history"
	"github.com/oshokin/wrs-builder/internal/service/catalog"
	"github.com/oshokin/wrs-builder/internal/service/discovery"
	"github.com/oshokin/wrs-builder/internal/service/merge"
)

// Mounter provides a disposable working copy of an image.
type Mounter interface {
	Mount(ctx context.Context, imagePath string, index int, mountPath string) error
	Unmount(ctx context.Context, mountPath string) error
}

// Installer adds an update package to a mounted image.
type Installer interface {
	Install(ctx context.Context, packagePath, mountPath string) error
}

// Merger copies a component store into the repair source.
type Merger interface {
	Merge(ctx context.Context, src, dst string) merge.Result
}

// Discoverer registers new update packages in a history.
type Discoverer interface {
	Discover(
		ctx context.Context,
		folder string,
		history *servicing.History,
		saver discovery.HistorySaver,
	) (*discovery.Report, error)
}

// RepositoryFactory opens the history document at path.
type RepositoryFactory func(path string) history.Repository

var (
	// errBaselineFailed is returned when the RTM component store could not be merged.
	errBaselineFailed = errors.New("baseline merge failed")
	// errInstallFailed is returned when an update could not be installed.
	errInstallFailed = errors.New("update installation failed")
	// errMergeFailed is returned when an installed update could not be merged.
	errMergeFailed = errors.New("update merge failed")
)

// orchestrator runs the per-image state machine.
type orchestrator struct {
	mounter         Mounter
	installer       Installer
	merger          Merger
	discoverer      Discoverer
	repositories    RepositoryFactory
	wrsPath         string
	historyFilename string
}

// build processes entries strictly one after another.
func (o *orchestrator) build(ctx context.Context, entries []catalog.Entry) *Summary {
	summary := &Summary{
		Results: make([]ImageResult, 0, len(entries)),
	}

	if len(entries) == 0 {
		logger.WarnKV(ctx, "No images found")
	}

	for _, entry := range entries {
		imageCtx := logger.WithKV(ctx, "image", imageLabel(entry))

		if entry.Err != nil {
			result := ImageResult{Folder: entry.Folder, Name: imageLabel(entry)}
			summary.Results = append(summary.Results,
				result.finish(imageCtx, StatusSkipped, fmt.Errorf("resolve image: %w", entry.Err)))

			continue
		}

		summary.Results = append(summary.Results, o.processImage(imageCtx, entry.Folder, entry.Image))
	}

	return summary
}

// processImage walks one image through mount, baseline, updates and unmount.
func (o *orchestrator) processImage(ctx context.Context, folder string, image servicing.Image) ImageResult {
	result := ImageResult{Folder: folder, Name: image.Name}

	repo := o.repositories(image.HistoryPath(o.historyFilename))

	ledger, err := repo.Load(ctx)
	if err != nil {
		return result.finish(ctx, StatusAborted, fmt.Errorf("load history: %w", err))
	}

	s := &session{
		orchestrator: o,
		image:        image,
		repo:         repo,
		history:      ledger,
	}

	logger.InfoKV(ctx, "Mounting image",
		"source", image.SourcePath,
		"index", image.Index,
		"mount_path", image.MountPath,
		"version", image.Version.String(),
	)

	if err = o.mounter.Mount(ctx, image.SourcePath, image.Index, image.MountPath); err != nil {
		return result.finish(ctx, StatusSkipped, fmt.Errorf("mount: %w", err))
	}

	s.mounted = true

	// The working copy is scratch space whatever state the image ends in.
	defer s.unmount(ctx)

	err = s.run(ctx)
	result.Applied = s.applied

	switch {
	case err == nil:
		return result.finish(ctx, StatusCompleted, nil)
	case errors.Is(err, history.ErrPersist):
		return result.finish(ctx, StatusAborted, err)
	default:
		return result.finish(ctx, StatusHalted, err)
	}
}

// session holds the state of one mounted image.
type session struct {
	*orchestrator

	image   servicing.Image
	repo    history.Repository
	history *servicing.History
	mounted bool
	applied []string
}

// run ensures the baseline, registers new packages and applies pending updates.
func (s *session) run(ctx context.Context) error {
	outputDir, err := merge.VersionDir(s.wrsPath, s.image.Version)
	if err != nil {
		return err
	}

	if err = s.ensureBaseline(ctx, outputDir); err != nil {
		return err
	}

	report, err := s.discoverer.Discover(ctx, s.image.Folder(), s.history, s)
	if err != nil {
		return fmt.Errorf("discover updates: %w", err)
	}

	if err = report.Err(); err != nil {
		logger.WarnKV(ctx, "Some update packages were not registered", "error", err)
	}

	return s.applyUpdates(ctx, outputDir)
}

// ensureBaseline merges the unserviced component store once and records it as RTM.
func (s *session) ensureBaseline(ctx context.Context, outputDir string) error {
	baseline, known := s.history.Entry(servicing.BaselineID)
	if known && baseline.Applied {
		return nil
	}

	logger.InfoKV(ctx, "Capturing baseline", "destination", outputDir, "retry", known)

	result := s.merger.Merge(ctx, s.image.WinSxS(), outputDir)
	applied := !result.Failed()

	if known {
		if err := s.history.SetApplied(servicing.BaselineID, applied); err != nil {
			return err
		}
	} else {
		entry := servicing.UpdateEntry{
			ID:      servicing.BaselineID,
			Applied: applied,
			Version: s.image.Version,
		}

		if err := s.history.Append(entry); err != nil {
			return err
		}
	}

	if err := s.Save(ctx, s.history); err != nil {
		return err
	}

	if !applied {
		return fmt.Errorf("%w: %s", errBaselineFailed, result.Reason)
	}

	s.applied = append(s.applied, servicing.BaselineID)

	return nil
}

// applyUpdates installs and merges pending entries in version order and stops at the first failure.
func (s *session) applyUpdates(ctx context.Context, outputDir string) error {
	pending := s.history.OrderedPending()
	if len(pending) == 0 {
		logger.Info(ctx, "No pending updates")

		return nil
	}

	logger.InfoKV(ctx, "Applying pending updates", "count", len(pending))

	for _, entry := range pending {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("interrupted before %s: %w", entry.ID, err)
		}

		entryCtx := logger.WithKV(ctx, "kb", entry.ID, "version", entry.Version.String())

		if err := s.installer.Install(entryCtx, entry.Path, s.image.MountPath); err != nil {
			// The working copy may hold a partial install, drop it before anything else.
			s.unmount(entryCtx)

			if setErr := s.history.SetApplied(entry.ID, false); setErr != nil {
				return setErr
			}

			if saveErr := s.Save(entryCtx, s.history); saveErr != nil {
				return saveErr
			}

			return fmt.Errorf("%w: %s: %w", errInstallFailed, entry.ID, err)
		}

		result := s.merger.Merge(entryCtx, s.image.WinSxS(), outputDir)
		if result.Failed() {
			if err := s.Save(entryCtx, s.history); err != nil {
				return err
			}

			return fmt.Errorf("%w: %s: %s", errMergeFailed, entry.ID, result.Reason)
		}

		if err := s.history.SetApplied(entry.ID, true); err != nil {
			return err
		}

		if err := s.Save(entryCtx, s.history); err != nil {
			return err
		}

		s.applied = append(s.applied, entry.ID)

		logger.InfoKV(entryCtx, "Update applied", "merge", result.Outcome.String())
	}

	return nil
}

// Save persists the history. Every failure is reported as history.ErrPersist
// so that the image is aborted rather than halted.
func (s *session) Save(ctx context.Context, ledger *servicing.History) error {
	err := s.repo.Save(ctx, ledger)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, history.ErrPersist):
		return err
	default:
		return fmt.Errorf("%w: %w", history.ErrPersist, err)
	}
}

// unmount discards the working copy. Later calls do nothing.
func (s *session) unmount(ctx context.Context) {
	if !s.mounted {
		return
	}

	s.mounted = false

	// A canceled run must still release the mount.
	ctx = context.WithoutCancel(ctx)

	if err := s.mounter.Unmount(ctx, s.image.MountPath); err != nil {
		logger.ErrorKV(ctx, "Unable to unmount image, discard it manually", "mount_path", s.image.MountPath, "error", err)

		return
	}

	logger.InfoKV(ctx, "Image unmounted", "mount_path", s.image.MountPath)
}
