package discovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/samber/lo"

	"github.com/oshokin/wrs-builder/internal/domain/servicing"
	"github.com/oshokin/wrs-builder/internal/logger"
)

// ManifestExtractor unpacks the XML manifest of an update package into outputDir
// and returns the path of the extracted file.
type ManifestExtractor interface {
	ExtractManifest(ctx context.Context, packagePath, outputDir string) (string, error)
}

// HistorySaver persists a servicing history.
type HistorySaver interface {
	Save(ctx context.Context, history *servicing.History) error
}

// errFolderRequired is returned when no image folder is given.
var errFolderRequired = errors.New("image folder must be provided")

// Report describes the outcome of a discovery pass.
type Report struct {
	// Added are the entries registered during this pass.
	Added []servicing.UpdateEntry
	// Skipped lists packages whose identifier is already known.
	Skipped []string
	// Failed maps package paths to the reason they were not registered.
	Failed map[string]error
}

// Err joins per-package failures in path order, or returns nil.
func (r *Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}

	paths := lo.Keys(r.Failed)
	sort.Strings(paths)

	return errors.Join(lo.Map(paths, func(path string, _ int) error {
		return fmt.Errorf("%s: %w", filepath.Base(path), r.Failed[path])
	})...)
}

// Discoverer registers new update packages as pending history entries.
type Discoverer struct {
	extractor ManifestExtractor
	patterns  []string
}

// New creates a Discoverer matching package files against patterns.
func New(extractor ManifestExtractor, patterns []string) *Discoverer {
	return &Discoverer{
		extractor: extractor,
		patterns:  slices.Clone(patterns),
	}
}

// Discover scans folder for update packages and appends every unknown one to
// history as a pending entry, persisting after each addition. Per-package
// problems are collected in the report; a persistence failure stops the pass
// and is returned.
func (d *Discoverer) Discover(
	ctx context.Context,
	folder string,
	history *servicing.History,
	saver HistorySaver,
) (*Report, error) {
	if folder == "" {
		return nil, errFolderRequired
	}

	ctx = logger.WithName(ctx, "discovery")

	packages, err := d.candidates(folder)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Failed: make(map[string]error),
	}

	for _, packagePath := range packages {
		if err = ctx.Err(); err != nil {
			return report, err
		}

		id, err := ParseIdentifier(packagePath)
		if err != nil {
			logger.WarnKV(ctx, "Skipping update package", "path", packagePath, "error", err)

			report.Failed[packagePath] = err

			continue
		}

		if history.HasEntry(id) {
			logger.DebugKV(ctx, "Update already registered", "kb", id, "path", packagePath)

			report.Skipped = append(report.Skipped, packagePath)

			continue
		}

		version, err := d.manifestVersion(ctx, folder, id, packagePath)
		if err != nil {
			logger.WarnKV(ctx, "Unable to read update manifest", "kb", id, "path", packagePath, "error", err)

			report.Failed[packagePath] = err

			continue
		}

		entry := servicing.UpdateEntry{
			ID:      id,
			Applied: false,
			Version: version,
			Path:    packagePath,
		}

		if err = history.Append(entry); err != nil {
			report.Failed[packagePath] = err

			continue
		}

		if err = saver.Save(ctx, history); err != nil {
			return report, fmt.Errorf("register %s: %w", id, err)
		}

		if highest, ok := history.HighestApplied(); ok && version.Less(highest.Version) {
			logger.WarnKV(ctx, "Update is older than the last applied one and will be applied out of order",
				"kb", id,
				"version", version.String(),
				"last_applied", highest.ID,
				"last_applied_version", highest.Version.String(),
			)
		} else {
			logger.InfoKV(ctx, "Update registered", "kb", id, "version", version.String())
		}

		report.Added = append(report.Added, entry)
	}

	return report, nil
}

// candidates returns the package files of folder in name order.
func (d *Discoverer) candidates(folder string) ([]string, error) {
	var matches []string

	for _, pattern := range d.patterns {
		found, err := filepath.Glob(filepath.Join(folder, pattern))
		if err != nil {
			return nil, fmt.Errorf("match %q: %w", pattern, err)
		}

		matches = append(matches, found...)
	}

	matches = lo.Filter(lo.Uniq(matches), func(path string, _ int) bool {
		info, err := os.Stat(path)

		return err == nil && info.Mode().IsRegular()
	})

	sort.Strings(matches)

	return matches, nil
}

// manifestVersion extracts the manifest of packagePath into a scratch
// directory named after id and reads the declared version.
func (d *Discoverer) manifestVersion(ctx context.Context, folder, id, packagePath string) (servicing.Version, error) {
	scratch, err := os.MkdirTemp(folder, id+"-manifest-")
	if err != nil {
		return servicing.Version{}, fmt.Errorf("create manifest directory: %w", err)
	}

	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			logger.WarnKV(ctx, "Unable to remove manifest directory", "path", scratch, "error", err)
		}
	}()

	manifest, err := d.extractor.ExtractManifest(ctx, packagePath, scratch)
	if err != nil {
		return servicing.Version{}, err
	}

	return ReadManifestVersion(manifest)
}
