package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/samber/lo"

	"github.com/oshokin/wrs-builder/internal/config"
	"github.com/oshokin/wrs-builder/internal/domain/servicing"
	"github.com/oshokin/wrs-builder/internal/logger"
	"github.com/oshokin/wrs-builder/internal/tools"
)

// InfoReader reports metadata of an image inside an archive.
type InfoReader interface {
	ImageInfo(ctx context.Context, imagePath string, index int) (*tools.ImageInfo, error)
}

var (
	// ErrNoImage is returned when a requested folder holds no image file.
	ErrNoImage = errors.New("no image file in folder")
	// ErrUnknownFolder is returned when a requested folder does not exist.
	ErrUnknownFolder = errors.New("unknown image folder")
)

// Entry is one image folder. Err is set when the folder holds an image that
// could not be resolved; such entries must not be processed.
type Entry struct {
	Folder string
	Image  servicing.Image
	Err    error
}

// Catalog resolves images below the configured image root.
type Catalog struct {
	cfg  *config.Config
	info InfoReader
}

// New creates a Catalog. info is only queried for images whose version is not configured.
func New(cfg *config.Config, info InfoReader) *Catalog {
	return &Catalog{
		cfg:  cfg,
		info: info,
	}
}

// Locate returns the image folders in name order. When folders are given only
// those are resolved and each of them must exist.
func (c *Catalog) Locate(ctx context.Context, folders ...string) ([]Entry, error) {
	ctx = logger.WithName(ctx, "catalog")

	names, err := c.folders(folders)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(names))

	for _, folder := range names {
		override, _ := c.cfg.ImageOverride(folder)
		if override.Skip {
			logger.InfoKV(ctx, "Image folder skipped by configuration", "folder", folder)

			continue
		}

		imagePath, err := c.imageFile(folder)

		switch {
		case errors.Is(err, ErrNoImage) && len(folders) == 0:
			logger.DebugKV(ctx, "Folder holds no image, ignoring", "folder", folder)

			continue
		case err != nil:
			entries = append(entries, Entry{Folder: folder, Err: err})

			continue
		}

		image, err := c.resolve(ctx, folder, imagePath, override)
		entries = append(entries, Entry{Folder: folder, Image: image, Err: err})
	}

	return entries, nil
}

// folders lists image folders or checks the requested ones.
func (c *Catalog) folders(requested []string) ([]string, error) {
	if len(requested) > 0 {
		for _, folder := range requested {
			path, err := securejoin.SecureJoin(c.cfg.ImagePath, folder)
			if err != nil {
				return nil, fmt.Errorf("resolve folder %q: %w", folder, err)
			}

			if info, err := os.Stat(path); err != nil || !info.IsDir() {
				return nil, fmt.Errorf("%w: %s", ErrUnknownFolder, folder)
			}
		}

		names := slices.Clone(requested)
		sort.Strings(names)

		return slices.Compact(names), nil
	}

	dirEntries, err := os.ReadDir(c.cfg.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("read image root: %w", err)
	}

	return lo.FilterMap(dirEntries, func(entry os.DirEntry, _ int) (string, bool) {
		return entry.Name(), entry.IsDir()
	}), nil
}

// imageFile returns the first file in folder matching the image pattern.
func (c *Catalog) imageFile(folder string) (string, error) {
	dir, err := securejoin.SecureJoin(c.cfg.ImagePath, folder)
	if err != nil {
		return "", err
	}

	matches, err := filepath.Glob(filepath.Join(dir, c.cfg.ImagePattern))
	if err != nil {
		return "", fmt.Errorf("match %q: %w", c.cfg.ImagePattern, err)
	}

	sort.Strings(matches)

	for _, match := range matches {
		if info, err := os.Stat(match); err == nil && info.Mode().IsRegular() {
			return match, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrNoImage, folder)
}

// resolve fills name, version and mount path of the image in folder.
func (c *Catalog) resolve(
	ctx context.Context,
	folder, imagePath string,
	override config.ImageConfig,
) (servicing.Image, error) {
	mountPath, err := securejoin.SecureJoin(c.cfg.MountPath, folder)
	if err != nil {
		return servicing.Image{}, fmt.Errorf("resolve mount path: %w", err)
	}

	image := servicing.Image{
		Name:       lo.CoalesceOrEmpty(override.Name, folder),
		SourcePath: imagePath,
		Index:      max(override.Index, 1),
		MountPath:  mountPath,
	}

	declared := override.Version
	if declared == "" {
		info, err := c.info.ImageInfo(ctx, imagePath, image.Index)
		if err != nil {
			return image, fmt.Errorf("query image version: %w", err)
		}

		declared = info.Version

		logger.DebugKV(ctx, "Image metadata queried", "folder", folder, "name", info.Name, "version", info.Version)
	}

	image.Version, err = servicing.ParseVersion(declared)
	if err != nil {
		return image, fmt.Errorf("image version: %w", err)
	}

	return image, nil
}
