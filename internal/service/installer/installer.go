package installer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/oshokin/wrs-builder/internal/logger"
)

// PackageAdder installs a package into an offline image.
type PackageAdder interface {
	AddPackage(ctx context.Context, packagePath, mountPath string) error
}

var (
	// errPackageRequired is returned when no package path is given.
	errPackageRequired = errors.New("package path must be provided")
	// errMountRequired is returned when no working image path is given.
	errMountRequired = errors.New("mount path must be provided")
)

// Installer applies update packages. It never retries: a failure is handed
// back so the caller can halt and resume on a later run.
type Installer struct {
	adder PackageAdder
}

// New creates an Installer backed by adder.
func New(adder PackageAdder) *Installer {
	return &Installer{
		adder: adder,
	}
}

// Install adds packagePath to the image mounted at mountPath.
func (i *Installer) Install(ctx context.Context, packagePath, mountPath string) error {
	switch {
	case packagePath == "":
		return errPackageRequired
	case mountPath == "":
		return errMountRequired
	}

	ctx = logger.WithKV(ctx, "package", DisplayName(packagePath))
	started := time.Now()

	logger.InfoKV(ctx, "Installing update", "path", packagePath)

	if err := i.adder.AddPackage(ctx, packagePath, mountPath); err != nil {
		logger.ErrorKV(ctx, "Update installation failed", "error", err, "elapsed", time.Since(started).String())

		return fmt.Errorf("install %s: %w", DisplayName(packagePath), err)
	}

	logger.InfoKV(ctx, "Update installed", "elapsed", time.Since(started).String())

	return nil
}

// DisplayName derives a short label for logs from a package path,
// e.g. windows10.0-kb4501835-x64.msu becomes windows10.0-kb4501835-x64.
func DisplayName(packagePath string) string {
	// Package paths may be recorded on another platform.
	base := filepath.Base(strings.ReplaceAll(packagePath, `\`, "/"))

	return strings.TrimSuffix(base, filepath.Ext(base))
}
