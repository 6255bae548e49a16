package discovery

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/wrs-builder/internal/domain/servicing"
)

// ErrNoManifestVersion is returned when a manifest declares no usable version.
var ErrNoManifestVersion = errors.New("manifest declares no version")

// unattendManifest is the servicing manifest bundled in an update package.
// Element names match regardless of the unattend namespace.
type unattendManifest struct {
	XMLName  xml.Name          `xml:"unattend"`
	Packages []manifestPackage `xml:"servicing>package"`
}

type manifestPackage struct {
	Action   string           `xml:"action,attr"`
	Identity assemblyIdentity `xml:"assemblyIdentity"`
}

type assemblyIdentity struct {
	Name    string `xml:"name,attr"`
	Version string `xml:"version,attr"`
}

// ReadManifestVersion returns the highest version declared by the packages of a manifest file.
func ReadManifestVersion(path string) (servicing.Version, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return servicing.Version{}, fmt.Errorf("read manifest: %w", err)
	}

	var manifest unattendManifest
	if err = xml.Unmarshal(contents, &manifest); err != nil {
		return servicing.Version{}, fmt.Errorf("decode manifest: %w", err)
	}

	var highest servicing.Version

	for _, pkg := range manifest.Packages {
		if pkg.Identity.Version == "" {
			continue
		}

		version, err := servicing.ParseVersion(pkg.Identity.Version)
		if err != nil {
			return servicing.Version{}, fmt.Errorf("package %s: %w", pkg.Identity.Name, err)
		}

		if highest.IsZero() || highest.Less(version) {
			highest = version
		}
	}

	if highest.IsZero() {
		return servicing.Version{}, fmt.Errorf("%w: %s", ErrNoManifestVersion, filepath.Base(path))
	}

	return highest, nil
}
