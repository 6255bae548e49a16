package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const expandTool = "expand"

// ErrNoManifest is returned when a package contains no XML manifest.
var ErrNoManifest = errors.New("package contains no manifest")

// Expand extracts files from update packages.
type Expand struct {
	executable string
	runner     Runner
}

// NewExpand returns an Expand wrapper for the given executable.
func NewExpand(executable string, runner Runner) *Expand {
	if runner == nil {
		runner = ExecRunner{}
	}

	return &Expand{
		executable: executable,
		runner:     runner,
	}
}

// ExtractManifest extracts the XML manifest bundled in packagePath into
// outputDir and returns the path of the extracted file.
func (e *Expand) ExtractManifest(ctx context.Context, packagePath, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create manifest directory: %w", err)
	}

	output, exitCode, err := e.runner.Run(ctx, e.executable, "-F:*.xml", packagePath, outputDir)
	if err != nil {
		return "", err
	}

	if exitCode != 0 {
		return "", newToolError(expandTool, "extract manifest", exitCode, output)
	}

	manifests, err := filepath.Glob(filepath.Join(outputDir, "*.xml"))
	if err != nil {
		return "", fmt.Errorf("list manifests: %w", err)
	}

	if len(manifests) == 0 {
		return "", fmt.Errorf("%s: %w", packagePath, ErrNoManifest)
	}

	sort.Strings(manifests)

	return manifests[0], nil
}
