package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings of a repair source build.
type Config struct {
	// ImagePath is the root folder containing one sub-folder per OS image.
	ImagePath string `yaml:"image_path"`
	// WRSPath is the root of the versioned repair source output tree.
	WRSPath string `yaml:"wrs_path"`
	// MountPath is the root under which each image gets a working mount directory.
	MountPath string `yaml:"mount_path"`
	// ImagePattern selects the base image file inside an OS folder.
	ImagePattern string `yaml:"image_pattern"`
	// PackagePatterns select update package files inside an OS folder.
	PackagePatterns []string `yaml:"package_patterns"`
	// HistoryFilename is the name of the sidecar servicing history document.
	HistoryFilename string `yaml:"history_filename"`
	// Images overrides discovered image metadata per OS folder.
	Images []ImageConfig `yaml:"images,omitempty"`
	// Merge tunes the copy operation used by the merge engine.
	Merge MergeConfig `yaml:"merge"`
	// Tools holds paths to the external servicing executables.
	Tools ToolsConfig `yaml:"tools"`
	// LogLevel is the minimum level of emitted log entries.
	LogLevel string `yaml:"log_level"`
	// LogFile optionally duplicates log output into a file.
	LogFile string `yaml:"log_file,omitempty"`
}

// ImageConfig overrides metadata of the image found in Folder.
type ImageConfig struct {
	// Folder is the OS folder name under ImagePath.
	Folder string `yaml:"folder"`
	// Name is the display name; defaults to the folder name.
	Name string `yaml:"name,omitempty"`
	// Index selects the sub-image inside the archive; defaults to 1.
	Index int `yaml:"index,omitempty"`
	// Version is the declared image version; queried from the image when empty.
	Version string `yaml:"version,omitempty"`
	// Skip excludes the folder from processing.
	Skip bool `yaml:"skip,omitempty"`
}

// MergeConfig tunes the merge copy.
type MergeConfig struct {
	// Retries is how many times a failing file copy is retried; 0 disables
	// retries and an unset value means DefaultMergeRetries.
	Retries *int `yaml:"retries,omitempty"`
	// RetryWait is the pause between attempts.
	RetryWait time.Duration `yaml:"retry_wait"`
	// Native selects the built-in copier instead of robocopy.
	Native bool `yaml:"native"`
}

// RetryCount returns the configured number of retries, or the default when unset.
func (m *MergeConfig) RetryCount() int {
	if m.Retries == nil {
		return DefaultMergeRetries
	}

	return *m.Retries
}

// ToolsConfig holds executable paths of the external servicing tools.
type ToolsConfig struct {
	// DISM is the deployment image servicing tool.
	DISM string `yaml:"dism"`
	// Expand extracts files from update packages.
	Expand string `yaml:"expand"`
	// Robocopy performs the merge copy unless Merge.Native is set.
	Robocopy string `yaml:"robocopy"`
}

const (
	// DefaultConfigFilename is the default filename for build settings.
	DefaultConfigFilename = "wrs-builder-settings.yaml"

	// DefaultHistoryFilename is the sidecar servicing history document name.
	DefaultHistoryFilename = "OSHistory.xml"

	// DefaultImagePattern matches the base image file.
	DefaultImagePattern = "*.wim"

	// DefaultPackagePattern matches update packages.
	DefaultPackagePattern = "*.msu"

	// DefaultMergeRetries is the number of copy retries per file.
	DefaultMergeRetries = 3

	// DefaultMergeRetryWait is the pause between copy attempts.
	DefaultMergeRetryWait = 5 * time.Second

	// DefaultLogLevel is used when no level is configured.
	DefaultLogLevel = "info"

	// DefaultFilePermissions is the default file permission for written documents.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errImagePathRequired is returned when the image root is missing.
	errImagePathRequired = errors.New("image path must be provided")
	// errWRSPathRequired is returned when the output root is missing.
	errWRSPathRequired = errors.New("wrs path must be provided")
	// errMountPathRequired is returned when the mount root is missing.
	errMountPathRequired = errors.New("mount path must be provided")
	// errNegativeRetries is returned for a negative retry count.
	errNegativeRetries = errors.New("merge retries must not be negative")
	// errImageFolderRequired is returned when an image override has no folder.
	errImageFolderRequired = errors.New("image override must name a folder")
	// errDuplicateImageFolder is returned when two overrides share a folder.
	errDuplicateImageFolder = errors.New("image override folder is duplicated")
	// errBadPattern is returned for a malformed glob pattern.
	errBadPattern = errors.New("invalid file pattern")
)

// Default returns a configuration populated with defaults and placeholder paths.
func Default() *Config {
	cfg := &Config{
		ImagePath: filepath.FromSlash("C:/WRS/Images"),
		WRSPath:   filepath.FromSlash("C:/WRS/Source"),
		MountPath: filepath.FromSlash("C:/WRS/Mount"),
	}

	// Defaults cannot fail validation once the paths above are set.
	_ = Validate(cfg)

	return cfg
}

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}

	if err = Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Read decodes configuration from the provided path without validating it,
// so that callers can apply overrides first.
func Read(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields and fills defaults for optional ones.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	switch {
	case settings.ImagePath == "":
		return errImagePathRequired
	case settings.WRSPath == "":
		return errWRSPathRequired
	case settings.MountPath == "":
		return errMountPathRequired
	}

	if settings.ImagePattern == "" {
		settings.ImagePattern = DefaultImagePattern
	}

	if len(settings.PackagePatterns) == 0 {
		settings.PackagePatterns = []string{DefaultPackagePattern}
	}

	for _, pattern := range append([]string{settings.ImagePattern}, settings.PackagePatterns...) {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("%w %q: %w", errBadPattern, pattern, err)
		}
	}

	if settings.HistoryFilename == "" {
		settings.HistoryFilename = DefaultHistoryFilename
	}

	if settings.LogLevel == "" {
		settings.LogLevel = DefaultLogLevel
	}

	if err := validateMerge(&settings.Merge); err != nil {
		return err
	}

	validateTools(&settings.Tools)

	return validateImages(settings.Images)
}

// ImageOverride returns the override configured for folder, if any.
func (c *Config) ImageOverride(folder string) (ImageConfig, bool) {
	for _, image := range c.Images {
		if image.Folder == folder {
			return image, true
		}
	}

	return ImageConfig{}, false
}

func validateMerge(merge *MergeConfig) error {
	switch {
	case merge.Retries == nil:
		retries := DefaultMergeRetries
		merge.Retries = &retries
	case *merge.Retries < 0:
		return errNegativeRetries
	}

	if merge.RetryWait <= 0 {
		merge.RetryWait = DefaultMergeRetryWait
	}

	return nil
}

func validateTools(tools *ToolsConfig) {
	if tools.DISM == "" {
		tools.DISM = "dism.exe"
	}

	if tools.Expand == "" {
		tools.Expand = "expand.exe"
	}

	if tools.Robocopy == "" {
		tools.Robocopy = "robocopy.exe"
	}
}

func validateImages(images []ImageConfig) error {
	seen := make(map[string]struct{}, len(images))

	for i := range images {
		image := &images[i]
		if image.Folder == "" {
			return errImageFolderRequired
		}

		if _, ok := seen[image.Folder]; ok {
			return fmt.Errorf("%w: %s", errDuplicateImageFolder, image.Folder)
		}

		seen[image.Folder] = struct{}{}

		if image.Index <= 0 {
			image.Index = 1
		}
	}

	return nil
}
