package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/oshokin/wrs-builder/internal/config"
	"github.com/oshokin/wrs-builder/internal/logger"
)

// overrideFlags maps settings keys to the persistent flags that override them.
//
//nolint:gochecknoglobals // Static lookup table.
var overrideFlags = map[string]string{
	"image_path":   "image-path",
	"wrs_path":     "wrs-path",
	"mount_path":   "mount-path",
	"log_level":    "log-level",
	"log_file":     "log-file",
	"merge.native": "native-copy",
}

// loadSettings reads the settings file, applies flag and environment overrides
// and validates the result. A missing file is tolerated unless required is set,
// so that flags alone can supply every path.
func loadSettings(path string, required bool, v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Read(path)

	switch {
	case err == nil:
	case !required && errors.Is(err, os.ErrNotExist):
		cfg = new(config.Config)
	default:
		return nil, err
	}

	applyOverrides(cfg, v)

	if err = config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate settings: %w", err)
	}

	return cfg, nil
}

// applyOverrides copies every explicitly set flag or environment value into cfg.
func applyOverrides(cfg *config.Config, v *viper.Viper) {
	texts := map[string]*string{
		"image_path": &cfg.ImagePath,
		"wrs_path":   &cfg.WRSPath,
		"mount_path": &cfg.MountPath,
		"log_level":  &cfg.LogLevel,
		"log_file":   &cfg.LogFile,
	}

	for key, target := range texts {
		if v.IsSet(key) {
			*target = v.GetString(key)
		}
	}

	if v.IsSet("merge.native") {
		cfg.Merge.Native = v.GetBool("merge.native")
	}
}

// settingsRequired reports whether the settings file was named explicitly.
func settingsRequired() bool {
	return rootCmd.PersistentFlags().Changed("config")
}

// setupLogging applies the configured level and optional log file.
// The returned function flushes and closes the log file.
func setupLogging(cfg *config.Config) (func(), error) {
	level, ok := logger.ParseLogLevel(cfg.LogLevel)
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}

	logger.SetLevel(level)

	if cfg.LogFile == "" {
		return func() {
			_ = logger.Logger().Sync()
		}, nil
	}

	fileLogger, closeFile, err := logger.NewWithFile(logger.AtomicLevel(), cfg.LogFile)
	if err != nil {
		return nil, err
	}

	logger.SetLogger(fileLogger)

	return func() {
		_ = fileLogger.Sync()
		_ = closeFile()
	}, nil
}

// prepare loads settings and logging for a command that touches images.
func prepare() (*config.Config, func(), error) {
	cfg, err := loadSettings(configPath, settingsRequired(), overrides)
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	cleanup, err := setupLogging(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("setup logging: %w", err)
	}

	return cfg, cleanup, nil
}

// reportError prints a command error to stderr.
func reportError(cmd *cobra.Command, err error) {
	_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
}
