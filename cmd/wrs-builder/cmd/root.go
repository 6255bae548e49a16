package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/oshokin/wrs-builder/internal/config"
	"github.com/oshokin/wrs-builder/internal/version"
)

// envPrefix prefixes environment overrides, e.g. WRS_WRS_PATH.
const envPrefix = "WRS"

var (
	// configPath to the configuration YAML file.
	configPath string

	// overrides resolves flag and environment values on top of the settings file.
	overrides = newOverrides()

	// rootCmd builds the repair source when run without a subcommand.
	rootCmd = &cobra.Command{
		Use:   "wrs-builder [folder...]",
		Short: "Build a Windows Repair Source incrementally from base images and updates.",
		Long: `Builds a version-keyed Windows Repair Source from base OS images and their update packages.

Every folder under the image path holds one base image, its update packages and
the OSHistory.xml servicing history. For each image the baseline component store
is captured once, then pending updates are installed into a temporary mount and
merged into <wrs_path>/<image version> in ascending version order. A failed step
halts that image; the next run resumes from the last applied update.

Settings come from the YAML file and can be overridden with flags or WRS_*
environment variables (for example WRS_WRS_PATH or WRS_LOG_LEVEL).`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runBuild,
	}
)

// Execute runs the wrs-builder CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		reportError(rootCmd, err)
		os.Exit(1)
	}
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

func newOverrides() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	return v
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.PersistentFlags()

	// Setup command flags with consistent naming and descriptions.
	flags.StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.String("image-path", "", "root folder with one sub-folder per OS image")
	flags.String("wrs-path", "", "root of the versioned repair source output")
	flags.String("mount-path", "", "root folder for temporary image mounts")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-file", "", "also write log entries to this file")
	flags.Bool("native-copy", false, "merge with the built-in copier instead of robocopy")

	for key, flag := range overrideFlags {
		_ = overrides.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(buildCmd, discoverCmd, historyCmd, initConfigCmd)
}
