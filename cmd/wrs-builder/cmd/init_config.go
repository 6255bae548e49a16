package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oshokin/wrs-builder/internal/config"
)

// errConfigExists is returned when init-config would overwrite a file.
var errConfigExists = errors.New("settings file already exists, use --force to overwrite")

// forceInit allows init-config to overwrite an existing file.
var forceInit bool

// initConfigCmd writes a settings file with defaults.
var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write a settings file with default values.",
	Long: `Writes the settings file given by --config with placeholder paths and default
patterns, retries and tool locations. Path flags and WRS_* variables are applied.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := os.Stat(configPath); err == nil && !forceInit {
			return fmt.Errorf("%w: %s", errConfigExists, configPath)
		}

		cfg := config.Default()
		applyOverrides(cfg, overrides)

		if err := config.Save(configPath, cfg); err != nil {
			return err
		}

		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Settings written to", configPath)

		return nil
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	initConfigCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "overwrite an existing settings file")
}
