package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/wrs-builder/internal/service/builder"
)

// discoverCmd registers new update packages without mounting images.
var discoverCmd = &cobra.Command{
	Use:   "discover [folder...]",
	Short: "Register new update packages as pending in each servicing history.",
	Long: `Scans image folders for update packages whose KB identifier is not yet in
OSHistory.xml, reads the version from each package manifest and records the
package as pending. Nothing is installed or merged.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(_ *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		cfg, cleanup, err := prepare()
		if err != nil {
			return err
		}

		defer cleanup()

		summary, err := builder.Discover(ctx, &builder.Options{
			Config:  cfg,
			Folders: args,
		})
		if err != nil {
			return err
		}

		if summary.ExitCode() != 0 {
			return fmt.Errorf("%w: %d skipped, %d aborted", errIncomplete,
				summary.Count(builder.StatusSkipped),
				summary.Count(builder.StatusAborted),
			)
		}

		return nil
	},
}
