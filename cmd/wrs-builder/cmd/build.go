package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/wrs-builder/internal/service/builder"
)

// errIncomplete is returned when at least one image did not complete.
var errIncomplete = errors.New("not every image completed")

// buildCmd processes images: the same as running wrs-builder without a subcommand.
var buildCmd = &cobra.Command{
	Use:   "build [folder...]",
	Short: "Capture baselines and apply pending updates to the repair source.",
	Long: `Processes every image folder (or only the given ones) one after another.

Exit status is 0 when every image completed and 1 when any image was halted,
skipped or aborted.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBuild,
}

func runBuild(_ *cobra.Command, args []string) error {
	// Setup graceful shutdown handling.
	ctx, stop := signalContext()
	defer stop()

	cfg, cleanup, err := prepare()
	if err != nil {
		return err
	}

	defer cleanup()

	summary, err := builder.Run(ctx, &builder.Options{
		Config:  cfg,
		Folders: args,
	})
	if err != nil {
		return err
	}

	if code := summary.ExitCode(); code != 0 {
		return fmt.Errorf("%w: %d halted, %d skipped, %d aborted", errIncomplete,
			summary.Count(builder.StatusHalted),
			summary.Count(builder.StatusSkipped),
			summary.Count(builder.StatusAborted),
		)
	}

	return nil
}
