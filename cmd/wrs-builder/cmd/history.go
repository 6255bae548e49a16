package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/spf13/cobra"

	"github.com/oshokin/wrs-builder/internal/config"
	"github.com/oshokin/wrs-builder/internal/repository/history"
)

// historyCmd prints the servicing history of image folders.
var historyCmd = &cobra.Command{
	Use:   "history [folder...]",
	Short: "Print the servicing history of each image folder in version order.",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadSettings(configPath, settingsRequired(), overrides)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}

		folders := args
		if len(folders) == 0 {
			if folders, err = imageFolders(cfg.ImagePath); err != nil {
				return err
			}
		}

		return printHistories(cmd.Context(), cmd.OutOrStdout(), cfg, folders)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func imageFolders(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read image root: %w", err)
	}

	folders := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			folders = append(folders, entry.Name())
		}
	}

	sort.Strings(folders)

	return folders, nil
}

// printHistories renders one table per folder. Folders without a history are
// reported but no document is created for them.
func printHistories(ctx context.Context, out io.Writer, cfg *config.Config, folders []string) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	for _, folder := range folders {
		dir, err := securejoin.SecureJoin(cfg.ImagePath, folder)
		if err != nil {
			return fmt.Errorf("resolve folder %q: %w", folder, err)
		}

		path := filepath.Join(dir, cfg.HistoryFilename)

		_, _ = fmt.Fprintf(w, "%s\n", folder)

		if _, err = os.Stat(path); errors.Is(err, os.ErrNotExist) {
			_, _ = fmt.Fprintf(w, "  no history\n\n")

			continue
		}

		ledger, err := history.NewFileRepository(path).Load(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", folder, err)
		}

		_, _ = fmt.Fprintf(w, "  KB\tVERSION\tAPPLIED\tPATH\n")

		for _, entry := range ledger.Entries() {
			_, _ = fmt.Fprintf(w, "  %s\t%s\t%t\t%s\n", entry.ID, entry.Version, entry.Applied, entry.Path)
		}

		_, _ = fmt.Fprintln(w)
	}

	return w.Flush()
}
