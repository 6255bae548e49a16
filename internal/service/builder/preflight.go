package builder

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-ps"
	"github.com/samber/lo"

	"github.com/oshokin/wrs-builder/internal/logger"
)

// warnAboutOtherInstances logs a warning when another process runs the same executable.
func warnAboutOtherInstances(ctx context.Context) {
	executable, err := os.Executable()
	if err != nil {
		logger.DebugKV(ctx, "Unable to resolve own executable", "error", err)

		return
	}

	processes, err := ps.Processes()
	if err != nil {
		logger.DebugKV(ctx, "Unable to list processes", "error", err)

		return
	}

	others := otherInstances(processes, os.Getpid(), filepath.Base(executable))
	if len(others) == 0 {
		return
	}

	logger.WarnKV(ctx, "Another build seems to be running, concurrent runs over the same image are unsafe",
		"pids", others)
}

// otherInstances returns pids of processes named like executable, except self.
func otherInstances(processes []ps.Process, self int, executable string) []int {
	return lo.FilterMap(processes, func(process ps.Process, _ int) (int, bool) {
		if process.Pid() == self {
			return 0, false
		}

		return process.Pid(), strings.EqualFold(process.Executable(), executable)
	})
}
