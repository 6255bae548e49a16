package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/wrs-builder/internal/domain/servicing"
	"github.com/oshokin/wrs-builder/internal/repository/history"
	"github.com/oshokin/wrs-builder/internal/service/builder"
)

func loadHistory(t *testing.T, w *workspace) *servicing.History {
	t.Helper()

	ledger, err := history.NewFileRepository(filepath.Join(w.folder, w.cfg.HistoryFilename)).Load(context.Background())
	require.NoError(t, err)

	return ledger
}

// TestBuild_Run_BaselineThenUpdate captures RTM on the first run and applies a new package on the second.
func TestBuild_Run_BaselineThenUpdate(t *testing.T) {
	w := newWorkspace(t)
	output := filepath.Join(w.cfg.WRSPath, "10.0.17763.1")

	summary, err := builder.Run(context.Background(), &builder.Options{Config: w.cfg})
	require.NoError(t, err)
	require.Equal(t, 0, summary.ExitCode())
	require.Equal(t, []string{servicing.BaselineID}, summary.Results[0].Applied)
	require.FileExists(t, filepath.Join(output, "baseline.dll"))

	rtm, ok := loadHistory(t, w).Entry(servicing.BaselineID)
	require.True(t, ok)
	require.True(t, rtm.Applied)
	require.Equal(t, "10.0.17763.1", rtm.Version.String())

	w.addPackage(t, "windows10.0-kb4501835-x64_8bcd1ae2.msu")

	summary, err = builder.Run(context.Background(), &builder.Options{Config: w.cfg})
	require.NoError(t, err)
	require.Equal(t, 0, summary.ExitCode())
	require.Equal(t, []string{"KB4501835"}, summary.Results[0].Applied)
	require.FileExists(t, filepath.Join(output, "windows10.0-kb4501835-x64_8bcd1ae2.msu.dll"))

	ledger := loadHistory(t, w)
	require.Equal(t, 2, ledger.Len())
	require.Empty(t, ledger.OrderedPending())
	require.NoDirExists(t, filepath.Join(w.cfg.MountPath, "Win10-17763"))

	// Nothing is left to do on a third run.
	summary, err = builder.Run(context.Background(), &builder.Options{Config: w.cfg})
	require.NoError(t, err)
	require.Empty(t, summary.Results[0].Applied)
}

// TestBuild_Run_HaltsOnInstallFailure keeps the failed and the following update pending.
func TestBuild_Run_HaltsOnInstallFailure(t *testing.T) {
	w := newWorkspace(t)
	w.addPackage(t, "windows10.0-kb4489899-x64-broken.msu")
	w.addPackage(t, "windows10.0-kb4501835-x64.msu")

	summary, err := builder.Run(context.Background(), &builder.Options{Config: w.cfg})
	require.NoError(t, err)
	require.Equal(t, 1, summary.ExitCode())
	require.Equal(t, builder.StatusHalted, summary.Results[0].Status)
	require.Contains(t, summary.Results[0].Reason, "KB4489899")

	ledger := loadHistory(t, w)
	pending := ledger.OrderedPending()
	require.Len(t, pending, 2)
	require.Equal(t, "KB4489899", pending[0].ID)
	require.Equal(t, "KB4501835", pending[1].ID)
	require.NoFileExists(t, filepath.Join(w.cfg.WRSPath, "10.0.17763.1", "windows10.0-kb4501835-x64.msu.dll"))
	require.NoDirExists(t, filepath.Join(w.cfg.MountPath, "Win10-17763"))
}

// TestBuild_Discover_RegistersWithoutMounting records pending entries and leaves the mount root alone.
func TestBuild_Discover_RegistersWithoutMounting(t *testing.T) {
	w := newWorkspace(t)
	w.addPackage(t, "windows10.0-kb4501835-x64.msu")
	w.addPackage(t, "readme-no-identifier.msu")

	summary, err := builder.Discover(context.Background(), &builder.Options{Config: w.cfg})
	require.NoError(t, err)
	require.Equal(t, 0, summary.ExitCode())

	ledger := loadHistory(t, w)
	require.Equal(t, 1, ledger.Len())
	require.True(t, ledger.HasEntry("KB4501835"))
	require.False(t, ledger.HasEntry(servicing.BaselineID))

	_, err = os.Stat(w.cfg.MountPath)
	require.ErrorIs(t, err, os.ErrNotExist)
}
