package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/wrs-builder/internal/config"
	"github.com/oshokin/wrs-builder/internal/domain/servicing"
	"github.com/oshokin/wrs-builder/internal/repository/history"
)

// TestLoadSettings_AppliesOverrides lets explicit values win over the settings file.
func TestLoadSettings_AppliesOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), config.DefaultConfigFilename)
	require.NoError(t, config.Save(path, config.Default()))

	v := viper.New()
	v.Set("wrs_path", "/srv/wrs")
	v.Set("log_level", "debug")
	v.Set("merge.native", true)

	cfg, err := loadSettings(path, true, v)
	require.NoError(t, err)
	require.Equal(t, "/srv/wrs", cfg.WRSPath)
	require.Equal(t, "debug", cfg.LogLevel)
	require.True(t, cfg.Merge.Native)
	require.Equal(t, config.Default().ImagePath, cfg.ImagePath)
}

// TestLoadSettings_MissingFile reports an explicitly named settings file that does not exist.
func TestLoadSettings_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := loadSettings(filepath.Join(t.TempDir(), "missing.yaml"), true, viper.New())
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestLoadSettings_PathFromOverride completes a partial settings file with a flag value.
func TestLoadSettings_PathFromOverride(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), config.DefaultConfigFilename)
	contents := "image_path: /srv/images\nmount_path: /srv/mount\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), config.DefaultFilePermissions))

	v := viper.New()
	v.Set("wrs_path", "/srv/wrs")

	cfg, err := loadSettings(path, true, v)
	require.NoError(t, err)
	require.Equal(t, "/srv/images", cfg.ImagePath)
	require.Equal(t, "/srv/wrs", cfg.WRSPath)
	require.Equal(t, config.DefaultHistoryFilename, cfg.HistoryFilename)
	require.Equal(t, config.DefaultMergeRetries, cfg.Merge.RetryCount())
}

// TestLoadSettings_WithoutFile builds settings from overrides when the default file is absent.
func TestLoadSettings_WithoutFile(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), config.DefaultConfigFilename)

	v := viper.New()
	v.Set("image_path", "/srv/images")
	v.Set("wrs_path", "/srv/wrs")
	v.Set("mount_path", "/srv/mount")

	cfg, err := loadSettings(missing, false, v)
	require.NoError(t, err)
	require.Equal(t, "/srv/images", cfg.ImagePath)
	require.Equal(t, "/srv/mount", cfg.MountPath)
	require.Equal(t, config.DefaultImagePattern, cfg.ImagePattern)
	require.NoFileExists(t, missing)

	_, err = loadSettings(missing, false, viper.New())
	require.Error(t, err)
}

// TestPrintHistories renders entries in version order and never creates documents.
func TestPrintHistories(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "WS2019"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "WS2016"), 0o755))

	ledger := servicing.NewHistory()
	require.NoError(t, ledger.Append(servicing.UpdateEntry{
		ID:      "KB4501835",
		Version: servicing.MustParseVersion("10.0.17763.292"),
		Path:    `C:\Images\WS2019\kb4501835.msu`,
	}))
	require.NoError(t, ledger.Append(servicing.UpdateEntry{
		ID:      servicing.BaselineID,
		Applied: true,
		Version: servicing.MustParseVersion("10.0.17763.1"),
	}))

	historyPath := filepath.Join(root, "WS2019", config.DefaultHistoryFilename)
	require.NoError(t, history.NewFileRepository(historyPath).Save(context.Background(), ledger))

	cfg := &config.Config{ImagePath: root, WRSPath: t.TempDir(), MountPath: t.TempDir()}
	require.NoError(t, config.Validate(cfg))

	folders, err := imageFolders(root)
	require.NoError(t, err)
	require.Equal(t, []string{"WS2016", "WS2019"}, folders)

	var out bytes.Buffer
	require.NoError(t, printHistories(context.Background(), &out, cfg, folders))

	text := out.String()
	require.Contains(t, text, "no history")
	require.Less(t, bytes.Index(out.Bytes(), []byte("RTM")), bytes.Index(out.Bytes(), []byte("KB4501835")))
	require.NoFileExists(t, filepath.Join(root, "WS2016", config.DefaultHistoryFilename))
}
