package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

// TestValidate checks required fields and filled defaults.
func TestValidate(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, Validate(nil), errConfigIsNotSet)
	require.ErrorIs(t, Validate(new(Config)), errImagePathRequired)
	require.ErrorIs(t, Validate(&Config{ImagePath: "i"}), errWRSPathRequired)
	require.ErrorIs(t, Validate(&Config{ImagePath: "i", WRSPath: "w"}), errMountPathRequired)

	settings := &Config{ImagePath: "i", WRSPath: "w", MountPath: "m"}
	require.NoError(t, Validate(settings))
	require.Equal(t, DefaultImagePattern, settings.ImagePattern)
	require.Equal(t, []string{DefaultPackagePattern}, settings.PackagePatterns)
	require.Equal(t, DefaultHistoryFilename, settings.HistoryFilename)
	require.Equal(t, DefaultMergeRetries, settings.Merge.RetryCount())
	require.Equal(t, DefaultMergeRetryWait, settings.Merge.RetryWait)
	require.Equal(t, "dism.exe", settings.Tools.DISM)
	require.Equal(t, DefaultLogLevel, settings.LogLevel)
}

// TestValidate_Rejections covers malformed merge, pattern and image override settings.
func TestValidate_Rejections(t *testing.T) {
	t.Parallel()

	base := func() *Config {
		return &Config{ImagePath: "i", WRSPath: "w", MountPath: "m"}
	}

	settings := base()
	settings.Merge.Retries = lo.ToPtr(-1)
	require.ErrorIs(t, Validate(settings), errNegativeRetries)

	settings = base()
	settings.PackagePatterns = []string{"[kb"}
	require.ErrorIs(t, Validate(settings), errBadPattern)

	settings = base()
	settings.Images = []ImageConfig{{Name: "no folder"}}
	require.ErrorIs(t, Validate(settings), errImageFolderRequired)

	settings = base()
	settings.Images = []ImageConfig{{Folder: "Win10"}, {Folder: "Win10"}}
	require.ErrorIs(t, Validate(settings), errDuplicateImageFolder)
}

// TestImageOverride returns the override with a defaulted index.
func TestImageOverride(t *testing.T) {
	t.Parallel()

	settings := &Config{
		ImagePath: "i",
		WRSPath:   "w",
		MountPath: "m",
		Images:    []ImageConfig{{Folder: "Win10-17763", Version: "10.0.17763.1"}},
	}
	require.NoError(t, Validate(settings))

	override, ok := settings.ImageOverride("Win10-17763")
	require.True(t, ok)
	require.Equal(t, 1, override.Index)
	require.Equal(t, "10.0.17763.1", override.Version)

	_, ok = settings.ImageOverride("Win11")
	require.False(t, ok)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	settings := Default()
	settings.Merge.RetryWait = 2 * time.Second
	settings.Images = []ImageConfig{{Folder: "Win10-17763", Index: 3}}

	require.NoError(t, Save(path, settings))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, settings.ImagePath, loaded.ImagePath)
	require.Equal(t, settings.WRSPath, loaded.WRSPath)
	require.Equal(t, 2*time.Second, loaded.Merge.RetryWait)
	require.Equal(t, settings.Images, loaded.Images)

	_, err = os.Stat(path)
	require.NoError(t, err)

	require.ErrorIs(t, Save(path, nil), errConfigIsNotSet)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

// TestValidate_ZeroRetries keeps an explicit zero so that copy retries can be disabled.
func TestValidate_ZeroRetries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	contents := "image_path: i\nwrs_path: w\nmount_path: m\nmerge:\n  retries: 0\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), DefaultFilePermissions))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, loaded.Merge.Retries)
	require.Equal(t, 0, loaded.Merge.RetryCount())

	require.Equal(t, DefaultMergeRetries, (&MergeConfig{}).RetryCount())
}

// TestRead_SkipsValidation decodes an incomplete file that Load rejects.
func TestRead_SkipsValidation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	require.NoError(t, os.WriteFile(path, []byte("image_path: i\n"), DefaultFilePermissions))

	cfg, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, "i", cfg.ImagePath)
	require.Empty(t, cfg.WRSPath)
	require.Nil(t, cfg.Merge.Retries)

	_, err = Load(path)
	require.ErrorIs(t, err, errWRSPathRequired)

	_, err = Read(filepath.Join(dir, "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
