package integration

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/wrs-builder/internal/config"
)

// fakeDISM mimics the DISM calls made by the builder on a POSIX shell.
// Packages with "broken" in their name fail to install.
const fakeDISM = `#!/bin/sh
op=""; mount=""; pkg=""
for arg in "$@"; do
  case "$arg" in
    /Mount-Image|/Unmount-Image|/Add-Package|/Get-WimInfo) op="$arg" ;;
    /MountDir:*) mount="${arg#/MountDir:}" ;;
    /Image:*) mount="${arg#/Image:}" ;;
    /PackagePath:*) pkg="${arg#/PackagePath:}" ;;
  esac
done
case "$op" in
  /Get-WimInfo)
    printf 'Details for image\n\nIndex : 1\nName : Windows 10 Enterprise LTSC\nVersion : 10.0.17763\nServicePack Build : 1\n' ;;
  /Mount-Image)
    mkdir -p "$mount/Windows/WinSxS" && echo rtm > "$mount/Windows/WinSxS/baseline.dll" ;;
  /Add-Package)
    case "$pkg" in *broken*) echo "Error: 0x800f081e"; exit 2 ;; esac
    echo patched > "$mount/Windows/WinSxS/$(basename "$pkg").dll" ;;
  /Unmount-Image)
    rm -rf "$mount" ;;
  *)
    exit 87 ;;
esac
`

// fakeExpand extracts a manifest declaring the same version for every package.
const fakeExpand = `#!/bin/sh
cat > "$3/update.xml" <<XML
<?xml version="1.0" encoding="utf-8"?>
<unattend xmlns="urn:schemas-microsoft-com:unattend">
  <servicing>
    <package action="install">
      <assemblyIdentity name="Package_for_RollupFix" version="10.0.17763.292" language="neutral"/>
    </package>
  </servicing>
</unattend>
XML
`

// workspace is a throwaway image root, output tree and tool set.
type workspace struct {
	cfg    *config.Config
	folder string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake servicing tools are shell scripts")
	}

	dir := t.TempDir()
	bin := filepath.Join(dir, "bin")
	folder := filepath.Join(dir, "images", "Win10-17763")

	require.NoError(t, os.MkdirAll(bin, 0o755))
	require.NoError(t, os.MkdirAll(folder, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "dism"), []byte(fakeDISM), 0o755))   //nolint:gosec // Test tool.
	require.NoError(t, os.WriteFile(filepath.Join(bin, "expand"), []byte(fakeExpand), 0o755)) //nolint:gosec // Test tool.
	require.NoError(t, os.WriteFile(filepath.Join(folder, "install.wim"), []byte("wim"), 0o600))

	cfg := &config.Config{
		ImagePath: filepath.Join(dir, "images"),
		WRSPath:   filepath.Join(dir, "wrs"),
		MountPath: filepath.Join(dir, "mount"),
		Merge: config.MergeConfig{
			Retries:   lo.ToPtr(1),
			RetryWait: time.Millisecond,
			Native:    true,
		},
		Tools: config.ToolsConfig{
			DISM:   filepath.Join(bin, "dism"),
			Expand: filepath.Join(bin, "expand"),
		},
	}
	require.NoError(t, config.Validate(cfg))

	return &workspace{cfg: cfg, folder: folder}
}

func (w *workspace) addPackage(t *testing.T, name string) string {
	t.Helper()

	path := filepath.Join(w.folder, name)
	require.NoError(t, os.WriteFile(path, []byte("msu"), 0o600))

	return path
}
