package servicing

import "path/filepath"

// WinSxSPath is the component store location relative to an image root.
const WinSxSPath = "Windows/WinSxS"

// Image describes a base OS image and the scratch directory it is mounted to.
type Image struct {
	// Name is the display name, usually the folder the image lives in.
	Name string
	// Version is the declared image version; the baseline entry reuses it.
	Version Version
	// SourcePath is the path to the image file (for example install.wim).
	SourcePath string
	// Index selects a sub-image inside a multi-image archive.
	Index int
	// MountPath is the working directory the image is mounted to during a run.
	MountPath string
}

// Folder returns the directory that holds the image file, its update
// packages and its history document.
func (i *Image) Folder() string {
	return filepath.Dir(i.SourcePath)
}

// HistoryPath returns the location of the sidecar history document.
func (i *Image) HistoryPath(filename string) string {
	return filepath.Join(i.Folder(), filename)
}

// WinSxS returns the component store inside the mounted working copy.
func (i *Image) WinSxS() string {
	return filepath.Join(i.MountPath, filepath.FromSlash(WinSxSPath))
}
