package tools

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	// dismRestartRequired is returned when the operation succeeded but needs a reboot.
	// Offline images never reboot, so it counts as success.
	dismRestartRequired = 3010

	dismTool = "dism"
)

// ErrImageInfo is returned when DISM output does not describe the requested image.
var ErrImageInfo = errors.New("unable to read image information")

// ImageInfo is the metadata DISM reports for one image inside an archive.
type ImageInfo struct {
	// Name is the image display name.
	Name string
	// Version is Version plus ServicePack Build, e.g. 10.0.17763.1.
	Version string
}

// DISM drives the deployment image servicing tool.
type DISM struct {
	executable string
	runner     Runner
}

// NewDISM returns a DISM wrapper for the given executable.
func NewDISM(executable string, runner Runner) *DISM {
	if runner == nil {
		runner = ExecRunner{}
	}

	return &DISM{
		executable: executable,
		runner:     runner,
	}
}

// Mount mounts the image at index into mountPath.
func (d *DISM) Mount(ctx context.Context, imagePath string, index int, mountPath string) error {
	if err := os.MkdirAll(mountPath, 0o755); err != nil {
		return fmt.Errorf("create mount directory: %w", err)
	}

	return d.run(ctx, "mount",
		"/Mount-Image",
		"/ImageFile:"+imagePath,
		"/Index:"+strconv.Itoa(index),
		"/MountDir:"+mountPath,
	)
}

// Unmount unmounts mountPath and discards every change made to the working copy.
func (d *DISM) Unmount(ctx context.Context, mountPath string) error {
	return d.run(ctx, "unmount", "/Unmount-Image", "/MountDir:"+mountPath, "/Discard")
}

// AddPackage installs packagePath into the image mounted at mountPath.
func (d *DISM) AddPackage(ctx context.Context, packagePath, mountPath string) error {
	return d.run(ctx, "add-package", "/Image:"+mountPath, "/Add-Package", "/PackagePath:"+packagePath)
}

// ImageInfo reads name and version of the image at index.
func (d *DISM) ImageInfo(ctx context.Context, imagePath string, index int) (*ImageInfo, error) {
	args := []string{"/English", "/Get-WimInfo", "/WimFile:" + imagePath, "/Index:" + strconv.Itoa(index)}

	output, exitCode, err := d.runner.Run(ctx, d.executable, args...)
	if err != nil {
		return nil, err
	}

	if exitCode != 0 {
		return nil, newToolError(dismTool, "get-wiminfo", exitCode, output)
	}

	return parseImageInfo(output)
}

func (d *DISM) run(ctx context.Context, operation string, args ...string) error {
	output, exitCode, err := d.runner.Run(ctx, d.executable, append([]string{"/English"}, args...)...)
	if err != nil {
		return err
	}

	if exitCode != 0 && exitCode != dismRestartRequired {
		return newToolError(dismTool, operation, exitCode, output)
	}

	return nil
}

// parseImageInfo reads the "Key : Value" lines printed by /Get-WimInfo.
func parseImageInfo(output []byte) (*ImageInfo, error) {
	var (
		info         ImageInfo
		servicePack  string
		scanner      = bufio.NewScanner(bytes.NewReader(output))
		versionFound bool
	)

	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}

		key, value = strings.TrimSpace(key), strings.TrimSpace(value)

		switch key {
		case "Name":
			info.Name = value
		case "Version":
			info.Version = value
			versionFound = value != ""
		case "ServicePack Build":
			servicePack = value
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageInfo, err)
	}

	if !versionFound {
		return nil, fmt.Errorf("%w: version not reported", ErrImageInfo)
	}

	if servicePack != "" && strings.Count(info.Version, ".") < 3 {
		info.Version += "." + servicePack
	}

	return &info, nil
}
