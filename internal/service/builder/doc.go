// Package builder drives the incremental repair source build.
//
// Images are processed one after another. Each image is mounted, its
// baseline (RTM) component store is merged into the version-keyed output
// directory once, and then pending updates are installed and merged in
// ascending version order. The first failing operation halts the image; a
// failure to persist the servicing history aborts it. The working copy is
// always unmounted with its changes discarded.
//
// Two runs must never process the same image folder at the same time: the
// history document is not locked. Run only warns when it sees another
// wrs-builder process.
package builder
