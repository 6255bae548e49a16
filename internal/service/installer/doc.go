// Package installer adds a single update package to a mounted offline image.
package installer
