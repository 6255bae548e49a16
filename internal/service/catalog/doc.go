// Package catalog locates the base OS images under the image root and
// resolves their metadata from configuration overrides and DISM.
package catalog
