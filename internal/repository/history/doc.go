// Package history implements persistence of the per-image servicing history.
//
// The FileRepository stores the ledger as the OSHistory.xml sidecar document
// next to the base image and replaces it atomically on every save, so the
// document on disk always matches the last completed state change.
package history
