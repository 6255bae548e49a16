// Package merge copies the changed component store of a working image into
// the versioned repair source tree and classifies the outcome.
//
// The copy itself is delegated to a Copier reporting robocopy exit codes.
// Classify collapses those codes into success, success with warning and
// failure; only failure stops the builder.
package merge
