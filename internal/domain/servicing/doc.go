// Package servicing contains the core domain types of the repair source builder.
//
// It defines Version (a dot-separated ordinal), UpdateEntry (one ledger row),
// History (the per-image ledger keyed by update identifier) and Image (a base
// OS image together with its working mount path).
package servicing
