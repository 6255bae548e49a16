package servicing

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// BaselineID is the reserved identifier of the synthetic entry that records
// the pre-update (RTM) state of an image.
const BaselineID = "RTM"

var (
	// ErrUnknownEntry is returned when an identifier is not present in the history.
	ErrUnknownEntry = errors.New("unknown update entry")
	// ErrDuplicateEntry is returned when appending an identifier that already exists.
	ErrDuplicateEntry = errors.New("duplicate update entry")
	// ErrEmptyIdentifier is returned when an entry has no identifier.
	ErrEmptyIdentifier = errors.New("update identifier is empty")
)

// UpdateEntry is a single row of the servicing history.
type UpdateEntry struct {
	// ID is the update identifier: BaselineID or a knowledge-base identifier such as KB4501835.
	ID string
	// Applied is true once the update was installed and merged into the repair source.
	Applied bool
	// Version is the declared version and defines processing order.
	Version Version
	// Path is the package location; empty for the baseline entry.
	Path string
}

// IsBaseline reports whether the entry is the synthetic RTM entry.
func (e *UpdateEntry) IsBaseline() bool {
	return NormalizeID(e.ID) == BaselineID
}

// History is the ledger of updates known for one image, keyed by identifier.
// Storage order carries no meaning; processing order is always by version.
type History struct {
	entries map[string]*UpdateEntry
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{
		entries: make(map[string]*UpdateEntry),
	}
}

// NormalizeID returns the canonical form of an update identifier.
func NormalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// Len returns the number of entries.
func (h *History) Len() int {
	return len(h.entries)
}

// HasEntry reports whether an entry with the identifier exists.
func (h *History) HasEntry(id string) bool {
	_, ok := h.entries[NormalizeID(id)]

	return ok
}

// Entry returns a copy of the entry with the given identifier.
func (h *History) Entry(id string) (UpdateEntry, bool) {
	entry, ok := h.entries[NormalizeID(id)]
	if !ok {
		return UpdateEntry{}, false
	}

	return *entry, true
}

// Append adds a new entry. The caller is responsible for persisting the history afterwards.
func (h *History) Append(entry UpdateEntry) error {
	id := NormalizeID(entry.ID)
	if id == "" {
		return ErrEmptyIdentifier
	}

	if _, ok := h.entries[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, id)
	}

	entry.ID = id
	h.entries[id] = &entry

	return nil
}

// SetApplied sets the applied flag of an entry. The caller is responsible
// for persisting the history afterwards.
func (h *History) SetApplied(id string, applied bool) error {
	entry, ok := h.entries[NormalizeID(id)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntry, id)
	}

	entry.Applied = applied

	return nil
}

// Entries returns copies of all entries in processing order.
func (h *History) Entries() []UpdateEntry {
	entries := lo.Map(lo.Values(h.entries), func(entry *UpdateEntry, _ int) UpdateEntry {
		return *entry
	})

	slices.SortFunc(entries, compareEntries)

	return entries
}

// OrderedPending returns entries that are not applied, in ascending version order.
func (h *History) OrderedPending() []UpdateEntry {
	return lo.Filter(h.Entries(), func(entry UpdateEntry, _ int) bool {
		return !entry.Applied
	})
}

// HighestApplied returns the applied entry with the highest version.
func (h *History) HighestApplied() (UpdateEntry, bool) {
	applied := lo.Filter(h.Entries(), func(entry UpdateEntry, _ int) bool {
		return entry.Applied
	})

	if len(applied) == 0 {
		return UpdateEntry{}, false
	}

	return applied[len(applied)-1], true
}

// compareEntries orders by version; equal versions put the baseline first
// and then fall back to identifier order.
func compareEntries(a, b UpdateEntry) int {
	if c := a.Version.Compare(b.Version); c != 0 {
		return c
	}

	aBaseline, bBaseline := a.IsBaseline(), b.IsBaseline()

	switch {
	case aBaseline && !bBaseline:
		return -1
	case !aBaseline && bBaseline:
		return 1
	}

	return cmp.Compare(a.ID, b.ID)
}
