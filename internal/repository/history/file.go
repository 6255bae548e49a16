package history

import (
	"bytes"
	"context"
	"crypto"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/wrs-builder/internal/config"
	"github.com/oshokin/wrs-builder/internal/domain/servicing"

	// Ensure SHA512 available for write verification.
	_ "crypto/sha512"
)

// Repository defines persistence operations for a servicing history.
type Repository interface {
	Load(ctx context.Context) (*servicing.History, error)
	Save(ctx context.Context, history *servicing.History) error
}

var (
	// ErrPersist wraps every failure to write the history document.
	// Callers must treat it as fatal for the image being processed.
	ErrPersist = errors.New("persist servicing history")
	// ErrCorrupt is returned when the document cannot be interpreted.
	ErrCorrupt = errors.New("corrupt servicing history")
)

// checksumFunction verifies that the replacement document was written intact.
const checksumFunction = crypto.SHA512

// updatesDocument is the XML root element of the history document.
type updatesDocument struct {
	XMLName xml.Name        `xml:"Updates"`
	Updates []updateElement `xml:"Update"`
}

// updateElement is a single ledger row stored as attributes.
type updateElement struct {
	KB      string `xml:"KB,attr"`
	Applied string `xml:"Applied,attr"`
	Version string `xml:"Version,attr"`
	Path    string `xml:"Path,attr"`
}

// FileRepository persists a servicing history to an XML document on disk.
type FileRepository struct {
	// path is the filesystem location of the history document.
	path string
	// mu serializes access to the document within this process.
	mu sync.Mutex
}

// NewFileRepository creates a repository that reads/writes XML at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the location of the history document.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the history from disk. A missing document is not an error:
// an empty document is created, persisted and returned.
func (r *FileRepository) Load(_ context.Context) (*servicing.History, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		history := servicing.NewHistory()
		if err = r.save(history); err != nil {
			return nil, err
		}

		return history, nil
	}

	if err != nil {
		return nil, fmt.Errorf("read history file: %w", err)
	}

	return decode(contents)
}

// Save atomically replaces the history document with the provided state.
func (r *FileRepository) Save(_ context.Context, history *servicing.History) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.save(history)
}

func (r *FileRepository) save(history *servicing.History) error {
	data, err := encode(history)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	if err = os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("%w: create directory: %w", ErrPersist, err)
	}

	// The atomic swap renames the current document aside, so one must exist.
	if _, err = os.Stat(r.path); errors.Is(err, os.ErrNotExist) {
		if err = os.WriteFile(r.path, nil, config.DefaultFilePermissions); err != nil {
			return fmt.Errorf("%w: create placeholder: %w", ErrPersist, err)
		}
	}

	hasher := checksumFunction.New()
	_, _ = hasher.Write(data)

	options := goupdate.Options{
		TargetPath: r.path,
		TargetMode: config.DefaultFilePermissions,
		Checksum:   hasher.Sum(nil),
		Hash:       checksumFunction,
	}

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return fmt.Errorf("%w: replace %s: %w", ErrPersist, r.path, err)
	}

	return nil
}

// encode renders the history in version order.
func encode(history *servicing.History) ([]byte, error) {
	entries := history.Entries()
	doc := updatesDocument{
		Updates: make([]updateElement, 0, len(entries)),
	}

	for _, entry := range entries {
		doc.Updates = append(doc.Updates, updateElement{
			KB:      entry.ID,
			Applied: formatApplied(entry.Applied),
			Version: entry.Version.String(),
			Path:    entry.Path,
		})
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}

	return append([]byte(xml.Header), append(body, '\n')...), nil
}

// decode parses a history document. Whitespace-only content is an empty history.
func decode(contents []byte) (*servicing.History, error) {
	history := servicing.NewHistory()
	if len(bytes.TrimSpace(contents)) == 0 {
		return history, nil
	}

	var doc updatesDocument
	if err := xml.Unmarshal(contents, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	for _, element := range doc.Updates {
		entry, err := toEntry(element)
		if err != nil {
			return nil, err
		}

		if err = history.Append(entry); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
	}

	return history, nil
}

func toEntry(element updateElement) (servicing.UpdateEntry, error) {
	version, err := servicing.ParseVersion(element.Version)
	if err != nil {
		return servicing.UpdateEntry{}, fmt.Errorf("%w: entry %q: %w", ErrCorrupt, element.KB, err)
	}

	applied, ok := parseApplied(element.Applied)
	if !ok {
		return servicing.UpdateEntry{}, fmt.Errorf("%w: entry %q applied flag %q", ErrCorrupt, element.KB, element.Applied)
	}

	return servicing.UpdateEntry{
		ID:      element.KB,
		Applied: applied,
		Version: version,
		Path:    element.Path,
	}, nil
}

// parseApplied accepts True and False in any letter case. An empty flag is false.
func parseApplied(value string) (bool, bool) {
	value = strings.TrimSpace(value)

	switch {
	case value == "", strings.EqualFold(value, "false"):
		return false, true
	case strings.EqualFold(value, "true"):
		return true, true
	default:
		return false, false
	}
}

// formatApplied writes the flag as PowerShell renders booleans.
func formatApplied(applied bool) string {
	if applied {
		return "True"
	}

	return "False"
}
