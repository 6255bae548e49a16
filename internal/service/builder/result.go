package builder

import (
	"github.com/samber/lo"
)

// Status is the terminal state of one image in a run.
type Status int

const (
	// StatusCompleted means every pending update was applied.
	StatusCompleted Status = iota
	// StatusHalted means an operation failed; the history is consistent and the next run resumes.
	StatusHalted
	// StatusSkipped means the image could not be resolved or mounted and was not processed.
	StatusSkipped
	// StatusAborted means the servicing history could not be read or written.
	StatusAborted
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusHalted:
		return "halted"
	case StatusSkipped:
		return "skipped"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// ImageResult is the outcome of processing one image.
type ImageResult struct {
	// Folder is the image folder under the image root.
	Folder string
	// Name is the image display name.
	Name string
	// Status is the state the image ended in.
	Status Status
	// Reason describes why the image did not complete.
	Reason string
	// Applied lists identifiers marked applied during this run, baseline included.
	Applied []string
}

// Summary collects the per-image results of a run.
type Summary struct {
	Results []ImageResult
}

// ExitCode returns 0 when every image completed and 1 otherwise.
func (s *Summary) ExitCode() int {
	if s == nil {
		return 1
	}

	if lo.EveryBy(s.Results, func(result ImageResult) bool {
		return result.Status == StatusCompleted
	}) {
		return 0
	}

	return 1
}

// Count returns how many images ended in status.
func (s *Summary) Count(status Status) int {
	return lo.CountBy(s.Results, func(result ImageResult) bool {
		return result.Status == status
	})
}
