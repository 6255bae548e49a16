package merge

import "fmt"

// Outcome is the collapsed result of a merge.
type Outcome int

const (
	// Success means the destination reflects the source.
	Success Outcome = iota
	// SuccessWithWarning means the copy finished but left mismatches behind.
	SuccessWithWarning
	// Failure means files could not be copied.
	Failure
)

// String returns the outcome name used in logs.
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case SuccessWithWarning:
		return "success-with-warning"
	case Failure:
		return "failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Robocopy exit code bits.
const (
	exitCopied     = 1
	exitExtra      = 2
	exitMismatched = 4
	exitFailed     = 8
	exitFatal      = 16
)

// Result is the classification of a single merge.
type Result struct {
	// Outcome is the collapsed result.
	Outcome Outcome
	// ExitCode is the raw code reported by the copier, -1 when it did not run.
	ExitCode int
	// Reason is a human-readable description of what the copy reported.
	Reason string
}

// Failed reports whether the merge must halt processing.
func (r Result) Failed() bool {
	return r.Outcome == Failure
}

// exitCodeInfo holds the classification of a known exit code.
type exitCodeInfo struct {
	outcome Outcome
	reason  string
}

// knownExitCodes maps robocopy exit codes to outcomes.
//
//nolint:gochecknoglobals // Read-only lookup table.
var knownExitCodes = map[int]exitCodeInfo{
	0:                                       {Success, "no files were copied, destination already up to date"},
	exitCopied:                              {Success, "all files were copied successfully"},
	exitExtra:                               {Success, "extra files exist at the destination, no files were copied"},
	exitCopied | exitExtra:                  {Success, "files were copied, extra files exist at the destination"},
	exitMismatched:                          {Failure, "mismatched files exist, no files were copied"},
	exitCopied | exitMismatched:             {Success, "some files were copied, some files were mismatched"},
	exitExtra | exitMismatched:              {SuccessWithWarning, "mismatched and extra files exist, no files were copied"},
	exitCopied | exitExtra | exitMismatched: {SuccessWithWarning, "files were copied, mismatched and extra files exist"},
	exitFailed:                              {Failure, "several files did not copy"},
	exitFatal:                               {Failure, "serious error, no files were copied"},
}

// Classify maps a copier exit code to a Result.
// {0,1,2,3,5} are success, {6,7} success with warning, anything else failure.
func Classify(exitCode int) Result {
	if info, ok := knownExitCodes[exitCode]; ok {
		return Result{Outcome: info.outcome, ExitCode: exitCode, Reason: info.reason}
	}

	if exitCode < 0 {
		return Result{Outcome: Failure, ExitCode: exitCode, Reason: "copy tool did not run"}
	}

	return Result{
		Outcome:  Failure,
		ExitCode: exitCode,
		Reason:   fmt.Sprintf("copy failures reported (exit code %d)", exitCode),
	}
}
