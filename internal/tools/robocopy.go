package tools

import (
	"context"
	"strconv"
	"time"
)

// Robocopy performs the additive merge copy with the robust file copy tool.
type Robocopy struct {
	executable string
	runner     Runner
	retries    int
	wait       time.Duration
}

// NewRobocopy returns a Robocopy wrapper retrying each file retries times, waiting wait between attempts.
func NewRobocopy(executable string, runner Runner, retries int, wait time.Duration) *Robocopy {
	if runner == nil {
		runner = ExecRunner{}
	}

	return &Robocopy{
		executable: executable,
		runner:     runner,
		retries:    retries,
		wait:       wait,
	}
}

// Copy copies src into dst recursively and returns the robocopy exit code.
// Extra files in dst are never removed.
func (r *Robocopy) Copy(ctx context.Context, src, dst string) (int, error) {
	_, exitCode, err := r.runner.Run(ctx, r.executable, r.args(src, dst)...)
	if err != nil {
		return -1, err
	}

	return exitCode, nil
}

func (r *Robocopy) args(src, dst string) []string {
	// /W takes whole seconds; a sub-second wait rounds up instead of disabling the pause.
	waitSeconds := int((r.wait + time.Second - 1) / time.Second)

	return []string{
		src,
		dst,
		"/E",
		"/B",
		"/COPY:DAT",
		"/DCOPY:DAT",
		"/XJ",
		"/R:" + strconv.Itoa(r.retries),
		"/W:" + strconv.Itoa(waitSeconds),
		"/NP",
		"/NFL",
		"/NDL",
	}
}
