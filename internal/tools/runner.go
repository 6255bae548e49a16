package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/oshokin/wrs-builder/internal/logger"
)

// maxOutputTail is how much trailing tool output is kept in error messages.
const maxOutputTail = 512

// Runner executes an external command and reports its exit code.
// A non-nil error means the command could not be run at all.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (output []byte, exitCode int, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args and returns the combined output and exit code.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, int, error) {
	logger.DebugKV(ctx, "Running tool", "command", name, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, name, args...)

	var output bytes.Buffer

	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	if err == nil {
		return output.Bytes(), 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		logger.DebugKV(ctx, "Tool exited", "command", name, "exit_code", exitErr.ExitCode())

		return output.Bytes(), exitErr.ExitCode(), nil
	}

	return output.Bytes(), -1, fmt.Errorf("run %s: %w", name, err)
}

// ToolError describes a tool invocation that finished with a failing exit code.
type ToolError struct {
	// Tool is the executable name.
	Tool string
	// Operation is the action that was attempted.
	Operation string
	// ExitCode is the process exit code.
	ExitCode int
	// Output is the tail of the combined output.
	Output string
}

func (e *ToolError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s %s failed with exit code %d", e.Tool, e.Operation, e.ExitCode)
	}

	return fmt.Sprintf("%s %s failed with exit code %d: %s", e.Tool, e.Operation, e.ExitCode, e.Output)
}

func newToolError(tool, operation string, exitCode int, output []byte) *ToolError {
	return &ToolError{
		Tool:      tool,
		Operation: operation,
		ExitCode:  exitCode,
		Output:    tail(output),
	}
}

func tail(output []byte) string {
	trimmed := strings.TrimSpace(string(output))
	if len(trimmed) > maxOutputTail {
		trimmed = "..." + trimmed[len(trimmed)-maxOutputTail:]
	}

	return trimmed
}
