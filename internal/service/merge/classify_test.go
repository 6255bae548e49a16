package merge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestClassify checks every boundary of the exit code mapping.
func TestClassify(t *testing.T) {
	t.Parallel()

	cases := map[int]Outcome{
		-1: Failure,
		0:  Success,
		1:  Success,
		2:  Success,
		3:  Success,
		4:  Failure,
		5:  Success,
		6:  SuccessWithWarning,
		7:  SuccessWithWarning,
		8:  Failure,
		9:  Failure,
		15: Failure,
		16: Failure,
		42: Failure,
	}

	for code, want := range cases {
		result := Classify(code)
		require.Equal(t, want, result.Outcome, "exit code %d", code)
		require.Equal(t, code, result.ExitCode)
		require.NotEmpty(t, result.Reason)
		require.Equal(t, want == Failure, result.Failed())
	}
}

// TestOutcomeString verifies log names of outcomes.
func TestOutcomeString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "success", Success.String())
	require.Equal(t, "success-with-warning", SuccessWithWarning.String())
	require.Equal(t, "failure", Failure.String())
	require.Equal(t, "outcome(9)", Outcome(9).String())
}
