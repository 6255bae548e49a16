package discovery

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestParseIdentifier covers canonical names, case folding and rejections.
func TestParseIdentifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr error
	}{
		{name: "windows naming", path: "windows10.0-kb4501835-x64_8bcd1ae2.msu", want: "KB4501835"},
		{name: "bare", path: "KB890830.msu", want: "KB890830"},
		{name: "mixed case", path: "Kb4489899.cab", want: "KB4489899"},
		{name: "repeated identifier", path: "kb4489899-KB4489899.msu", want: "KB4489899"},
		{name: "no identifier", path: "cumulative.msu", wantErr: ErrNoIdentifier},
		{name: "too short", path: "kb12345.msu", wantErr: ErrNoIdentifier},
		{name: "too long", path: "kb123456789.msu", wantErr: ErrNoIdentifier},
		{name: "glued to word", path: "sdkb4501835.msu", wantErr: ErrNoIdentifier},
		{name: "two identifiers", path: "kb4501835_kb4489899.msu", wantErr: ErrAmbiguousIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseIdentifier(tt.path)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
