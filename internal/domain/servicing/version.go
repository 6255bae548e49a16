package servicing

import (
	"errors"
	"fmt"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// ErrInvalidVersion is returned when a version string is not a dot-separated list of numbers.
var ErrInvalidVersion = errors.New("invalid version")

// Version is a declared servicing version such as 10.0.17763.292.
// Components are compared numerically, so 10.0 sorts after 9.0.
type Version struct {
	parsed *goversion.Version
	// components is the number of declared components; go-version pads to three.
	components int
}

// ParseVersion parses a dot-separated ordinal version. Prefixes, prerelease
// and build metadata are not part of Windows servicing versions and are rejected.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, fmt.Errorf("%w: empty string", ErrInvalidVersion)
	}

	if strings.HasPrefix(s, "v") || strings.HasPrefix(s, "V") {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}

	parsed, err := goversion.NewVersion(s)
	if err != nil {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}

	if parsed.Prerelease() != "" || parsed.Metadata() != "" {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}

	return Version{parsed: parsed, components: strings.Count(s, ".") + 1}, nil
}

// MustParseVersion is like ParseVersion but panics on error. Intended for constants and tests.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}

	return v
}

// String returns the version as it was declared.
func (v Version) String() string {
	if v.parsed == nil {
		return ""
	}

	return v.parsed.Original()
}

// IsZero reports whether the version was never set.
func (v Version) IsZero() bool {
	return v.parsed == nil
}

// Compare returns -1, 0 or +1 comparing v with other component by component.
// Missing trailing components count as zero; when all components are equal
// the version with fewer components sorts first so that the order is total.
// An unset version sorts before every set one.
func (v Version) Compare(other Version) int {
	switch {
	case v.IsZero() && other.IsZero():
		return 0
	case v.IsZero():
		return -1
	case other.IsZero():
		return 1
	}

	if c := v.parsed.Compare(other.parsed); c != 0 {
		return c
	}

	switch {
	case v.components < other.components:
		return -1
	case v.components > other.components:
		return 1
	default:
		return 0
	}
}

// Less reports whether v sorts before other.
func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}
