package discovery

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/samber/lo"
)

var (
	// ErrNoIdentifier is returned when a package file name carries no KB identifier.
	ErrNoIdentifier = errors.New("no update identifier in file name")
	// ErrAmbiguousIdentifier is returned when a file name carries several distinct identifiers.
	ErrAmbiguousIdentifier = errors.New("ambiguous update identifier in file name")
)

// identifierToken matches a whole file name token such as kb4501835.
var identifierToken = regexp.MustCompile(`(?i)^kb(\d{6,8})$`)

// ParseIdentifier derives the canonical identifier (KB<digits>) from a package path.
func ParseIdentifier(packagePath string) (string, error) {
	base := filepath.Base(packagePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	tokens := strings.FieldsFunc(base, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	ids := lo.Uniq(lo.FilterMap(tokens, func(token string, _ int) (string, bool) {
		match := identifierToken.FindStringSubmatch(token)
		if match == nil {
			return "", false
		}

		return "KB" + match[1], true
	}))

	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNoIdentifier, base)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w: %s matches %s", ErrAmbiguousIdentifier, base, strings.Join(ids, ", "))
	}
}
