package catalog

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DisplayName trims surrounding space and NFC-normalizes name. The first
// submitter's spelling is what every owner sees.
func DisplayName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// Key is the identity of a food name: NFC-normalized, Unicode case-folded
// and with inner whitespace runs collapsed. "Rice", "rice" and " RICE "
// share one key.
func Key(name string) string {
	// A Caser carries state, so each call gets its own.
	folded := cases.Fold().String(norm.NFC.String(name))
	return strings.Join(strings.Fields(folded), " ")
}
