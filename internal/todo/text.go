package todo

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeText trims s and puts it in NFC so visually equal titles compare equal.
func NormalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// ContainsFold reports whether substr occurs in s under Unicode case folding.
func ContainsFold(s, substr string) bool {
	// Casers keep state, so each call gets its own.
	fold := cases.Fold()
	return strings.Contains(fold.String(NormalizeText(s)), fold.String(NormalizeText(substr)))
}
