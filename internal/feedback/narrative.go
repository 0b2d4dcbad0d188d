package feedback

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// hashNarrative computes the narrative hash per spec §4.6: NFKC-normalize,
// collapse whitespace to single spaces, trim, lowercase only for English
// locales, then hex(SHA-256("locale:<locale|unknown>:" + normalized)).
// The raw narrative is never persisted — only this hash.
func hashNarrative(locale *string, narrative string) string {
	loc := "unknown"
	if locale != nil && *locale != "" {
		loc = *locale
	}

	normalized := norm.NFKC.String(narrative)
	normalized = strings.Join(strings.Fields(normalized), " ")
	normalized = strings.TrimSpace(normalized)
	if isEnglishLocale(loc) {
		normalized = strings.ToLower(normalized)
	}

	sum := sha256.Sum256([]byte("locale:" + loc + ":" + normalized))
	return hex.EncodeToString(sum[:])
}

func isEnglishLocale(locale string) bool {
	lower := strings.ToLower(locale)
	return lower == "en" || strings.HasPrefix(lower, "en-") || strings.HasPrefix(lower, "en_")
}
