package paper

import (
	"strings"
	"time"
)

// doiPrefixes are stripped from DOIs before comparison, longest first so
// that "https://dx.doi.org/" is not left as "dx.doi.org/".
var doiPrefixes = []string{
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"https://doi.org/",
	"http://doi.org/",
	"doi:",
}

// MinYear is the earliest publication year accepted as plausible.
const MinYear = 1900

// NormalizeDOI canonicalizes a DOI: protocol/resolver prefixes stripped,
// lower-cased, surrounding whitespace trimmed. Returns "" for empty input.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	if doi == "" {
		return ""
	}
	lower := strings.ToLower(doi)
	for _, prefix := range doiPrefixes {
		if strings.HasPrefix(lower, prefix) {
			lower = lower[len(prefix):]
			break
		}
	}
	return strings.TrimSpace(lower)
}

// NormalizeTitle returns the comparison form of a title: trimmed and
// lower-cased. Punctuation and inner whitespace are kept as-is, so titles
// only match when they are literally equal ignoring case.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// TitlesEqual reports whether two titles are equal ignoring case.
func TitlesEqual(a, b string) bool {
	return NormalizeTitle(a) != "" && NormalizeTitle(a) == NormalizeTitle(b)
}

// PlausibleYear reports whether y is a four-digit publication year between
// MinYear and next year.
func PlausibleYear(y int) bool {
	return y >= MinYear && y <= time.Now().Year()+1
}
