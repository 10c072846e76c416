// Package rules implements the rule-based classification and lifecycle
// engine: pattern extraction, matching, confidence and priority scoring,
// the candidate/active/quarantined lifecycle, and capacity enforcement.
package rules

import (
	"regexp"
	"strings"
)

// Normalization strips transaction-reference noise from descriptions.
// The light form is used at match time and only removes unambiguous noise
// so merchant tokens survive. The aggressive form is used only when
// extracting a new pattern; matching with it would over-match.
var (
	longDigitRunRe = regexp.MustCompile(`\d{14,}`)
	fullDateRe     = regexp.MustCompile(`\b\d{2}[-/]\d{2}[-/]\d{4}\b`)
	whitespaceRe   = regexp.MustCompile(`\s+`)

	refCodeRe   = regexp.MustCompile(`\b[a-z0-9]*\d[a-z0-9]*\b`)
	bigNumberRe = regexp.MustCompile(`\b\d{10,}\b`)
	shortDateRe = regexp.MustCompile(`\b\d{1,2}[-/]\d{1,2}\b`)
	refPhraseRe = regexp.MustCompile(`\b(?:upi ref no|ref\s*:?|txn id)\b`)
	punctRe     = regexp.MustCompile(`[^\w\s]`)
)

// NormalizeLight lowercases, strips long digit runs and full dates, and
// collapses whitespace. Safe for matching.
func NormalizeLight(s string) string {
	s = strings.ToLower(s)
	s = longDigitRunRe.ReplaceAllString(s, " ")
	s = fullDateRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeAggressive additionally strips reference codes, long numbers,
// short dates, payment-reference phrases and punctuation. Extraction only.
func NormalizeAggressive(s string) string {
	s = NormalizeLight(s)
	s = refPhraseRe.ReplaceAllString(s, " ")
	s = bigNumberRe.ReplaceAllString(s, " ")
	s = shortDateRe.ReplaceAllString(s, " ")
	s = stripRefCodes(s)
	s = punctRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// stripRefCodes drops alphanumeric tokens of 12+ characters that carry at
// least one digit. Pure merchant names never look like that; bank
// reference codes almost always do.
func stripRefCodes(s string) string {
	return refCodeRe.ReplaceAllStringFunc(s, func(tok string) string {
		if len(tok) >= 12 {
			return " "
		}
		return tok
	})
}
