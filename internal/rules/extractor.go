package rules

import (
	"strings"

	"github.com/pkamalssn/rupi-sub000/internal/model"
)

// stopWords are payment-rail jargon and generic banking tokens that carry
// no merchant signal and must never become part of a learned pattern.
var stopWords = map[string]bool{
	"upi": true, "imps": true, "neft": true, "rtgs": true,
	"ach": true, "nach": true, "atm": true, "pos": true,
	"the": true, "and": true, "for": true, "from": true, "via": true,
	"with": true, "into": true,
	"debit": true, "credit": true, "transfer": true, "payment": true,
	"paid": true, "purchase": true, "withdrawal": true, "deposit": true,
	"ref": true, "txn": true, "transaction": true, "chg": true,
	"charge": true, "charges": true, "bank": true, "account": true,
	"card": true, "info": true,
}

const (
	minPatternLength = 3
	maxPatternTokens = 3
)

// ExtractPattern derives a short canonical pattern from a raw description.
// It returns "" when the description yields no usable tokens.
func ExtractPattern(description string) string {
	normalized := NormalizeAggressive(description)
	if normalized == "" {
		return ""
	}

	tokens := strings.Fields(normalized)
	kept := make([]string, 0, maxPatternTokens)
	for _, tok := range tokens {
		if len(tok) < 3 || stopWords[tok] {
			continue
		}
		kept = append(kept, tok)
		if len(kept) == maxPatternTokens {
			break
		}
	}

	pattern := strings.Join(kept, " ")
	if len(pattern) < 4 {
		// Nothing meaningful survived filtering; fall back to the raw
		// normalized tokens so we never learn an empty pattern.
		end := len(tokens)
		if end > maxPatternTokens {
			end = maxPatternTokens
		}
		pattern = strings.Join(tokens[:end], " ")
	}

	if len(pattern) < minPatternLength {
		return ""
	}
	return pattern
}

// DeriveMatchType picks the matching semantics for an extracted pattern.
// Very short patterns must match exactly, purely alphabetic patterns are
// stable enough for prefix matching, everything else falls back to
// substring containment.
func DeriveMatchType(pattern string) model.MatchType {
	if len(pattern) <= 4 {
		return model.MatchExact
	}
	if len(pattern) >= 5 && isAlphabetic(pattern) {
		return model.MatchStartsWith
	}
	return model.MatchContains
}

// DetectRegexType distinguishes anchored regex patterns from plain ones.
// Patterns carrying \b, ^ or $ are treated as anchored.
func DetectRegexType(pattern string) model.MatchType {
	if strings.Contains(pattern, `\b`) || strings.Contains(pattern, "^") || strings.Contains(pattern, "$") {
		return model.MatchRegexAnchored
	}
	return model.MatchRegex
}

func isAlphabetic(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && r != ' ' {
			return false
		}
	}
	return true
}
