package aggregator

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

const maxKeyTerms = 8

// Signature identifies a recurring error. Two raw errors belong to the same
// pattern iff their signatures are equal. Equality depends only on the
// error's identity fields and its normalized message text, never on
// timestamps, request IDs, or memory addresses.
type Signature struct {
	ErrorType   string   `json:"error_type"`
	Module      string   `json:"module"`
	Function    string   `json:"function"`
	PatternHash string   `json:"pattern_hash"`
	KeyTerms    []string `json:"key_terms,omitempty"`
}

// SameIdentity reports whether two signatures share the same error identity,
// ignoring the message-derived hash. Trend analysis matches on identity so
// that message-text drift does not split a pattern's history.
func (s Signature) SameIdentity(other Signature) bool {
	return s.ErrorType == other.ErrorType &&
		s.Module == other.Module &&
		s.Function == other.Function
}

var (
	hexRunRe = regexp.MustCompile(`0x[0-9a-fA-F]+|[0-9a-fA-F]{8,}`)
	digitsRe = regexp.MustCompile(`\d+`)
	tokenRe  = regexp.MustCompile(`[a-z][a-z0-9_]{2,}`)
)

// stopwords are common message words that carry no identity.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "error": {},
	"failed": {}, "failure": {}, "while": {}, "after": {}, "during": {},
	"was": {}, "not": {}, "has": {}, "had": {}, "when": {}, "got": {},
}

// normalizeMessage collapses volatile message content (addresses, IDs,
// numbers) so that messages differing only in those group together.
func normalizeMessage(msg string) string {
	msg = strings.ToLower(msg)
	msg = hexRunRe.ReplaceAllString(msg, "<hex>")
	msg = digitsRe.ReplaceAllString(msg, "<n>")
	return strings.Join(strings.Fields(msg), " ")
}

// extractKeyTerms pulls the distinctive lowercase tokens out of a normalized
// message, capped at maxKeyTerms.
func extractKeyTerms(normalized string) []string {
	tokens := tokenRe.FindAllString(normalized, -1)
	seen := make(map[string]struct{}, len(tokens))
	var terms []string
	for _, tok := range tokens {
		if _, skip := stopwords[tok]; skip {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		terms = append(terms, tok)
		if len(terms) >= maxKeyTerms {
			break
		}
	}
	return terms
}

// NewSignature derives the identity signature for an event.
func NewSignature(ev ErrorEvent) Signature {
	normalized := normalizeMessage(ev.Message)

	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%s", ev.ErrorType, ev.Module, ev.Function, normalized)

	return Signature{
		ErrorType:   ev.ErrorType,
		Module:      ev.Module,
		Function:    ev.Function,
		PatternHash: fmt.Sprintf("%016x", h.Sum64()),
		KeyTerms:    extractKeyTerms(normalized),
	}
}
