package query

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxLen is the maximum accepted product-name length in code points.
const MaxLen = 100

// ErrInvalid is wrapped by all validation failures so callers can test for
// the class without matching message text.
var ErrInvalid = errors.New("invalid product name")

// denylist holds substrings that are never legitimate in a product name and
// usually indicate an injection probe. Matching is case-insensitive.
var denylist = []string{
	"<script",
	"</script",
	"javascript:",
	"data:text/html",
	"onerror=",
	"onload=",
	"--",
	";",
	"<",
	">",
	"{",
	"}",
}

// Query is a validated analysis request. Key is the normalized form used for
// cache and rate-limit bucketing. Validation happens once at ingress; the
// pipeline trusts a Query it is handed.
type Query struct {
	Product string
	Key     string
}

// New validates and normalizes a raw product name. The zero Query and a
// wrapped ErrInvalid are returned on any violation.
func New(raw string) (Query, error) {
	product := strings.TrimSpace(raw)
	if product == "" {
		return Query{}, fmt.Errorf("%w: empty", ErrInvalid)
	}
	if utf8.RuneCountInString(product) > MaxLen {
		return Query{}, fmt.Errorf("%w: longer than %d characters", ErrInvalid, MaxLen)
	}
	for _, r := range product {
		if unicode.IsControl(r) {
			return Query{}, fmt.Errorf("%w: control character", ErrInvalid)
		}
	}
	lower := strings.ToLower(product)
	for _, bad := range denylist {
		if strings.Contains(lower, bad) {
			return Query{}, fmt.Errorf("%w: disallowed sequence %q", ErrInvalid, bad)
		}
	}
	return Query{Product: product, Key: lower}, nil
}

// Tokens splits the normalized key into lowercase words, used by the corpus
// relevance gate.
func (q Query) Tokens() []string {
	return strings.Fields(q.Key)
}
