package corpus

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/reviewlens/reviewlens/internal/query"
	"github.com/reviewlens/reviewlens/internal/scraper"
)

// Config tunes the relevance gate and the size budget.
type Config struct {
	// TotalChars is the whole-corpus budget in code points.
	TotalChars int
	// MinPageChars rejects pages shorter than this as noise.
	MinPageChars int
	// RequireOverlap additionally demands that a share of the product-name
	// tokens appear in the page text. Precision/recall trade-off for
	// ambiguous product names; off by default.
	RequireOverlap bool
	// OverlapRatio is the required share of tokens when RequireOverlap is
	// set.
	OverlapRatio float64
}

func (c Config) withDefaults() Config {
	if c.TotalChars <= 0 {
		c.TotalChars = 15000
	}
	if c.MinPageChars <= 0 {
		c.MinPageChars = 64
	}
	if c.OverlapRatio <= 0 || c.OverlapRatio > 1 {
		c.OverlapRatio = 0.7
	}
	return c
}

// Corpus is the bounded, concatenated plain-text evidence for one analysis
// request. Immutable after Build.
type Corpus struct {
	Text    string
	Sources []string // URLs of the pages that made it in, in order
}

// Empty reports whether no page survived the relevance gate.
func (c Corpus) Empty() bool { return c.Text == "" }

// Build concatenates accepted page texts in the given order under the total
// budget. Each accepted page gets a source marker; a page whose text would
// overflow the remaining budget is truncated to fit, and everything after
// the budget is exhausted is silently dropped.
func Build(pages []scraper.Page, q query.Query, cfg Config) Corpus {
	cfg = cfg.withDefaults()
	tokens := q.Tokens()

	var b strings.Builder
	var sources []string
	remaining := cfg.TotalChars

	for _, p := range pages {
		if remaining <= 0 {
			break
		}
		if !accept(p, tokens, cfg) {
			continue
		}

		marker := fmt.Sprintf("[Source %d] ", len(sources)+1)
		text := p.Text
		avail := remaining - utf8.RuneCountInString(marker)
		if avail <= 0 {
			break
		}
		if utf8.RuneCountInString(text) > avail {
			text = truncateRunes(text, avail)
		}

		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(marker)
		b.WriteString(text)
		sources = append(sources, p.URL)
		remaining -= utf8.RuneCountInString(marker) + utf8.RuneCountInString(text)
	}

	return Corpus{Text: b.String(), Sources: sources}
}

// accept applies the noise and relevance gates to one page.
func accept(p scraper.Page, tokens []string, cfg Config) bool {
	if !p.OK {
		return false
	}
	if utf8.RuneCountInString(p.Text) < cfg.MinPageChars {
		return false
	}
	if cfg.RequireOverlap && len(tokens) > 0 {
		lower := strings.ToLower(p.Text)
		hits := 0
		for _, tok := range tokens {
			if strings.Contains(lower, tok) {
				hits++
			}
		}
		if float64(hits)/float64(len(tokens)) < cfg.OverlapRatio {
			return false
		}
	}
	return true
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
