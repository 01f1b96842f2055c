package forum

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// pricePattern matches a dollar sign next to digits in either order, e.g. "$300" or "300 $".
var pricePattern = regexp.MustCompile(`(\$\s*\d+|\d+\s*\$)`)

// freeKeywords mark a listing as free, which counts as a price.
var freeKeywords = []string{"for free", "freebie", "free", "0 dollars", "$0", "0$", "no charge", "no cost"}

// HasPrice reports whether text states a price or that the item is free.
func HasPrice(text string) bool {
	if pricePattern.MatchString(text) {
		return true
	}

	folded := cases.Fold().String(text)
	for _, keyword := range freeKeywords {
		if strings.Contains(folded, keyword) {
			return true
		}
	}

	return false
}

// wordStart and wordEnd replace \b, which only knows ASCII word characters.
// They consume the delimiter, so the patterns are only good for MatchString.
const (
	wordStart = `(?:^|[^\p{L}\p{N}_])`
	wordEnd   = `(?:$|[^\p{L}\p{N}_])`
)

// LocationMatcher finds configured location names as whole words.
// It is safe for concurrent use.
type LocationMatcher struct {
	patterns []*regexp.Regexp
}

// NewLocationMatcher compiles one whole-word pattern per location.
// Names are matched literally, so regex metacharacters in them are quoted.
func NewLocationMatcher(locations []string) *LocationMatcher {
	fold := cases.Fold()
	patterns := make([]*regexp.Regexp, 0, len(locations))

	for _, location := range locations {
		location = strings.TrimSpace(location)
		if location == "" {
			continue
		}

		quoted := regexp.QuoteMeta(fold.String(location))
		patterns = append(patterns, regexp.MustCompile(wordStart+quoted+wordEnd))
	}

	return &LocationMatcher{patterns: patterns}
}

// Len returns the number of usable locations.
func (m *LocationMatcher) Len() int {
	return len(m.patterns)
}

// Match reports whether text contains any location as a whole word.
func (m *LocationMatcher) Match(text string) bool {
	if len(m.patterns) == 0 || text == "" {
		return false
	}

	folded := cases.Fold().String(text)
	for _, pattern := range m.patterns {
		if pattern.MatchString(folded) {
			return true
		}
	}

	return false
}

// Classification is the result of checking a post for required information.
type Classification struct {
	PriceFound    bool
	LocationFound bool
}

// Complete reports whether nothing is missing.
func (c Classification) Complete() bool {
	return c.PriceFound && c.LocationFound
}

// Classify checks every text and ORs each signal independently.
func Classify(matcher *LocationMatcher, texts ...string) Classification {
	var result Classification

	for _, text := range texts {
		if !result.PriceFound && HasPrice(text) {
			result.PriceFound = true
		}

		if !result.LocationFound && matcher.Match(text) {
			result.LocationFound = true
		}
	}

	return result
}
