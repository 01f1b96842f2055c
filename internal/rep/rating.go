package rep

import (
	"strings"

	"golang.org/x/text/cases"
)

// Rating is the score change a rating message asks for.
type Rating int

const (
	// RatingNone means no rating phrase was found.
	RatingNone Rating = 0
	// RatingPositive adds one point.
	RatingPositive Rating = 1
	// RatingNegative removes one point.
	RatingNegative Rating = -1
)

// Delta returns the change to apply to a total.
func (r Rating) Delta() int64 {
	return int64(r)
}

// Sign formats the rating the way it appears in replies.
func (r Rating) Sign() string {
	if r < 0 {
		return "-1"
	}

	return "+1"
}

var (
	positivePhrases = []string{
		"10/10", "9/10", "8/10", "7/10", "6/10",
		"good", "great", "awesome", "legit", "smooth", "positive", "+1",
	}
	negativePhrases = []string{
		"0/10", "1/10", "2/10", "3/10", "4/10", "5/10",
		"scam", "scammer", "bad", "negative", "problem", "-1",
	}
)

// ParseRating finds a rating phrase in content. Positive phrases win when both kinds appear,
// so "10/10" is positive even though it contains "0/10".
func ParseRating(content string) Rating {
	folded := cases.Fold().String(content)

	switch {
	case containsAny(folded, positivePhrases):
		return RatingPositive
	case containsAny(folded, negativePhrases):
		return RatingNegative
	default:
		return RatingNone
	}
}

// HasRatingPhrase reports whether content contains any rating phrase.
func HasRatingPhrase(content string) bool {
	return ParseRating(content) != RatingNone
}

func containsAny(text string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}

	return false
}
