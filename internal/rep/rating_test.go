package rep_test

import (
	"testing"

	"github.com/robalyx/repbot/internal/rep"
	"github.com/stretchr/testify/assert"
)

func TestParseRating(t *testing.T) {
	t.Parallel()

	tests := []struct {
		content string
		want    rep.Rating
	}{
		{content: "<@900> <@101> 10/10", want: rep.RatingPositive},
		{content: "smooth deal, LEGIT", want: rep.RatingPositive},
		{content: "+1 fast shipping", want: rep.RatingPositive},
		{content: "total scammer", want: rep.RatingNegative},
		{content: "3/10 would not buy again", want: rep.RatingNegative},
		{content: "-1", want: rep.RatingNegative},
		{content: "good but had a problem", want: rep.RatingPositive},
		{content: "0/10", want: rep.RatingNegative},
		{content: "thanks for the couch", want: rep.RatingNone},
		{content: "", want: rep.RatingNone},
	}

	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, rep.ParseRating(tt.content))
		})
	}
}

func TestRatingFormatting(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(1), rep.RatingPositive.Delta())
	assert.Equal(t, int64(-1), rep.RatingNegative.Delta())
	assert.Equal(t, "+1", rep.RatingPositive.Sign())
	assert.Equal(t, "-1", rep.RatingNegative.Sign())
	assert.True(t, rep.HasRatingPhrase("awesome"))
	assert.False(t, rep.HasRatingPhrase("hello"))
}
