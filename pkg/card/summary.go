package card

import (
	"cmp"
	"slices"

	"github.com/matzehuels/wakacard/pkg/errors"
)

// MaxLanguages is the number of bars a card can show.
const MaxLanguages = 5

// LanguageStat is the time spent in one language.
type LanguageStat struct {
	Name         string `json:"name"`
	TotalSeconds int64  `json:"total_seconds"`
}

// StatsSummary is everything the card needs to know about a user.
//
// Summaries built with [NewSummary] are already ordered and capped; the
// renderer applies the same normalization to literal values.
type StatsSummary struct {
	Username           string         `json:"username"`
	TotalCodingSeconds int64          `json:"total_coding_seconds"`
	Languages          []LanguageStat `json:"languages"`
}

// NewSummary validates and normalizes a summary. Negative seconds are
// rejected. Languages are copied, sorted by descending seconds with ties in
// input order, and truncated to MaxLanguages.
func NewSummary(username string, totalSeconds int64, langs []LanguageStat) (StatsSummary, error) {
	if totalSeconds < 0 {
		return StatsSummary{}, errors.New(errors.ErrCodeInvalidStats, "total coding seconds is negative: %d", totalSeconds)
	}
	for _, l := range langs {
		if l.TotalSeconds < 0 {
			return StatsSummary{}, errors.New(errors.ErrCodeInvalidStats, "language %q has negative seconds: %d", l.Name, l.TotalSeconds)
		}
	}
	return StatsSummary{
		Username:           username,
		TotalCodingSeconds: totalSeconds,
		Languages:          topLanguages(langs),
	}, nil
}

// Top returns the languages the card draws, in row order.
func (s StatsSummary) Top() []LanguageStat {
	return topLanguages(s.Languages)
}

func topLanguages(langs []LanguageStat) []LanguageStat {
	out := slices.Clone(langs)
	slices.SortStableFunc(out, func(a, b LanguageStat) int {
		return cmp.Compare(b.TotalSeconds, a.TotalSeconds)
	})
	if len(out) > MaxLanguages {
		out = out[:MaxLanguages]
	}
	return out
}
