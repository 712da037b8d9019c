// Package stats turns a coding-stats payload into a card summary.
//
// The payload is the JSON body of a WakaTime-style "user stats" response.
// Only the fields a card needs are decoded:
//
//	{
//	  "data": {
//	    "username": "alice",
//	    "categories": [{"name": "Coding", "total_seconds": 45000.5}],
//	    "languages":  [{"name": "Go", "total_seconds": 30000.2}, ...]
//	  }
//	}
//
// An "error" field at the top level marks a failed lookup.
package stats

import (
	"encoding/json"
	"io"
	"math"

	"github.com/matzehuels/wakacard/pkg/card"
	"github.com/matzehuels/wakacard/pkg/errors"
)

// CodingCategory is the category whose total is the card's coding time.
const CodingCategory = "Coding"

// Payload is the stats response body.
type Payload struct {
	Data  Data   `json:"data"`
	Error string `json:"error,omitempty"`
}

// Data holds the per-user aggregates.
type Data struct {
	Username   string  `json:"username,omitempty"`
	Categories []Entry `json:"categories"`
	Languages  []Entry `json:"languages"`
}

// Entry is a named duration.
type Entry struct {
	Name         string  `json:"name"`
	TotalSeconds float64 `json:"total_seconds"`
}

// Decode reads a payload.
func Decode(r io.Reader) (*Payload, error) {
	var p Payload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidStats, err, "decode stats payload")
	}
	return &p, nil
}

// CodingSeconds returns the total of the Coding category, or 0.
func (d Data) CodingSeconds() float64 {
	for _, c := range d.Categories {
		if c.Name == CodingCategory {
			return c.TotalSeconds
		}
	}
	return 0
}

// Summarize builds the card summary for username. It fails with NO_DATA
// when there is no coding time or no language, and with INVALID_USERNAME
// when the payload reports a lookup error.
func Summarize(username string, p *Payload) (card.StatsSummary, error) {
	if p == nil {
		return card.StatsSummary{}, errors.New(errors.ErrCodeInvalidStats, "no stats payload")
	}
	if p.Error != "" {
		return card.StatsSummary{}, errors.New(errors.ErrCodeInvalidUsername, "check the username: %s", p.Error)
	}
	if username == "" {
		username = p.Data.Username
	}

	total := seconds(p.Data.CodingSeconds())
	if total == 0 {
		return card.StatsSummary{}, NoData(username)
	}

	langs := make([]card.LanguageStat, 0, len(p.Data.Languages))
	for _, l := range p.Data.Languages {
		langs = append(langs, card.LanguageStat{Name: l.Name, TotalSeconds: seconds(l.TotalSeconds)})
	}
	if len(langs) == 0 {
		return card.StatsSummary{}, NoData(username)
	}

	return card.NewSummary(username, total, langs)
}

// NoData is the error returned in place of a card for a user without data.
func NoData(username string) error {
	return errors.New(errors.ErrCodeNoData, "user %s has no usable coding data.", username)
}

// seconds truncates to whole seconds. Negative and non-finite values are kept
// negative so NewSummary rejects them.
func seconds(v float64) int64 {
	switch {
	case math.IsNaN(v), math.IsInf(v, 0):
		return -1
	case v >= math.MaxInt64:
		return math.MaxInt64
	}
	return int64(v)
}
