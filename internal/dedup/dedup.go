// Package dedup suppresses repeat identifications of the same song.
package dedup

import (
	"strings"
	"time"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/tphakala/trackid-go/internal/track"
)

const DefaultWindow = 2 * time.Hour

// Filter decides whether a candidate repeats a recent history entry.
type Filter struct {
	window     time.Duration
	similarity float64
	metric     strutil.StringMetric
}

// New creates a filter. similarity >= 1 (or <= 0) requires an exact
// case-insensitive match on title and artist; lower values accept
// Levenshtein similarity at or above the threshold.
func New(window time.Duration, similarity float64) *Filter {
	if window <= 0 {
		window = DefaultWindow
	}
	if similarity <= 0 || similarity > 1 {
		similarity = 1
	}
	f := &Filter{window: window, similarity: similarity}
	if similarity < 1 {
		lev := metrics.NewLevenshtein()
		lev.CaseSensitive = false
		f.metric = lev
	}
	return f
}

func (f *Filter) Window() time.Duration { return f.window }

// IsDuplicate reports whether candidate repeats an entry of history.
func (f *Filter) IsDuplicate(candidate track.Track, history []track.Track) bool {
	_, ok := f.Match(candidate, history)
	return ok
}

// Match returns the history entry candidate duplicates, if any. An entry
// matches when title and artist are equal and the timestamps are less than
// the window apart.
func (f *Filter) Match(candidate track.Track, history []track.Track) (track.Track, bool) {
	for _, h := range history {
		if absDuration(candidate.Timestamp.Sub(h.Timestamp)) >= f.window {
			continue
		}
		if f.same(candidate.Title, h.Title) && f.same(candidate.Artist, h.Artist) {
			return h, true
		}
	}
	return track.Track{}, false
}

func (f *Filter) same(a, b string) bool {
	a, b = normalize(a), normalize(b)
	if a == b {
		return true
	}
	if f.metric == nil {
		return false
	}
	return strutil.Similarity(a, b, f.metric) >= f.similarity
}

// normalize trims, composes and case folds s so that canonically
// equivalent spellings compare equal.
func normalize(s string) string {
	// Casers keep state and must not be shared between goroutines
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
