// Package match picks the best string out of a small candidate set using a
// case-insensitive Levenshtein distance bounded by a threshold.
package match

import (
	"context"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"
	"golang.org/x/sync/errgroup"

	"github.com/sydlexius/crawler/internal/model"
)

// ErrNoCandidate is returned by the mandatory-match variants when nothing is
// left to choose from.
var ErrNoCandidate = errors.New("no candidate left")

// DefaultThreshold is the acceptance threshold used when none is configured.
const DefaultThreshold = 10

// DefaultSuspicious lists placeholder names that mark a candidate as
// untrustworthy. Candidates containing any of them as a whole word are never
// selected.
var DefaultSuspicious = []string{
	"[unknown]",
	"unknown artist",
	"various artists",
	"n/a",
	"tba",
	"??",
}

// Matcher selects the closest candidate to a reference string.
type Matcher struct {
	// Threshold is exclusive: a candidate qualifies when its distance is
	// strictly below it.
	Threshold int
	// Suspicious placeholders, matched as whole words in lower-cased
	// candidates.
	Suspicious []string
	// Workers bounds concurrent scoring. Values below 2 score inline.
	Workers int
}

// New returns a Matcher with the given threshold and the default suspicious
// list. A non-positive threshold falls back to DefaultThreshold.
func New(threshold int) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{Threshold: threshold, Suspicious: DefaultSuspicious}
}

// BestMatch returns the lower-cased candidate closest to reference, or false
// when candidates is empty or nothing is within the threshold. Ties go to the
// candidate seen first.
func (m *Matcher) BestMatch(candidates []string, reference string) (string, bool) {
	i := m.bestIndex(candidates, reference)
	if i < 0 {
		return "", false
	}
	return strings.ToLower(candidates[i]), true
}

// MustBestMatch is BestMatch for call sites that require a result. It
// returns ErrNoCandidate instead of false.
func (m *Matcher) MustBestMatch(candidates []string, reference string) (string, error) {
	best, ok := m.BestMatch(candidates, reference)
	if !ok {
		return "", ErrNoCandidate
	}
	return best, nil
}

// BestArtist returns the artist whose name best matches reference. Artists
// sharing a name are collapsed to the first one.
func (m *Matcher) BestArtist(artists []*model.Artist, reference string) (*model.Artist, bool) {
	set := model.NewCreditSet(artists...)
	unique := set.Artists()
	i := m.bestIndex(set.Names(), reference)
	if i < 0 {
		return nil, false
	}
	return unique[i], true
}

// MustBestArtist is BestArtist returning ErrNoCandidate when nothing matches.
func (m *Matcher) MustBestArtist(artists []*model.Artist, reference string) (*model.Artist, error) {
	a, ok := m.BestArtist(artists, reference)
	if !ok {
		return nil, ErrNoCandidate
	}
	return a, nil
}

// Distance is the case-insensitive Levenshtein distance between a and b.
func Distance(a, b string) int {
	return edlib.LevenshteinDistance(strings.ToLower(a), strings.ToLower(b))
}

func (m *Matcher) suspicious(lower string) bool {
	for _, s := range m.Suspicious {
		if s != "" && containsWord(lower, s) {
			return true
		}
	}
	return false
}

// containsWord reports whether word occurs in s without a letter or digit
// directly before or after it.
func containsWord(s, word string) bool {
	for from := 0; from < len(s); {
		i := strings.Index(s[from:], word)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(word)
		before, _ := utf8.DecodeLastRuneInString(s[:start])
		after, _ := utf8.DecodeRuneInString(s[end:])
		if !isWordRune(before) && !isWordRune(after) {
			return true
		}
		_, size := utf8.DecodeRuneInString(s[start:])
		from = start + size
	}
	return false
}

func isWordRune(r rune) bool {
	return r != utf8.RuneError && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

// bestIndex scores every candidate and returns the index of the winner or -1.
// Scores land in a slice indexed by position, so the reduction does not
// depend on the order in which workers finish.
func (m *Matcher) bestIndex(candidates []string, reference string) int {
	if len(candidates) == 0 {
		return -1
	}
	ref := strings.ToLower(reference)
	dist := make([]int, len(candidates))
	score := func(i int) {
		c := strings.ToLower(candidates[i])
		if m.suspicious(c) {
			dist[i] = -1
			return
		}
		dist[i] = edlib.LevenshteinDistance(ref, c)
	}

	if m.Workers > 1 && len(candidates) > 1 {
		g, _ := errgroup.WithContext(context.Background())
		g.SetLimit(m.Workers)
		for i := range candidates {
			g.Go(func() error {
				score(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range candidates {
			score(i)
		}
	}

	best := -1
	for i, d := range dist {
		if d < 0 || d >= m.Threshold {
			continue
		}
		if best < 0 || d < dist[best] {
			best = i
		}
	}
	return best
}
