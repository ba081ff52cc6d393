// Package similarity scores how close a candidate entity is to a reference
// entity and selects the best candidate out of a lazy result sequence.
//
// Every measure returns a normalised distance: 0 is identical and anything
// at or above 1 is too far to be accepted. Each measure first computes a
// weighted dissimilarity in [0,1] from Jaro-Winkler string similarity and
// then divides it by its cutoff.
package similarity

import (
	"math"
	"strings"
	"time"

	"github.com/hbollon/go-edlib"

	"github.com/sydlexius/crawler/internal/model"
)

// Placeholder pairs a candidate with its distance to the reference.
type Placeholder[T any] struct {
	Candidate T
	Distance  float64
}

// Measure scores a candidate against a reference. Implementations must be
// pure so they can run concurrently.
type Measure[T any] interface {
	Measure(ref, cand T) Placeholder[T]
}

// Default cutoffs per kind.
const (
	TrackCutoff    = 0.35
	ArtistCutoff   = 0.25
	AlbumCutoff    = 0.35
	GenreCutoff    = 0.2
	PlaylistCutoff = 0.3

	// durationSpan is the duration difference treated as fully different.
	durationSpan = 30 * time.Second
	// typePenalty is added when a version track is compared with an
	// original one, so a matching version only wins when nothing else does.
	typePenalty = 0.2
)

// TrackMeasure weighs title 0.6, main artists 0.3 and duration 0.1.
type TrackMeasure struct{ Cutoff float64 }

// Measure implements Measure.
func (m TrackMeasure) Measure(ref, cand *model.Track) Placeholder[*model.Track] {
	d := 0.6*stringDistance(ref.Title, cand.Title) +
		0.3*artistsDistance(ref.MainArtists(), cand.MainArtists()) +
		0.1*durationDistance(ref.Duration, cand.Duration)
	if ref.Type != cand.Type {
		d += typePenalty
	}
	return Placeholder[*model.Track]{Candidate: cand, Distance: normalise(d, m.Cutoff, TrackCutoff)}
}

// ArtistMeasure compares names.
type ArtistMeasure struct{ Cutoff float64 }

// Measure implements Measure.
func (m ArtistMeasure) Measure(ref, cand *model.Artist) Placeholder[*model.Artist] {
	return Placeholder[*model.Artist]{
		Candidate: cand,
		Distance:  normalise(stringDistance(ref.Name, cand.Name), m.Cutoff, ArtistCutoff),
	}
}

// AlbumMeasure weighs title 0.7 and artists 0.3.
type AlbumMeasure struct{ Cutoff float64 }

// Measure implements Measure.
func (m AlbumMeasure) Measure(ref, cand *model.Album) Placeholder[*model.Album] {
	d := 0.7*stringDistance(ref.Title, cand.Title) + 0.3*artistsDistance(&ref.Artists, &cand.Artists)
	return Placeholder[*model.Album]{Candidate: cand, Distance: normalise(d, m.Cutoff, AlbumCutoff)}
}

// GenreMeasure compares names.
type GenreMeasure struct{ Cutoff float64 }

// Measure implements Measure.
func (m GenreMeasure) Measure(ref, cand *model.Genre) Placeholder[*model.Genre] {
	return Placeholder[*model.Genre]{
		Candidate: cand,
		Distance:  normalise(stringDistance(ref.Name, cand.Name), m.Cutoff, GenreCutoff),
	}
}

// PlaylistMeasure weighs name 0.8 and track count 0.2. It completes the set
// of measures; no source searches playlists, so the resolver never uses it.
type PlaylistMeasure struct{ Cutoff float64 }

// Measure implements Measure.
func (m PlaylistMeasure) Measure(ref, cand *model.Playlist) Placeholder[*model.Playlist] {
	d := 0.8*stringDistance(ref.Name, cand.Name) + 0.2*countDistance(len(ref.Tracks), len(cand.Tracks))
	return Placeholder[*model.Playlist]{Candidate: cand, Distance: normalise(d, m.Cutoff, PlaylistCutoff)}
}

func normalise(d, cutoff, fallback float64) float64 {
	if cutoff <= 0 {
		cutoff = fallback
	}
	return d / cutoff
}

// stringDistance is 1 minus the Jaro-Winkler similarity of the normalised
// strings. Two empty strings are identical; one empty string is maximally
// different.
func stringDistance(a, b string) float64 {
	a, b = fold(a), fold(b)
	if a == b {
		return 0
	}
	if a == "" || b == "" {
		return 1
	}
	sim, err := edlib.StringsSimilarity(a, b, edlib.JaroWinkler)
	if err != nil {
		return 1
	}
	return clamp(1 - float64(sim))
}

// artistsDistance averages, over the reference artists, the distance to the
// closest candidate artist. With no reference artists there is nothing to
// compare and the distance is 0.
func artistsDistance(ref, cand *model.CreditSet) float64 {
	if ref.Len() == 0 {
		return 0
	}
	if cand.Len() == 0 {
		return 1
	}
	candNames := cand.Names()
	total := 0.0
	for _, r := range ref.Names() {
		best := 1.0
		for _, c := range candNames {
			best = min(best, stringDistance(r, c))
		}
		total += best
	}
	return total / float64(ref.Len())
}

// durationDistance is 0 when either duration is unknown.
func durationDistance(a, b time.Duration) float64 {
	if a <= 0 || b <= 0 {
		return 0
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return clamp(float64(diff) / float64(durationSpan))
}

func countDistance(a, b int) float64 {
	if a == b {
		return 0
	}
	return math.Abs(float64(a-b)) / float64(max(a, b))
}

func fold(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
