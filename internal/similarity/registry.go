package similarity

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sydlexius/crawler/internal/model"
)

// ErrUnsupportedKind is returned when no measure exists for a kind.
var ErrUnsupportedKind = errors.New("unsupported entity kind")

// Cutoffs overrides the per-kind cutoffs. Zero values keep the defaults.
type Cutoffs map[model.Kind]float64

// Registry hands out one measure per entity kind. Measures are built on
// first request and cached for the registry's lifetime.
type Registry struct {
	mu       sync.Mutex
	cutoffs  Cutoffs
	measures map[model.Kind]any
}

// NewRegistry returns an empty registry using cutoffs, which may be nil.
func NewRegistry(cutoffs Cutoffs) *Registry {
	return &Registry{cutoffs: cutoffs, measures: make(map[model.Kind]any)}
}

// Lookup returns the measure for kind, building it if needed.
func (r *Registry) Lookup(kind model.Kind) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.measures[kind]; ok {
		return m, nil
	}
	m, err := r.build(kind)
	if err != nil {
		return nil, err
	}
	r.measures[kind] = m
	return m, nil
}

func (r *Registry) build(kind model.Kind) (any, error) {
	cutoff := r.cutoffs[kind]
	switch kind {
	case model.KindTrack:
		return Measure[*model.Track](TrackMeasure{Cutoff: cutoff}), nil
	case model.KindArtist:
		return Measure[*model.Artist](ArtistMeasure{Cutoff: cutoff}), nil
	case model.KindAlbum:
		return Measure[*model.Album](AlbumMeasure{Cutoff: cutoff}), nil
	case model.KindGenre:
		return Measure[*model.Genre](GenreMeasure{Cutoff: cutoff}), nil
	case model.KindPlaylist:
		return Measure[*model.Playlist](PlaylistMeasure{Cutoff: cutoff}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
}

// For returns the typed measure for kind. Asking for a measure with a type
// that does not belong to kind is reported as ErrUnsupportedKind.
func For[T model.Entity](r *Registry, kind model.Kind) (Measure[T], error) {
	m, err := r.Lookup(kind)
	if err != nil {
		return nil, err
	}
	typed, ok := m.(Measure[T])
	if !ok {
		return nil, fmt.Errorf("%w: %q does not measure %T", ErrUnsupportedKind, kind, *new(T))
	}
	return typed, nil
}
