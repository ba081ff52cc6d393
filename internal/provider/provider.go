package provider

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/sydlexius/crawler/internal/model"
)

// AccessTier classifies a provider's access model.
type AccessTier string

// Access tier constants for classifying a provider's access model.
const (
	TierFree    AccessTier = "free"     // No key, no limit known
	TierFreeKey AccessTier = "free_key" // Free account/sign-up required
)

// ProviderCapability describes a provider's access model, its documented
// request rate and the entity kinds it can search.
type ProviderCapability struct {
	Tier              AccessTier   `json:"tier"`
	HelpURL           string       `json:"help_url,omitempty"`
	RequestsPerSecond float64      `json:"requests_per_second"`
	Kinds             []model.Kind `json:"kinds"`
}

// ProviderCapabilities returns the known capability metadata for each provider.
func ProviderCapabilities() map[ProviderName]ProviderCapability {
	return map[ProviderName]ProviderCapability{
		NameSpotify: {
			Tier:              TierFreeKey,
			HelpURL:           "https://developer.spotify.com/dashboard",
			RequestsPerSecond: 20,
			Kinds:             []model.Kind{model.KindTrack, model.KindArtist, model.KindAlbum},
		},
		NameLastFM: {
			Tier:              TierFreeKey,
			HelpURL:           "https://www.last.fm/api/account/create",
			RequestsPerSecond: 5,
			Kinds:             []model.Kind{model.KindTrack, model.KindArtist, model.KindAlbum, model.KindGenre},
		},
		NameDeezer: {
			Tier:              TierFree,
			RequestsPerSecond: 5,
			Kinds:             []model.Kind{model.KindTrack, model.KindArtist, model.KindAlbum, model.KindGenre},
		},
		NameMusicBrainz: {
			Tier:              TierFree,
			RequestsPerSecond: 1,
			Kinds:             []model.Kind{model.KindTrack, model.KindArtist, model.KindAlbum},
		},
	}
}

// ProviderName uniquely identifies a metadata provider. It is also the key
// under which the provider's document is stored in an entity's metadata.
type ProviderName string

// Known provider names.
const (
	NameSpotify     ProviderName = "spotify"
	NameLastFM      ProviderName = "lastfm"
	NameDeezer      ProviderName = "deezer"
	NameMusicBrainz ProviderName = "musicbrainz"
)

// AllProviderNames returns all known provider names in default resolution order.
func AllProviderNames() []ProviderName {
	return []ProviderName{
		NameMusicBrainz,
		NameSpotify,
		NameLastFM,
		NameDeezer,
	}
}

// DisplayName returns a human-readable name for the provider.
func (n ProviderName) DisplayName() string {
	switch n {
	case NameSpotify:
		return "Spotify"
	case NameLastFM:
		return "Last.fm"
	case NameDeezer:
		return "Deezer"
	case NameMusicBrainz:
		return "MusicBrainz"
	default:
		return string(n)
	}
}

// Result is one candidate produced by a source. Exact is set when the source
// found the entity through an identifier lookup rather than a text search;
// MatchedBy then names the identifier used.
type Result[T any] struct {
	Entity    T
	Exact     bool
	MatchedBy string
}

// Source is the search contract every catalog adapter exposes. Each method
// returns a lazy, single-pass sequence; a non-nil error ends the sequence.
// Sources that cannot search a kind return Empty.
type Source interface {
	// Name returns the unique provider identifier.
	Name() ProviderName

	SearchTrack(ctx context.Context, ref *model.Track) iter.Seq2[Result[*model.Track], error]
	SearchArtist(ctx context.Context, ref *model.Artist) iter.Seq2[Result[*model.Artist], error]
	SearchAlbum(ctx context.Context, ref *model.Album) iter.Seq2[Result[*model.Album], error]
	SearchGenre(ctx context.Context, ref *model.Genre) iter.Seq2[Result[*model.Genre], error]
}

// Keyed is implemented by sources that exchange identifiers with other
// sources. Supplies lists the metadata keys the source's merged documents
// carry for kind; LooksUp lists the keys it searches by before falling back
// to a text search.
type Keyed interface {
	Supplies(kind model.Kind) []string
	LooksUp(kind model.Kind) []string
}

// Empty returns a finite sequence with no elements.
func Empty[T any]() iter.Seq2[Result[T], error] {
	return func(func(Result[T], error) bool) {}
}

// Exact returns a sequence holding a single identifier match.
func Exact[T any](entity T, matchedBy string) iter.Seq2[Result[T], error] {
	return func(yield func(Result[T], error) bool) {
		yield(Result[T]{Entity: entity, Exact: true, MatchedBy: matchedBy}, nil)
	}
}

// Slice returns a sequence over already fetched entities.
func Slice[T any](entities []T) iter.Seq2[Result[T], error] {
	return func(yield func(Result[T], error) bool) {
		for _, e := range entities {
			if !yield(Result[T]{Entity: e}, nil) {
				return
			}
		}
	}
}

// Fail returns a sequence that yields err and stops.
func Fail[T any](err error) iter.Seq2[Result[T], error] {
	return func(yield func(Result[T], error) bool) {
		var zero Result[T]
		yield(zero, err)
	}
}

// ErrProviderUnavailable indicates a transient failure (rate-limited, timeout, server error).
type ErrProviderUnavailable struct {
	Provider   ProviderName
	Cause      error
	RetryAfter time.Duration
}

func (e *ErrProviderUnavailable) Error() string {
	return fmt.Sprintf("provider %s unavailable: %v", e.Provider, e.Cause)
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Cause }

// ErrNotFound indicates the provider has no data for the requested ID.
type ErrNotFound struct {
	Provider ProviderName
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("provider %s: %s not found", e.Provider, e.ID)
}

// ErrAuthRequired indicates the provider needs credentials but none are configured.
type ErrAuthRequired struct {
	Provider ProviderName
}

func (e *ErrAuthRequired) Error() string {
	return fmt.Sprintf("provider %s: credentials not configured", e.Provider)
}
