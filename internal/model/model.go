// Package model defines the in-memory music entities the crawler reads and
// enriches: tracks, artists, albums, genres and playlists, together with the
// per-source external metadata documents attached to each of them.
//
// Entities are identified by object identity within a resolution pass. A
// master entity is owned by the caller and mutated in place by the merge step;
// candidate entities are produced by source adapters and discarded once the
// best one has been merged.
package model

import (
	"maps"
	"slices"
)

// Kind is the closed set of entity variants understood by the crawler.
type Kind string

// Entity kinds.
const (
	KindTrack    Kind = "track"
	KindArtist   Kind = "artist"
	KindAlbum    Kind = "album"
	KindGenre    Kind = "genre"
	KindPlaylist Kind = "playlist"
)

// Kinds returns every known kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindTrack, KindArtist, KindAlbum, KindGenre, KindPlaylist}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return slices.Contains(Kinds(), k)
}

// Well known keys inside a source metadata document.
const (
	KeyID         = "id"
	KeyMBID       = "mbid"
	KeyISRC       = "isrc"
	KeyListeners  = "listeners"
	KeyPlays      = "plays"
	KeyPopularity = "popularity"
	KeyURL        = "url"
	KeyURI        = "uri"
	KeyMarkets    = "markets"
	KeyPreview    = "preview"
	KeyTags       = "tags"
	KeyWiki       = "wiki"
)

// Document is a flat, source specific bag of attributes.
type Document map[string]any

// ID returns the source identifier stored under KeyID, or "".
func (d Document) ID() string {
	return d.String(KeyID)
}

// String returns the string value stored under key, or "".
func (d Document) String(key string) string {
	if d == nil {
		return ""
	}
	s, _ := d[key].(string)
	return s
}

// With sets key to value when value is not the zero value and returns d.
func (d Document) With(key string, value any) Document {
	switch v := value.(type) {
	case nil:
		return d
	case string:
		if v == "" {
			return d
		}
	case []string:
		if len(v) == 0 {
			return d
		}
	case int:
		if v == 0 {
			return d
		}
	case int64:
		if v == 0 {
			return d
		}
	}
	d[key] = value
	return d
}

// ExternalMetadata maps a source name to the document that source attached.
// Documents are replaced, never removed.
type ExternalMetadata map[string]Document

// Has reports whether source already attached a document.
func (m ExternalMetadata) Has(source string) bool {
	_, ok := m[source]
	return ok
}

// Get returns the document attached by source, or nil.
func (m ExternalMetadata) Get(source string) Document {
	return m[source]
}

// Sources returns the sorted names of all sources with a document.
func (m ExternalMetadata) Sources() []string {
	return slices.Sorted(maps.Keys(m))
}

// Entity is implemented by every resolvable model type.
type Entity interface {
	Kind() Kind
	// Label is a human readable description used in logs.
	Label() string
	Metadata() ExternalMetadata
	PutMetadata(source string, doc Document)
}

// Base carries the external metadata shared by all entities.
type Base struct {
	External ExternalMetadata `json:"external_metadata,omitempty"`
}

// Metadata returns the external metadata map. It may be nil; reads on a nil
// map are safe.
func (b *Base) Metadata() ExternalMetadata {
	return b.External
}

// PutMetadata attaches doc for source, replacing any previous document.
func (b *Base) PutMetadata(source string, doc Document) {
	if b.External == nil {
		b.External = make(ExternalMetadata)
	}
	b.External[source] = doc
}
