package model

import "strings"

// AlbumType classifies a release.
type AlbumType string

// Album types.
const (
	AlbumStudio      AlbumType = "studio"
	AlbumSingle      AlbumType = "single"
	AlbumCompilation AlbumType = "compilation"
)

// Album is a release grouping tracks under shared artists.
type Album struct {
	Base
	Title       string    `json:"title"`
	Type        AlbumType `json:"type,omitempty"`
	Artists     CreditSet `json:"artists"`
	ReleaseDate string    `json:"release_date,omitempty"`
	Cover       string    `json:"cover,omitempty"`
	Genres      GenreSet  `json:"genres,omitzero"`
}

// NewAlbum creates an album with the given title and artists.
func NewAlbum(title string, artists ...*Artist) *Album {
	al := &Album{Title: strings.TrimSpace(title), Base: Base{External: make(ExternalMetadata)}}
	for _, a := range artists {
		al.Artists.Add(a)
	}
	return al
}

// Kind implements Entity.
func (al *Album) Kind() Kind { return KindAlbum }

// Label implements Entity.
func (al *Album) Label() string {
	if names := al.Artists.Names(); len(names) > 0 {
		return strings.Join(names, ", ") + " - " + al.Title
	}
	return al.Title
}

// Playlist is a named, ordered list of tracks.
type Playlist struct {
	Base
	Name   string   `json:"name"`
	Tracks []*Track `json:"tracks,omitempty"`
}

// NewPlaylist creates an empty playlist.
func NewPlaylist(name string, tracks ...*Track) *Playlist {
	return &Playlist{Name: strings.TrimSpace(name), Tracks: tracks, Base: Base{External: make(ExternalMetadata)}}
}

// Kind implements Entity.
func (p *Playlist) Kind() Kind { return KindPlaylist }

// Label implements Entity.
func (p *Playlist) Label() string { return p.Name }
