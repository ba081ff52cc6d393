package model

import (
	"encoding/json"
	"regexp"
	"slices"
	"strings"
)

// ArtistType distinguishes solo artists from groups.
type ArtistType string

// Artist types.
const (
	ArtistSolo  ArtistType = "solo"
	ArtistGroup ArtistType = "group"
)

// Artist is a credited performer, producer or remixer.
type Artist struct {
	Base
	Name    string     `json:"name"`
	Type    ArtistType `json:"type,omitempty"`
	Picture string     `json:"picture,omitempty"`
	Plays   int64      `json:"plays,omitempty"`
	Genres  GenreSet   `json:"genres,omitzero"`
}

// NewArtist creates an artist with the given display name.
func NewArtist(name string) *Artist {
	return &Artist{Name: strings.TrimSpace(name), Base: Base{External: make(ExternalMetadata)}}
}

// Kind implements Entity.
func (a *Artist) Kind() Kind { return KindArtist }

// Label implements Entity.
func (a *Artist) Label() string { return a.Name }

// Key is the equality key used by credit sets: the trimmed, lower-cased name.
func (a *Artist) Key() string {
	if a == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(a.Name))
}

// CreditSet is an ordered, duplicate-free collection of artists. Two artists
// are the same member when their keys are equal.
type CreditSet struct {
	artists []*Artist
}

// NewCreditSet builds a set from artists, dropping duplicates.
func NewCreditSet(artists ...*Artist) *CreditSet {
	s := &CreditSet{}
	for _, a := range artists {
		s.Add(a)
	}
	return s
}

func (s *CreditSet) index(a *Artist) int {
	key := a.Key()
	if key == "" {
		return -1
	}
	return slices.IndexFunc(s.artists, func(x *Artist) bool { return x.Key() == key })
}

// Contains reports whether an artist with the same key is in the set.
func (s *CreditSet) Contains(a *Artist) bool {
	return s.index(a) >= 0
}

// Add appends a unless an equal artist is already present. It returns true
// when the set changed.
func (s *CreditSet) Add(a *Artist) bool {
	if a.Key() == "" || s.Contains(a) {
		return false
	}
	s.artists = append(s.artists, a)
	return true
}

// Remove deletes the artist equal to a. It returns true when the set changed.
func (s *CreditSet) Remove(a *Artist) bool {
	i := s.index(a)
	if i < 0 {
		return false
	}
	s.artists = slices.Delete(s.artists, i, i+1)
	return true
}

// Len returns the number of artists.
func (s *CreditSet) Len() int { return len(s.artists) }

// Artists returns a copy of the members in insertion order.
func (s *CreditSet) Artists() []*Artist {
	return slices.Clone(s.artists)
}

// Names returns the display names in insertion order.
func (s *CreditSet) Names() []string {
	names := make([]string, 0, len(s.artists))
	for _, a := range s.artists {
		names = append(names, a.Name)
	}
	return names
}

// IsZero reports whether the set is empty.
func (s CreditSet) IsZero() bool { return len(s.artists) == 0 }

// MarshalJSON encodes the set as a list of artists.
func (s CreditSet) MarshalJSON() ([]byte, error) {
	if s.artists == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.artists)
}

// UnmarshalJSON decodes a list of artists, dropping duplicates.
func (s *CreditSet) UnmarshalJSON(data []byte) error {
	var artists []*Artist
	if err := json.Unmarshal(data, &artists); err != nil {
		return err
	}
	s.artists = nil
	for _, a := range artists {
		s.Add(a)
	}
	return nil
}

var artistSeparator = regexp.MustCompile(`(?i)\s*(?:,|;|&|\s/\s|\bfeat\.?\s|\bft\.\s|\bfeaturing\s|\bvs\.?\s)\s*`)

// SplitArtists turns a credited-artist string such as "A & B feat. C" into
// individual artists. Empty fragments are dropped and duplicates collapsed.
func SplitArtists(format string) []*Artist {
	set := NewCreditSet()
	for _, part := range artistSeparator.Split(format, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		set.Add(NewArtist(part))
	}
	return set.Artists()
}
