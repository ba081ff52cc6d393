package model

import (
	"encoding/json"
	"slices"
	"strings"
)

// Genre is a named style or tag.
type Genre struct {
	Base
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// NewGenre creates a genre with the given name.
func NewGenre(name string) *Genre {
	return &Genre{Name: strings.TrimSpace(name), Base: Base{External: make(ExternalMetadata)}}
}

// Kind implements Entity.
func (g *Genre) Kind() Kind { return KindGenre }

// Label implements Entity.
func (g *Genre) Label() string { return g.Name }

// Key is the case-insensitive equality key.
func (g *Genre) Key() string {
	if g == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(g.Name))
}

// GenreSet is an ordered set of genres keyed by case-insensitive name.
type GenreSet struct {
	genres []*Genre
}

// NewGenreSet builds a set from the given names.
func NewGenreSet(names ...string) GenreSet {
	var s GenreSet
	for _, n := range names {
		s.Add(NewGenre(n))
	}
	return s
}

// Add inserts g unless a genre with the same name exists. It returns true
// when the set changed.
func (s *GenreSet) Add(g *Genre) bool {
	if g.Key() == "" || s.Contains(g) {
		return false
	}
	s.genres = append(s.genres, g)
	return true
}

// Contains reports whether a genre with the same name is present.
func (s *GenreSet) Contains(g *Genre) bool {
	key := g.Key()
	return slices.ContainsFunc(s.genres, func(x *Genre) bool { return x.Key() == key })
}

// Len returns the number of genres.
func (s *GenreSet) Len() int { return len(s.genres) }

// Genres returns a copy of the members in insertion order.
func (s *GenreSet) Genres() []*Genre { return slices.Clone(s.genres) }

// Names returns the genre names in insertion order.
func (s *GenreSet) Names() []string {
	names := make([]string, 0, len(s.genres))
	for _, g := range s.genres {
		names = append(names, g.Name)
	}
	return names
}

// IsZero reports whether the set is empty.
func (s GenreSet) IsZero() bool { return len(s.genres) == 0 }

// MarshalJSON encodes the set as a list of genres.
func (s GenreSet) MarshalJSON() ([]byte, error) {
	if s.genres == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.genres)
}

// UnmarshalJSON decodes a list of genres. Plain strings are accepted as
// genre names.
func (s *GenreSet) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.genres = nil
	for _, item := range raw {
		var name string
		if err := json.Unmarshal(item, &name); err == nil {
			s.Add(NewGenre(name))
			continue
		}
		var g Genre
		if err := json.Unmarshal(item, &g); err != nil {
			return err
		}
		s.Add(&g)
	}
	return nil
}
