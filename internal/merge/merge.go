// Package merge folds a matched candidate ("slave") into the caller's
// canonical entity ("master"). Every merge is idempotent: applying the same
// slave twice changes nothing the second time. The master's title and name
// are never overwritten.
package merge

import (
	"errors"
	"fmt"
	"maps"

	"github.com/sydlexius/crawler/internal/model"
)

// ErrTypeMismatch is matched by every *TypeMismatchError.
var ErrTypeMismatch = errors.New("type mismatch")

// TypeMismatchError reports a master and slave that cannot be merged.
type TypeMismatchError struct {
	Master string
	Slave  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("cannot merge %s into %s", e.Slave, e.Master)
}

// Is makes errors.Is(err, ErrTypeMismatch) hold.
func (e *TypeMismatchError) Is(target error) bool { return target == ErrTypeMismatch }

// Entities dispatches on the master's kind. Both entities must be of the
// same kind.
func Entities(master, slave model.Entity) error {
	if master.Kind() != slave.Kind() {
		return &TypeMismatchError{Master: string(master.Kind()), Slave: string(slave.Kind())}
	}
	switch m := master.(type) {
	case *model.Track:
		return dispatch(m, slave, Tracks)
	case *model.Artist:
		return dispatch(m, slave, Artists)
	case *model.Album:
		return dispatch(m, slave, Albums)
	case *model.Genre:
		return dispatch(m, slave, Genres)
	case *model.Playlist:
		return dispatch(m, slave, Playlists)
	default:
		return &TypeMismatchError{Master: fmt.Sprintf("%T", master), Slave: fmt.Sprintf("%T", slave)}
	}
}

func dispatch[T model.Entity](master T, slave model.Entity, fn func(T, T) error) error {
	s, ok := slave.(T)
	if !ok {
		return &TypeMismatchError{Master: fmt.Sprintf("%T", master), Slave: fmt.Sprintf("%T", slave)}
	}
	return fn(master, s)
}

// Tracks merges slave into master and then reconciles their artist credits.
// Both must be of the same track type.
func Tracks(master, slave *model.Track) error {
	if master.Type != slave.Type {
		return &TypeMismatchError{
			Master: string(master.Type) + " track",
			Slave:  string(slave.Type) + " track",
		}
	}

	if slave.BPM > 0 {
		master.BPM = slave.BPM
	}
	if master.Duration <= 0 && slave.Duration > 0 {
		master.Duration = slave.Duration
	}
	mergeAudio(&master.Audio, slave.Audio)
	metadata(master, slave)
	if master.Hidden == nil && slave.Hidden != nil {
		master.Hidden = ptr(*slave.Hidden)
	}
	if master.Lyrics == nil && slave.Lyrics != nil {
		master.Lyrics = ptr(*slave.Lyrics)
	}
	if slave.Explicit {
		master.Explicit = true
	}
	genres(&master.Genres, &slave.Genres)
	if slave.VersionToken != "" {
		master.VersionToken = slave.VersionToken
	}

	if master.Disc == 0 && slave.Disc > 0 {
		master.Disc = slave.Disc
	}
	if master.Number == 0 && slave.Number > 0 {
		master.Number = slave.Number
	}
	if master.Plays == 0 && slave.Plays > 0 {
		master.Plays = slave.Plays
	}
	if slave.Album != nil {
		if master.Album == nil {
			master.Album = model.NewAlbum(slave.Album.Title)
		}
		if err := Albums(master.Album, slave.Album); err != nil {
			return fmt.Errorf("merging album: %w", err)
		}
	}

	return Reconcile(master.Buckets(), slave.Buckets())
}

func mergeAudio(master *model.AudioFeatures, slave model.AudioFeatures) {
	if slave.Danceability >= 0 {
		master.Danceability = slave.Danceability
	}
	if slave.Energy >= 0 {
		master.Energy = slave.Energy
	}
	if slave.Valence >= 0 {
		master.Valence = slave.Valence
	}
	if slave.Key != nil {
		master.Key = ptr(*slave.Key)
	}
	if slave.Mode != nil {
		master.Mode = ptr(*slave.Mode)
	}
	if slave.Acoustic != nil {
		master.Acoustic = ptr(*slave.Acoustic)
	}
	if slave.Instrumental != nil {
		master.Instrumental = ptr(*slave.Instrumental)
	}
	if slave.Live != nil {
		master.Live = ptr(*slave.Live)
	}
}

// Artists merges slave into master. Empty master fields are filled in.
func Artists(master, slave *model.Artist) error {
	if master.Type == "" {
		master.Type = slave.Type
	}
	if master.Picture == "" {
		master.Picture = slave.Picture
	}
	if master.Plays == 0 && slave.Plays > 0 {
		master.Plays = slave.Plays
	}
	genres(&master.Genres, &slave.Genres)
	metadata(master, slave)
	return nil
}

// Albums merges slave into master. Slave artists missing from master are
// appended.
func Albums(master, slave *model.Album) error {
	if master.Type == "" {
		master.Type = slave.Type
	}
	if master.ReleaseDate == "" {
		master.ReleaseDate = slave.ReleaseDate
	}
	if master.Cover == "" {
		master.Cover = slave.Cover
	}
	for _, a := range slave.Artists.Artists() {
		master.Artists.Add(a)
	}
	genres(&master.Genres, &slave.Genres)
	metadata(master, slave)
	return nil
}

// Genres merges slave into master.
func Genres(master, slave *model.Genre) error {
	if master.Description == "" {
		master.Description = slave.Description
	}
	metadata(master, slave)
	return nil
}

// Playlists merges slave metadata into master. Track lists are left alone.
// No source searches playlists, so the resolver never calls it.
func Playlists(master, slave *model.Playlist) error {
	metadata(master, slave)
	return nil
}

// metadata copies every slave document onto master, replacing the document
// of the same source. Master documents from other sources are kept.
func metadata(master, slave model.Entity) {
	for source, doc := range slave.Metadata() {
		master.PutMetadata(source, maps.Clone(doc))
	}
}

func genres(master, slave *model.GenreSet) {
	for _, g := range slave.Genres() {
		master.Add(g)
	}
}

func ptr[T any](v T) *T { return &v }
