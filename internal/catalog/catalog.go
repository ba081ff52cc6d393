// Package catalog reads and writes master entities as a JSON document.
package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sydlexius/crawler/internal/model"
	"github.com/sydlexius/crawler/internal/scanner"
)

// Catalog groups master entities by kind.
type Catalog struct {
	Tracks    []*model.Track    `json:"tracks,omitempty"`
	Artists   []*model.Artist   `json:"artists,omitempty"`
	Albums    []*model.Album    `json:"albums,omitempty"`
	Genres    []*model.Genre    `json:"genres,omitempty"`
	Playlists []*model.Playlist `json:"playlists,omitempty"`
}

// FromTracks creates a catalog holding tracks.
func FromTracks(tracks []*model.Track) *Catalog {
	return &Catalog{Tracks: tracks}
}

// Carry replaces freshly scanned tracks with their resolved versions from
// prev when both were read from the same file and the title is unchanged.
// The carried track takes the new tag document. It returns the number of
// tracks carried over.
func (c *Catalog) Carry(prev *Catalog) int {
	if prev == nil {
		return 0
	}
	byPath := make(map[string]*model.Track, len(prev.Tracks))
	for _, t := range prev.Tracks {
		if p := t.Metadata().Get(scanner.SourceTags).String("path"); p != "" {
			byPath[p] = t
		}
	}
	n := 0
	for i, t := range c.Tracks {
		tags := t.Metadata().Get(scanner.SourceTags)
		old, ok := byPath[tags.String("path")]
		if !ok || old.Title != t.Title {
			continue
		}
		old.PutMetadata(scanner.SourceTags, tags)
		c.Tracks[i] = old
		n++
	}
	return n
}

// Load reads a catalog from a JSON file.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	defer f.Close() //nolint:errcheck
	c, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	return c, nil
}

// Decode reads a catalog from r.
func Decode(r io.Reader) (*Catalog, error) {
	var c Catalog
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	return &c, nil
}

// Encode writes c to w as indented JSON.
func (c *Catalog) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding catalog: %w", err)
	}
	return nil
}

// Save writes c to path. The previous file survives a failed write.
func (c *Catalog) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding catalog: %w", err)
	}
	return writeAtomic(path, append(data, '\n'), 0o644)
}

// Len returns the number of entities in the catalog.
func (c *Catalog) Len() int {
	return len(c.Tracks) + len(c.Artists) + len(c.Albums) + len(c.Genres) + len(c.Playlists)
}

// Entities returns the resolvable entities: tracks, then artists, albums and
// genres, each in file order. Playlists are containers and are left out.
func (c *Catalog) Entities() []model.Entity {
	out := make([]model.Entity, 0, c.Len())
	for _, t := range c.Tracks {
		out = append(out, t)
	}
	for _, a := range c.Artists {
		out = append(out, a)
	}
	for _, al := range c.Albums {
		out = append(out, al)
	}
	for _, g := range c.Genres {
		out = append(out, g)
	}
	return out
}

// writeAtomic writes data next to path and renames it into place, keeping a
// backup of the old file until the rename succeeds.
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: output directory chosen by the operator
		return fmt.Errorf("creating parent directory: %w", err)
	}
	tmp := path + ".tmp"
	bak := path + ".bak"

	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, bak); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("backing up existing file: %w", err)
		}
	}
	if err := os.Rename(tmp, path); err != nil {
		if _, bakErr := os.Stat(bak); bakErr == nil {
			_ = os.Rename(bak, path)
		}
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	_ = os.Remove(bak)
	return nil
}
