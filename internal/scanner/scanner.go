// Package scanner builds master tracks from the tags of local audio files.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dhowden/tag"
	"github.com/google/uuid"

	"github.com/sydlexius/crawler/internal/event"
	"github.com/sydlexius/crawler/internal/model"
	"github.com/sydlexius/crawler/internal/titles"
)

// SourceTags names the document that records where a scanned track came
// from. It is not a resolvable source.
const SourceTags = "tags"

// SourceMusicBrainz is the document written when a file already carries a
// MusicBrainz recording id.
const SourceMusicBrainz = "musicbrainz"

var audioExtensions = map[string]bool{
	".mp3": true, ".flac": true, ".m4a": true, ".mp4": true,
	".m4b": true, ".ogg": true, ".oga": true, ".alac": true, ".dsf": true,
}

// IsAudio reports whether path has an audio file extension.
func IsAudio(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

// Service scans a directory tree of audio files.
type Service struct {
	logger     *slog.Logger
	root       string
	exclusions map[string]bool
	eventBus   *event.Bus

	mu          sync.Mutex
	currentScan *ScanResult
}

// NewService creates a scanner service rooted at root. Directory names in
// exclusions are skipped case-insensitively.
func NewService(logger *slog.Logger, root string, exclusions []string) *Service {
	excMap := make(map[string]bool, len(exclusions))
	for _, e := range exclusions {
		excMap[strings.ToLower(e)] = true
	}
	return &Service{
		logger:     logger.With(slog.String("component", "scanner")),
		root:       root,
		exclusions: excMap,
	}
}

// Excluded reports whether a directory with this name is skipped. Hidden
// directories always are.
func (s *Service) Excluded(name string) bool {
	return strings.HasPrefix(name, ".") || s.exclusions[strings.ToLower(name)]
}

// SetEventBus sets the event bus for publishing scan events.
func (s *Service) SetEventBus(bus *event.Bus) {
	s.eventBus = bus
}

// Scan walks the root synchronously and returns the tracks it could read.
// Only one scan runs at a time.
func (s *Service) Scan(ctx context.Context) (*ScanResult, error) {
	result, err := s.begin()
	if err != nil {
		return nil, err
	}
	s.runScan(ctx, result)

	s.mu.Lock()
	defer s.mu.Unlock()
	if result.Status == StatusFailed {
		return result, errors.New(result.Error)
	}
	return result, nil
}

// Run starts a scan in the background and returns a snapshot of its
// initial state. Poll Status for progress.
func (s *Service) Run(ctx context.Context) (*ScanResult, error) {
	result, err := s.begin()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	snapshot := *result
	s.mu.Unlock()

	go s.runScan(ctx, result)
	return &snapshot, nil
}

// Status returns a snapshot of the current or most recent scan.
func (s *Service) Status() *ScanResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentScan == nil {
		return nil
	}
	snapshot := *s.currentScan
	return &snapshot
}

func (s *Service) begin() (*ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentScan != nil && s.currentScan.Status == StatusRunning {
		return nil, fmt.Errorf("scan already in progress")
	}
	result := &ScanResult{
		ID:        uuid.New().String(),
		Root:      s.root,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	s.currentScan = result
	return result, nil
}

func (s *Service) runScan(ctx context.Context, result *ScanResult) {
	defer func() {
		s.mu.Lock()
		now := time.Now().UTC()
		result.CompletedAt = &now
		if result.Status == StatusRunning {
			result.Status = StatusCompleted
		}
		data := map[string]any{
			"scan_id":    result.ID,
			"root":       result.Root,
			"status":     result.Status,
			"files":      result.Files,
			"tracks":     len(result.Tracks),
			"unreadable": result.Unreadable,
		}
		s.mu.Unlock()

		s.eventBus.Publish(event.Event{Type: event.ScanCompleted, Data: data})
	}()

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("scan canceled: %w", ctx.Err())
		}
		if d.IsDir() {
			if path != s.root && s.Excluded(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsAudio(path) {
			return nil
		}

		t, err := ReadTrack(path)

		s.mu.Lock()
		defer s.mu.Unlock()
		result.Files++
		if err != nil {
			result.Unreadable++
			s.logger.Warn("reading tags", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		result.Tracks = append(result.Tracks, t)
		s.logger.Debug("track discovered", slog.String("label", t.Label()), slog.String("path", path))
		return nil
	})
	if err != nil {
		s.mu.Lock()
		result.Status = StatusFailed
		result.Error = fmt.Sprintf("scanning %s: %v", s.root, err)
		s.mu.Unlock()
		s.logger.Error("scan failed", slog.String("path", s.root), slog.String("error", err.Error()))
		return
	}
	s.logger.Info("scan finished",
		slog.String("path", s.root),
		slog.Int("files", result.Files),
		slog.Int("tracks", len(result.Tracks)),
		slog.Int("unreadable", result.Unreadable))
}

// ReadTrack builds a master track from the tags of one audio file.
func ReadTrack(path string) (*model.Track, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path comes from walking the scan root
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("parsing tags of %s: %w", path, err)
	}
	return fromMetadata(path, m), nil
}

func fromMetadata(path string, m tag.Metadata) *model.Track {
	title := m.Title()
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	artist := m.Artist()
	albumArtist := m.AlbumArtist()
	if artist == "" {
		artist = albumArtist
	}

	t := titles.Track(title, artist)
	t.Number, _ = m.Track()
	t.Disc, _ = m.Disc()
	if g := strings.TrimSpace(m.Genre()); g != "" {
		for _, name := range strings.Split(g, ";") {
			if name = strings.TrimSpace(name); name != "" {
				t.Genres.Add(model.NewGenre(name))
			}
		}
	}
	if lyrics := strings.TrimSpace(m.Lyrics()); lyrics != "" {
		t.Lyrics = &lyrics
	}

	if name := strings.TrimSpace(m.Album()); name != "" {
		if albumArtist == "" {
			albumArtist = artist
		}
		t.Album = model.NewAlbum(name, model.SplitArtists(albumArtist)...)
		if y := m.Year(); y > 0 {
			t.Album.ReleaseDate = strconv.Itoa(y)
		}
	}

	raw := m.Raw()
	isrc := rawText(raw, "isrc", "TSRC")
	t.PutMetadata(SourceTags, model.Document{}.
		With("path", path).
		With("format", string(m.Format())).
		With("file_type", string(m.FileType())).
		With(model.KeyISRC, strings.ToUpper(isrc)))
	if mbid := rawText(raw, "musicbrainz_trackid", "MusicBrainz Track Id"); mbid != "" {
		t.PutMetadata(SourceMusicBrainz, model.Document{}.
			With(model.KeyID, mbid).
			With(model.KeyISRC, strings.ToUpper(isrc)))
	}
	return t
}

// rawText looks a tag up by any of the given names. Vorbis comments use
// lowercase keys; ID3 user frames carry their name in a description.
func rawText(raw map[string]any, names ...string) string {
	for key, v := range raw {
		switch val := v.(type) {
		case string:
			for _, n := range names {
				if strings.EqualFold(key, n) {
					return strings.TrimSpace(val)
				}
			}
		case *tag.Comm:
			for _, n := range names {
				if strings.EqualFold(val.Description, n) {
					return strings.TrimSpace(val.Text)
				}
			}
		}
	}
	return ""
}
