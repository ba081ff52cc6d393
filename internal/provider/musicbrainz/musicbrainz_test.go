package musicbrainz

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sydlexius/crawler/internal/model"
	"github.com/sydlexius/crawler/internal/provider"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatalf("loading fixture %s: %v", name, err)
	}
	return data
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServer(t *testing.T, requests *atomic.Int32, queries *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			requests.Add(1)
		}
		if queries != nil {
			*queries = append(*queries, r.URL.Query().Get("query"))
		}
		if r.URL.Query().Get("fmt") != "json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if ua := r.Header.Get("User-Agent"); ua == "" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/recording":
			w.Write(loadFixture(t, "recording_search.json"))
		case r.URL.Path == "/isrc/SE0J91100101":
			w.Write(loadFixture(t, "isrc.json"))
		case strings.HasPrefix(r.URL.Path, "/isrc/"):
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"Not Found"}`))
		case r.URL.Path == "/artist":
			w.Write(loadFixture(t, "artist_search.json"))
		case r.URL.Path == "/release-group":
			w.Write(loadFixture(t, "release_group_search.json"))
		case r.URL.Path == "/tag":
			w.Write(loadFixture(t, "tag_search.json"))
		case r.URL.Path == "/busy":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newAdapter(srv *httptest.Server) *Adapter {
	settings := provider.NewSettingsService(map[provider.ProviderName]provider.SourceSettings{
		provider.NameMusicBrainz: {PageSize: 25},
	})
	limiter := provider.NewRateLimiterMap()
	limiter.Set(provider.NameMusicBrainz, 1000, 10)
	return NewWithBaseURL(srv.Client(), limiter, settings, testLogger(), srv.URL)
}

func collect[T any](t *testing.T, seq iter.Seq2[provider.Result[T], error]) ([]provider.Result[T], error) {
	t.Helper()
	var out []provider.Result[T]
	for r, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

func TestSearchTrack(t *testing.T) {
	var queries []string
	srv := newTestServer(t, nil, &queries)
	defer srv.Close()
	a := newAdapter(srv)

	results, err := collect(t, a.SearchTrack(context.Background(), model.NewTrack("Levels", model.NewArtist("Avicii"))))
	if err != nil {
		t.Fatalf("SearchTrack: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if len(queries) != 1 || queries[0] != `recording:"Levels" AND artist:"Avicii"` {
		t.Errorf("unexpected queries %q", queries)
	}

	levels := results[0].Entity
	if levels.Duration != 199*time.Second {
		t.Errorf("Duration = %v", levels.Duration)
	}
	if levels.Album == nil || levels.Album.Title != "Levels" || levels.Album.ReleaseDate != "2011-10-14" {
		t.Fatalf("unexpected album %+v", levels.Album)
	}
	if levels.Number != 2 {
		t.Errorf("expected the earliest release position 2, got %d", levels.Number)
	}
	if levels.Album.Type != model.AlbumSingle {
		t.Errorf("album type = %q", levels.Album.Type)
	}
	if got := levels.Genres.Names(); len(got) != 1 || got[0] != "progressive house" {
		t.Errorf("genres = %v", got)
	}
	doc := levels.Metadata().Get("musicbrainz")
	if doc.ID() != "b3a3b1e4-7a3b-4c8e-9d0f-1a2b3c4d5e6f" || doc.String(model.KeyISRC) != "SE0J91100101" {
		t.Errorf("unexpected document %v", doc)
	}

	remix := results[1].Entity
	if !remix.IsVersion() || remix.Title != "Levels" {
		t.Errorf("expected a version, got %q", remix.Label())
	}
	if got := remix.Features().Names(); len(got) != 1 || got[0] != "Etta James" {
		t.Errorf("features = %v", got)
	}
	if got := remix.VersionArtists().Names(); len(got) != 1 || got[0] != "Skrillex" {
		t.Errorf("version artists = %v", got)
	}
}

func TestSearchTrackByISRC(t *testing.T) {
	var requests atomic.Int32
	srv := newTestServer(t, &requests, nil)
	defer srv.Close()
	a := newAdapter(srv)

	ref := model.NewTrack("Levels", model.NewArtist("Avicii"))
	ref.PutMetadata("spotify", model.Document{model.KeyID: "5UqCQaDshqbIk3pkhy4Pjg", model.KeyISRC: "SE0J91100101"})

	results, err := collect(t, a.SearchTrack(context.Background(), ref))
	if err != nil {
		t.Fatalf("SearchTrack: %v", err)
	}
	if len(results) != 1 || !results[0].Exact || results[0].MatchedBy != model.KeyISRC {
		t.Fatalf("expected one exact result, got %+v", results)
	}
	if requests.Load() != 1 {
		t.Errorf("expected 1 request, got %d", requests.Load())
	}
}

func TestSearchTrackISRCFallsBack(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	defer srv.Close()
	a := newAdapter(srv)

	ref := model.NewTrack("Levels", model.NewArtist("Avicii"))
	ref.PutMetadata("deezer", model.Document{model.KeyISRC: "XX0000000000"})

	results, err := collect(t, a.SearchTrack(context.Background(), ref))
	if err != nil {
		t.Fatalf("SearchTrack: %v", err)
	}
	if len(results) != 2 || results[0].Exact {
		t.Errorf("expected search results, got %d", len(results))
	}
}

func TestSearchArtist(t *testing.T) {
	var queries []string
	srv := newTestServer(t, nil, &queries)
	defer srv.Close()
	a := newAdapter(srv)

	results, err := collect(t, a.SearchArtist(context.Background(), model.NewArtist(`Guns "N" Roses`)))
	if err != nil {
		t.Fatalf("SearchArtist: %v", err)
	}
	if queries[0] != `artist:"Guns \"N\" Roses"` {
		t.Errorf("query not escaped: %q", queries[0])
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	art := results[0].Entity
	if art.Type != model.ArtistSolo {
		t.Errorf("Type = %q", art.Type)
	}
	if art.Genres.Len() != 2 {
		t.Errorf("expected tag genres, got %v", art.Genres.Names())
	}
	doc := art.Metadata().Get("musicbrainz")
	if doc.String("country") != "SE" || doc.String("end") != "2018-04-20" {
		t.Errorf("unexpected document %v", doc)
	}
}

func TestSearchAlbum(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	defer srv.Close()
	a := newAdapter(srv)

	results, err := collect(t, a.SearchAlbum(context.Background(), model.NewAlbum("True", model.NewArtist("Avicii"))))
	if err != nil {
		t.Fatalf("SearchAlbum: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	al := results[0].Entity
	if al.Type != model.AlbumStudio || al.ReleaseDate != "2013-09-13" || al.Artists.Len() != 1 {
		t.Errorf("unexpected album %+v", al)
	}
}

func TestSearchGenre(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	defer srv.Close()
	a := newAdapter(srv)

	results, err := collect(t, a.SearchGenre(context.Background(), model.NewGenre("House")))
	if err != nil {
		t.Fatalf("SearchGenre: %v", err)
	}
	if len(results) != 2 || results[0].Entity.Name != "house" {
		t.Errorf("unexpected genres %+v", results)
	}
}

func TestServiceUnavailable(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	defer srv.Close()
	a := newAdapter(srv)

	var out searchResponse
	err := a.get(context.Background(), "/busy", nil, &out)
	var unavailable *provider.ErrProviderUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if unavailable.RetryAfter != 2*time.Second {
		t.Errorf("RetryAfter = %v", unavailable.RetryAfter)
	}
}

func TestMapAlbumType(t *testing.T) {
	tests := []struct {
		primary   string
		secondary []string
		want      model.AlbumType
	}{
		{"Album", nil, model.AlbumStudio},
		{"EP", nil, model.AlbumSingle},
		{"Single", nil, model.AlbumSingle},
		{"Album", []string{"Compilation"}, model.AlbumCompilation},
		{"Broadcast", nil, ""},
	}
	for _, tt := range tests {
		if got := mapAlbumType(tt.primary, tt.secondary); got != tt.want {
			t.Errorf("mapAlbumType(%q, %v) = %q, want %q", tt.primary, tt.secondary, got, tt.want)
		}
	}
}
