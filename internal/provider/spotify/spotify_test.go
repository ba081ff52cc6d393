package spotify

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

type counters struct {
	tokens   atomic.Int32
	searches atomic.Int32
	features atomic.Int32
}

func newTestServer(t *testing.T, c *counters) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/token" {
			c.tokens.Add(1)
			id, secret, ok := r.BasicAuth()
			if !ok {
				_ = r.ParseForm()
				id, secret = r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
			}
			if id != "test-id" || secret != "test-secret" {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"invalid_client","error_description":"Invalid client"}`))
				return
			}
			w.Write([]byte(`{"access_token":"test-token","token_type":"bearer","expires_in":3600}`))
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"status":401,"message":"No token provided"}}`))
			return
		}
		q := r.URL.Query()
		switch r.URL.Path {
		case "/search":
			c.searches.Add(1)
			switch q.Get("type") {
			case "track":
				switch {
				case strings.HasPrefix(q.Get("q"), "isrc:SE0J91100101"):
					w.Write(loadFixture(t, "track_isrc.json"))
				case strings.HasPrefix(q.Get("q"), "isrc:"):
					w.Write([]byte(`{"tracks":{"items":[],"limit":1,"offset":0,"total":0,"next":null}}`))
				case q.Get("offset") == "2":
					w.Write(loadFixture(t, "track_search_page2.json"))
				default:
					w.Write(loadFixture(t, "track_search_page1.json"))
				}
			case "artist":
				w.Write(loadFixture(t, "artist_search.json"))
			case "album":
				w.Write(loadFixture(t, "album_search.json"))
			default:
				w.WriteHeader(http.StatusBadRequest)
			}
		case "/audio-features":
			c.features.Add(1)
			if strings.HasPrefix(q.Get("ids"), "5UqCQaDshqbIk3pkhy4Pjg") {
				w.Write(loadFixture(t, "audio_features.json"))
				return
			}
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":{"status":403,"message":"Forbidden"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newAdapter(t *testing.T, srv *httptest.Server, id, secret string) *Adapter {
	t.Helper()
	settings := provider.NewSettingsService(map[provider.ProviderName]provider.SourceSettings{
		provider.NameSpotify: {ClientID: id, ClientSecret: secret, PageSize: 2},
	})
	limiter := provider.NewRateLimiterMap()
	limiter.Set(provider.NameSpotify, 1000, 10)
	return NewWithBaseURL(context.Background(), srv.Client(), limiter, settings, testLogger(), srv.URL, srv.URL+"/token")
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

func TestSearchTrackPaginates(t *testing.T) {
	var c counters
	srv := newTestServer(t, &c)
	defer srv.Close()
	a := newAdapter(t, srv, "test-id", "test-secret")

	results, err := collect(t, a.SearchTrack(context.Background(), model.NewTrack("Levels", model.NewArtist("Avicii"))))
	if err != nil {
		t.Fatalf("SearchTrack: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if c.searches.Load() != 2 {
		t.Errorf("expected 2 search pages, got %d", c.searches.Load())
	}
	if c.tokens.Load() != 1 {
		t.Errorf("expected the token to be fetched once, got %d", c.tokens.Load())
	}

	levels := results[0].Entity
	if !levels.IsVersion() || levels.Title != "Levels" {
		t.Errorf("expected radio edit version of Levels, got %q", levels.Label())
	}
	if levels.Duration != 199906*time.Millisecond {
		t.Errorf("Duration = %v", levels.Duration)
	}
	if levels.BPM != 126 {
		t.Errorf("BPM = %d, want 126", levels.BPM)
	}
	if levels.Audio.Energy < 0.88 || levels.Audio.Key == nil || *levels.Audio.Key != 1 {
		t.Errorf("audio features not applied: %+v", levels.Audio)
	}
	if levels.Audio.Instrumental == nil || !*levels.Audio.Instrumental {
		t.Error("expected instrumental flag")
	}
	if levels.Album == nil || levels.Album.Type != model.AlbumSingle || levels.Album.Cover != "https://i.scdn.co/image/large" {
		t.Errorf("unexpected album %+v", levels.Album)
	}
	doc := levels.Metadata().Get("spotify")
	if doc.ID() != "5UqCQaDshqbIk3pkhy4Pjg" || doc.String(model.KeyISRC) != "SE0J91100101" {
		t.Errorf("unexpected document %v", doc)
	}
	if doc[model.KeyPopularity] != 77 {
		t.Errorf("popularity = %v", doc[model.KeyPopularity])
	}

	cover := results[1].Entity
	if cover.MainArtists().Len() != 3 {
		t.Errorf("expected split artists, got %v", cover.MainArtists().Names())
	}
	if cover.Audio.Danceability != model.Unset {
		t.Errorf("expected unset features for a null entry, got %v", cover.Audio.Danceability)
	}
	if cover.Disc != 2 || cover.Number != 7 || !cover.Explicit {
		t.Errorf("unexpected cover fields %+v", cover)
	}

	remix := results[2].Entity
	if got := remix.VersionArtists().Names(); len(got) != 1 || got[0] != "Skrillex" {
		t.Errorf("version artists = %v", got)
	}
	if remix.Album.Type != model.AlbumCompilation {
		t.Errorf("album type = %q", remix.Album.Type)
	}
}

func TestSearchTrackByISRC(t *testing.T) {
	var c counters
	srv := newTestServer(t, &c)
	defer srv.Close()
	a := newAdapter(t, srv, "test-id", "test-secret")

	ref := model.NewTrack("Levels", model.NewArtist("Avicii"))
	ref.PutMetadata("musicbrainz", model.Document{model.KeyID: "b3a3b1e4", model.KeyISRC: "SE0J91100101"})

	results, err := collect(t, a.SearchTrack(context.Background(), ref))
	if err != nil {
		t.Fatalf("SearchTrack: %v", err)
	}
	if len(results) != 1 || !results[0].Exact || results[0].MatchedBy != model.KeyISRC {
		t.Fatalf("expected a single exact result, got %+v", results)
	}
	if c.searches.Load() != 1 {
		t.Errorf("expected 1 search, got %d", c.searches.Load())
	}
}

func TestSearchTrackISRCMissFallsBack(t *testing.T) {
	var c counters
	srv := newTestServer(t, &c)
	defer srv.Close()
	a := newAdapter(t, srv, "test-id", "test-secret")

	ref := model.NewTrack("Levels", model.NewArtist("Avicii"))
	ref.PutMetadata("deezer", model.Document{model.KeyISRC: "XX0000000000"})

	results, err := collect(t, a.SearchTrack(context.Background(), ref))
	if err != nil {
		t.Fatalf("SearchTrack: %v", err)
	}
	if len(results) != 3 || results[0].Exact {
		t.Errorf("expected fallback search results, got %d", len(results))
	}
}

func TestSearchArtistSplitsCredits(t *testing.T) {
	var c counters
	srv := newTestServer(t, &c)
	defer srv.Close()
	a := newAdapter(t, srv, "test-id", "test-secret")

	results, err := collect(t, a.SearchArtist(context.Background(), model.NewArtist("Avicii")))
	if err != nil {
		t.Fatalf("SearchArtist: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 matching artists, got %d", len(results))
	}
	for _, r := range results {
		if r.Entity.Name != "Avicii" {
			t.Errorf("expected the split credit closest to the reference, got %q", r.Entity.Name)
		}
	}
	first := results[0].Entity
	if first.Picture != "https://i.scdn.co/image/a640" {
		t.Errorf("Picture = %q", first.Picture)
	}
	if first.Genres.Len() != 2 {
		t.Errorf("genres = %v", first.Genres.Names())
	}
	if first.Metadata().Get("spotify")[model.KeyListeners] != 22000000 {
		t.Errorf("followers not recorded: %v", first.Metadata().Get("spotify"))
	}
}

func TestSearchAlbum(t *testing.T) {
	var c counters
	srv := newTestServer(t, &c)
	defer srv.Close()
	a := newAdapter(t, srv, "test-id", "test-secret")

	results, err := collect(t, a.SearchAlbum(context.Background(), model.NewAlbum("True", model.NewArtist("Avicii"))))
	if err != nil {
		t.Fatalf("SearchAlbum: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 album, got %d", len(results))
	}
	al := results[0].Entity
	if al.Type != model.AlbumStudio || al.ReleaseDate != "2013-09-13" || al.Artists.Names()[0] != "Avicii" {
		t.Errorf("unexpected album %+v", al)
	}
}

func TestSearchGenreIsEmpty(t *testing.T) {
	var c counters
	srv := newTestServer(t, &c)
	defer srv.Close()
	a := newAdapter(t, srv, "test-id", "test-secret")

	results, err := collect(t, a.SearchGenre(context.Background(), model.NewGenre("edm")))
	if err != nil || len(results) != 0 {
		t.Errorf("expected no genres, got %v, %v", results, err)
	}
}

func TestMissingCredentials(t *testing.T) {
	var c counters
	srv := newTestServer(t, &c)
	defer srv.Close()
	a := newAdapter(t, srv, "", "")

	_, err := collect(t, a.SearchTrack(context.Background(), model.NewTrack("Levels")))
	var authErr *provider.ErrAuthRequired
	if !errors.As(err, &authErr) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
	if c.tokens.Load() != 0 || c.searches.Load() != 0 {
		t.Error("expected no requests without credentials")
	}
}

func TestInvalidCredentials(t *testing.T) {
	var c counters
	srv := newTestServer(t, &c)
	defer srv.Close()
	a := newAdapter(t, srv, "test-id", "wrong")

	_, err := collect(t, a.SearchArtist(context.Background(), model.NewArtist("Avicii")))
	var authErr *provider.ErrAuthRequired
	if !errors.As(err, &authErr) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
}
