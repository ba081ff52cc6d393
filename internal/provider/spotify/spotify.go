// Package spotify adapts the Spotify Web API to provider.Source using the
// client credentials flow.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	spotifyclient "github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/sydlexius/crawler/internal/match"
	"github.com/sydlexius/crawler/internal/model"
	"github.com/sydlexius/crawler/internal/provider"
	"github.com/sydlexius/crawler/internal/titles"
)

const defaultBaseURL = "https://api.spotify.com/v1/"

const name = provider.NameSpotify

// Adapter implements provider.Source for Spotify.
type Adapter struct {
	client   *spotifyclient.Client
	limiter  *provider.RateLimiterMap
	settings *provider.SettingsService
	matcher  *match.Matcher
	logger   *slog.Logger
	// authErr is set when no client credentials are configured; every
	// search then fails with it.
	authErr error
}

// New creates a Spotify adapter. Tokens are fetched through base, which may
// be nil.
func New(ctx context.Context, base *http.Client, limiter *provider.RateLimiterMap, settings *provider.SettingsService, logger *slog.Logger) *Adapter {
	baseURL := settings.Get(name).BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return NewWithBaseURL(ctx, base, limiter, settings, logger, baseURL, spotifyauth.TokenURL)
}

// NewWithBaseURL creates a Spotify adapter with custom API and token URLs
// (for testing).
func NewWithBaseURL(ctx context.Context, base *http.Client, limiter *provider.RateLimiterMap, settings *provider.SettingsService, logger *slog.Logger, baseURL, tokenURL string) *Adapter {
	if base == nil {
		base = &http.Client{Timeout: 10 * time.Second}
	}
	cfg := settings.Get(name)
	a := &Adapter{
		limiter:  limiter,
		settings: settings,
		matcher:  match.New(cfg.Threshold),
		logger:   logger.With(slog.String("provider", string(name))),
	}
	if !settings.HasCredentials(name) {
		a.authErr = &provider.ErrAuthRequired{Provider: name}
		return a
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
	}
	httpClient := creds.Client(context.WithValue(ctx, oauth2.HTTPClient, base))
	httpClient.Timeout = base.Timeout
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	a.client = spotifyclient.New(httpClient, spotifyclient.WithBaseURL(baseURL))
	return a
}

var _ provider.Keyed = (*Adapter)(nil)

// Name returns the provider name.
func (a *Adapter) Name() provider.ProviderName { return name }

// Supplies reports the identifiers Spotify track documents carry.
func (a *Adapter) Supplies(kind model.Kind) []string {
	if kind == model.KindTrack {
		return []string{model.KeyISRC}
	}
	return nil
}

// LooksUp reports the identifiers tracks are looked up by.
func (a *Adapter) LooksUp(kind model.Kind) []string {
	if kind == model.KindTrack {
		return []string{model.KeyISRC}
	}
	return nil
}

// SearchTrack looks the track up by ISRC when the reference carries one,
// read from file tags or from a source merged earlier in the pass, and
// otherwise searches by title and main artist. Every page of tracks is
// enriched with its audio features.
func (a *Adapter) SearchTrack(ctx context.Context, ref *model.Track) iter.Seq2[provider.Result[*model.Track], error] {
	if a.authErr != nil {
		return provider.Fail[*model.Track](a.authErr)
	}
	return func(yield func(provider.Result[*model.Track], error) bool) {
		if isrc := findISRC(ref); isrc != "" {
			if err := a.wait(ctx); err != nil {
				yield(provider.Result[*model.Track]{}, err)
				return
			}
			tracks, _, err := a.searchTracks(ctx, "isrc:"+isrc, provider.Page{Number: 1, Size: 1})
			if err != nil {
				yield(provider.Result[*model.Track]{}, err)
				return
			}
			if len(tracks) > 0 {
				yield(provider.Result[*model.Track]{Entity: tracks[0], Exact: true, MatchedBy: model.KeyISRC}, nil)
				return
			}
			a.logger.Debug("isrc lookup found nothing, falling back to search", slog.String("isrc", isrc))
		}

		q := ref.Title
		if artists := ref.MainArtists().Names(); len(artists) > 0 {
			q += " artist:" + artists[0]
		}
		cfg := a.settings.Get(name)
		seq := provider.Paginate(ctx, a.limiter, name, cfg.PageSize, cfg.MaxPages,
			func(ctx context.Context, page provider.Page) ([]*model.Track, bool, error) {
				return a.searchTracks(ctx, q, page)
			})
		for r, err := range seq {
			if !yield(r, err) {
				return
			}
		}
	}
}

// searchTracks runs one page of a track search. The caller has already
// waited on the limiter for the search itself.
func (a *Adapter) searchTracks(ctx context.Context, q string, page provider.Page) ([]*model.Track, bool, error) {
	res, err := a.client.Search(ctx, q, spotifyclient.SearchTypeTrack,
		spotifyclient.Limit(page.Size), spotifyclient.Offset(page.Offset))
	if err != nil {
		return nil, false, mapError(err)
	}
	if res.Tracks == nil {
		return nil, false, nil
	}
	out := make([]*model.Track, 0, len(res.Tracks.Tracks))
	ids := make([]spotifyclient.ID, 0, len(res.Tracks.Tracks))
	for i := range res.Tracks.Tracks {
		out = append(out, mapTrack(&res.Tracks.Tracks[i]))
		ids = append(ids, res.Tracks.Tracks[i].ID)
	}
	a.addAudioFeatures(ctx, ids, out)
	return out, res.Tracks.Next != "", nil
}

// addAudioFeatures fills audio descriptors in place. Failures are logged and
// leave the tracks unchanged.
func (a *Adapter) addAudioFeatures(ctx context.Context, ids []spotifyclient.ID, tracks []*model.Track) {
	if len(ids) == 0 {
		return
	}
	if err := a.wait(ctx); err != nil {
		return
	}
	features, err := a.client.GetAudioFeatures(ctx, ids...)
	if err != nil {
		a.logger.Debug("audio features unavailable", slog.String("error", err.Error()))
		return
	}
	for i, f := range features {
		if f == nil || i >= len(tracks) {
			continue
		}
		applyFeatures(tracks[i], f)
	}
}

// SearchArtist searches artists by name. Spotify names that credit several
// artists are split and only the part closest to the reference is kept.
func (a *Adapter) SearchArtist(ctx context.Context, ref *model.Artist) iter.Seq2[provider.Result[*model.Artist], error] {
	if a.authErr != nil {
		return provider.Fail[*model.Artist](a.authErr)
	}
	if ref.Name == "" {
		return provider.Empty[*model.Artist]()
	}
	cfg := a.settings.Get(name)
	pages := provider.Paginate(ctx, a.limiter, name, cfg.PageSize, cfg.MaxPages,
		func(ctx context.Context, page provider.Page) ([]spotifyclient.FullArtist, bool, error) {
			res, err := a.client.Search(ctx, ref.Name, spotifyclient.SearchTypeArtist,
				spotifyclient.Limit(page.Size), spotifyclient.Offset(page.Offset))
			if err != nil {
				return nil, false, mapError(err)
			}
			if res.Artists == nil {
				return nil, false, nil
			}
			return res.Artists.Artists, res.Artists.Next != "", nil
		})
	return func(yield func(provider.Result[*model.Artist], error) bool) {
		for r, err := range pages {
			if err != nil {
				yield(provider.Result[*model.Artist]{}, err)
				return
			}
			art, ok := a.mapArtist(&r.Entity, ref.Name)
			if !ok {
				continue
			}
			if !yield(provider.Result[*model.Artist]{Entity: art}, nil) {
				return
			}
		}
	}
}

// SearchAlbum searches albums by title and first artist.
func (a *Adapter) SearchAlbum(ctx context.Context, ref *model.Album) iter.Seq2[provider.Result[*model.Album], error] {
	if a.authErr != nil {
		return provider.Fail[*model.Album](a.authErr)
	}
	q := "album:" + ref.Title
	if artists := ref.Artists.Names(); len(artists) > 0 {
		q += " artist:" + artists[0]
	}
	cfg := a.settings.Get(name)
	return provider.Paginate(ctx, a.limiter, name, cfg.PageSize, cfg.MaxPages,
		func(ctx context.Context, page provider.Page) ([]*model.Album, bool, error) {
			res, err := a.client.Search(ctx, q, spotifyclient.SearchTypeAlbum,
				spotifyclient.Limit(page.Size), spotifyclient.Offset(page.Offset))
			if err != nil {
				return nil, false, mapError(err)
			}
			if res.Albums == nil {
				return nil, false, nil
			}
			out := make([]*model.Album, 0, len(res.Albums.Albums))
			for i := range res.Albums.Albums {
				out = append(out, mapAlbum(&res.Albums.Albums[i], nil))
			}
			return out, res.Albums.Next != "", nil
		})
}

// SearchGenre yields nothing: Spotify has no genre search.
func (a *Adapter) SearchGenre(context.Context, *model.Genre) iter.Seq2[provider.Result[*model.Genre], error] {
	return provider.Empty[*model.Genre]()
}

func (a *Adapter) wait(ctx context.Context) error {
	if err := a.limiter.Wait(ctx, name); err != nil {
		return &provider.ErrProviderUnavailable{
			Provider: name,
			Cause:    fmt.Errorf("rate limiter: %w", err),
		}
	}
	return nil
}

// mapError converts client and token errors to provider errors.
func mapError(err error) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		return &provider.ErrAuthRequired{Provider: name}
	}
	var apiErr spotifyclient.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &provider.ErrAuthRequired{Provider: name}
		case http.StatusNotFound:
			return &provider.ErrNotFound{Provider: name, ID: apiErr.Message}
		case http.StatusTooManyRequests:
			return &provider.ErrProviderUnavailable{
				Provider:   name,
				Cause:      fmt.Errorf("rate limited by server: %s", apiErr.Message),
				RetryAfter: 5 * time.Second,
			}
		}
	}
	return &provider.ErrProviderUnavailable{Provider: name, Cause: err}
}

// findISRC returns an ISRC attached by any source.
func findISRC(t *model.Track) string {
	md := t.Metadata()
	for _, src := range md.Sources() {
		if isrc := md.Get(src).String(model.KeyISRC); isrc != "" {
			return isrc
		}
	}
	return ""
}

// flatArtists splits each credited Spotify artist into individual artists,
// tagging every part with the Spotify document of the credit.
func flatArtists(credits []spotifyclient.SimpleArtist) []*model.Artist {
	set := model.NewCreditSet()
	for _, c := range credits {
		for _, a := range model.SplitArtists(c.Name) {
			a.PutMetadata(string(name), model.Document{model.KeyID: string(c.ID)}.
				With(model.KeyURI, string(c.URI)).
				With(model.KeyURL, c.ExternalURLs["spotify"]))
			set.Add(a)
		}
	}
	return set.Artists()
}

func mapTrack(tr *spotifyclient.FullTrack) *model.Track {
	artists := flatArtists(tr.Artists)
	t := titles.Track(tr.Name, "")
	for _, a := range artists {
		t.MainArtists().Add(a)
	}
	for _, a := range t.Features().Artists() {
		if t.MainArtists().Contains(a) {
			t.Features().Remove(a)
		}
	}
	t.Album = mapAlbum(&tr.Album, artists)
	t.Disc = int(tr.DiscNumber)
	t.Number = int(tr.TrackNumber)
	t.Duration = time.Duration(tr.Duration) * time.Millisecond
	t.Explicit = tr.Explicit
	t.PutMetadata(string(name), model.Document{model.KeyID: string(tr.ID)}.
		With(model.KeyPopularity, int(tr.Popularity)).
		With(model.KeyMarkets, tr.AvailableMarkets).
		With(model.KeyURL, tr.ExternalURLs["spotify"]).
		With(model.KeyPreview, tr.PreviewURL).
		With(model.KeyURI, string(tr.URI)).
		With(model.KeyISRC, tr.ExternalIDs.ISRC))
	return t
}

func applyFeatures(t *model.Track, f *spotifyclient.AudioFeatures) {
	t.Audio.Danceability = float64(f.Danceability)
	t.Audio.Energy = float64(f.Energy)
	t.Audio.Valence = float64(f.Valence)
	key, mode := int(f.Key), int(f.Mode)
	if key >= 0 {
		t.Audio.Key = &key
	}
	t.Audio.Mode = &mode
	acoustic := f.Acousticness >= 0.5
	instrumental := f.Instrumentalness >= 0.5
	live := f.Liveness >= 0.8
	t.Audio.Acoustic = &acoustic
	t.Audio.Instrumental = &instrumental
	t.Audio.Live = &live
	if f.Tempo > 0 {
		t.BPM = int(math.Round(float64(f.Tempo)))
	}
}

func mapAlbum(al *spotifyclient.SimpleAlbum, artists []*model.Artist) *model.Album {
	if artists == nil {
		artists = flatArtists(al.Artists)
	}
	album := model.NewAlbum(al.Name, artists...)
	switch strings.ToLower(al.AlbumType) {
	case "album":
		album.Type = model.AlbumStudio
	case "single":
		album.Type = model.AlbumSingle
	case "compilation":
		album.Type = model.AlbumCompilation
	}
	album.ReleaseDate = al.ReleaseDate
	album.Cover = biggest(al.Images)
	album.PutMetadata(string(name), model.Document{model.KeyID: string(al.ID)}.
		With(model.KeyMarkets, al.AvailableMarkets).
		With(model.KeyURL, al.ExternalURLs["spotify"]).
		With(model.KeyURI, string(al.URI)))
	return album
}

func (a *Adapter) mapArtist(fa *spotifyclient.FullArtist, reference string) (*model.Artist, bool) {
	best, ok := a.matcher.BestArtist(model.SplitArtists(fa.Name), reference)
	if !ok {
		return nil, false
	}
	for _, g := range fa.Genres {
		best.Genres.Add(model.NewGenre(g))
	}
	best.Picture = biggest(fa.Images)
	best.PutMetadata(string(name), model.Document{model.KeyID: string(fa.ID)}.
		With(model.KeyPopularity, int(fa.Popularity)).
		With(model.KeyListeners, int(fa.Followers.Count)).
		With(model.KeyURL, fa.ExternalURLs["spotify"]).
		With(model.KeyURI, string(fa.URI)))
	return best, true
}

// biggest returns the URL of the image with the largest area.
func biggest(images []spotifyclient.Image) string {
	best, area := "", -1
	for _, img := range images {
		if d := int(img.Width) * int(img.Height); d > area {
			best, area = img.URL, d
		}
	}
	return best
}
