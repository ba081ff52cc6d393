package deezer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sydlexius/crawler/internal/model"
	"github.com/sydlexius/crawler/internal/provider"
	"github.com/sydlexius/crawler/internal/titles"
)

const defaultBaseURL = "https://api.deezer.com"

const name = provider.NameDeezer

// Adapter implements provider.Source for Deezer's public API.
// No authentication is required.
type Adapter struct {
	client   *http.Client
	limiter  *provider.RateLimiterMap
	settings *provider.SettingsService
	logger   *slog.Logger
	baseURL  string
}

// New creates a Deezer adapter. A nil client gets a default one with a
// 10 second timeout.
func New(client *http.Client, limiter *provider.RateLimiterMap, settings *provider.SettingsService, logger *slog.Logger) *Adapter {
	baseURL := settings.Get(name).BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return NewWithBaseURL(client, limiter, settings, logger, baseURL)
}

// NewWithBaseURL creates a Deezer adapter with a custom base URL (for testing).
func NewWithBaseURL(client *http.Client, limiter *provider.RateLimiterMap, settings *provider.SettingsService, logger *slog.Logger, baseURL string) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Adapter{
		client:   client,
		limiter:  limiter,
		settings: settings,
		logger:   logger.With(slog.String("provider", string(name))),
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

var _ provider.Keyed = (*Adapter)(nil)

// Name returns the provider identifier.
func (a *Adapter) Name() provider.ProviderName { return name }

// Supplies reports the identifiers Deezer track documents carry.
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
// read from file tags or from a source merged earlier in the pass. Otherwise
// it runs an advanced track search on title and main artist.
func (a *Adapter) SearchTrack(ctx context.Context, ref *model.Track) iter.Seq2[provider.Result[*model.Track], error] {
	return func(yield func(provider.Result[*model.Track], error) bool) {
		if isrc := findISRC(ref); isrc != "" {
			t, err := a.trackByISRC(ctx, isrc)
			switch {
			case err == nil:
				yield(provider.Result[*model.Track]{Entity: t, Exact: true, MatchedBy: model.KeyISRC}, nil)
				return
			case provider.IsNotFound(err):
				a.logger.Debug("isrc lookup found nothing, falling back to search", slog.String("isrc", isrc))
			default:
				yield(provider.Result[*model.Track]{}, err)
				return
			}
		}

		q := fmt.Sprintf("track:%q", ref.Title)
		if artists := ref.MainArtists().Names(); len(artists) > 0 {
			q += fmt.Sprintf(" artist:%q", artists[0])
		}
		seq := paginate(ctx, a, "/search/track", q, func(r trackResult) *model.Track { return mapTrack(&r) })
		for r, err := range seq {
			if !yield(r, err) {
				return
			}
		}
	}
}

func (a *Adapter) trackByISRC(ctx context.Context, isrc string) (*model.Track, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	var t trackResult
	if err := a.get(ctx, "/track/isrc:"+url.PathEscape(isrc), nil, &t); err != nil {
		return nil, err
	}
	if t.ID == 0 {
		return nil, &provider.ErrNotFound{Provider: name, ID: isrc}
	}
	return mapTrack(&t), nil
}

// SearchArtist searches artists by name.
func (a *Adapter) SearchArtist(ctx context.Context, ref *model.Artist) iter.Seq2[provider.Result[*model.Artist], error] {
	if ref.Name == "" {
		return provider.Empty[*model.Artist]()
	}
	return paginate(ctx, a, "/search/artist", ref.Name, func(r artistResult) *model.Artist { return mapArtist(&r) })
}

// SearchAlbum searches albums by title and first artist.
func (a *Adapter) SearchAlbum(ctx context.Context, ref *model.Album) iter.Seq2[provider.Result[*model.Album], error] {
	q := fmt.Sprintf("album:%q", ref.Title)
	if artists := ref.Artists.Names(); len(artists) > 0 {
		q += fmt.Sprintf(" artist:%q", artists[0])
	}
	return paginate(ctx, a, "/search/album", q, func(r albumResult) *model.Album { return mapAlbum(&r) })
}

// SearchGenre yields Deezer's whole genre list, which is short.
func (a *Adapter) SearchGenre(ctx context.Context, _ *model.Genre) iter.Seq2[provider.Result[*model.Genre], error] {
	return func(yield func(provider.Result[*model.Genre], error) bool) {
		if err := a.wait(ctx); err != nil {
			yield(provider.Result[*model.Genre]{}, err)
			return
		}
		var resp listResponse[genreResult]
		if err := a.get(ctx, "/genre", nil, &resp); err != nil {
			yield(provider.Result[*model.Genre]{}, err)
			return
		}
		for _, g := range resp.Data {
			genre := model.NewGenre(g.Name)
			genre.PutMetadata(string(name), model.Document{model.KeyID: strconv.Itoa(g.ID)}.
				With("picture", g.Picture))
			if !yield(provider.Result[*model.Genre]{Entity: genre}, nil) {
				return
			}
		}
	}
}

// paginate walks a Deezer list endpoint using index/limit paging.
func paginate[R any, T any](ctx context.Context, a *Adapter, path, q string, convert func(R) T) iter.Seq2[provider.Result[T], error] {
	cfg := a.settings.Get(name)
	return provider.Paginate(ctx, a.limiter, name, cfg.PageSize, cfg.MaxPages,
		func(ctx context.Context, page provider.Page) ([]T, bool, error) {
			params := url.Values{
				"q":     {q},
				"index": {strconv.Itoa(page.Offset)},
				"limit": {strconv.Itoa(page.Size)},
			}
			var resp listResponse[R]
			if err := a.get(ctx, path, params, &resp); err != nil {
				return nil, false, err
			}
			out := make([]T, 0, len(resp.Data))
			for _, r := range resp.Data {
				out = append(out, convert(r))
			}
			return out, resp.Next != "", nil
		})
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

// get requests path and decodes the body into out, mapping Deezer's inline
// error objects to provider errors.
func (a *Adapter) get(ctx context.Context, path string, params url.Values, out any) error {
	reqURL := a.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	body, err := a.doRequest(ctx, reqURL)
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("parsing %s response: %w", path, err)
	}
	if env.Error != nil {
		switch env.Error.Code {
		case errDataNotFound:
			return &provider.ErrNotFound{Provider: name, ID: path}
		case errQuotaExceeded:
			return &provider.ErrProviderUnavailable{Provider: name, Cause: fmt.Errorf("quota exceeded: %s", env.Error.Message), RetryAfter: 5 * time.Second}
		default:
			return fmt.Errorf("%s: deezer error %d: %s", path, env.Error.Code, env.Error.Message)
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing %s response: %w", path, err)
	}
	return nil
}

// doRequest executes a GET request and returns the response body.
func (a *Adapter) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", provider.UserAgent)

	resp, err := a.client.Do(req) //nolint:gosec // URL constructed from adapter config and validated inputs
	if err != nil {
		return nil, &provider.ErrProviderUnavailable{
			Provider: name,
			Cause:    err,
		}
	}
	defer resp.Body.Close() //nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
		// continue
	case http.StatusNotFound:
		return nil, &provider.ErrNotFound{Provider: name, ID: reqURL}
	case http.StatusTooManyRequests:
		return nil, &provider.ErrProviderUnavailable{
			Provider:   name,
			Cause:      fmt.Errorf("rate limited by server"),
			RetryAfter: provider.RetryAfter(resp),
		}
	default:
		return nil, &provider.ErrProviderUnavailable{
			Provider: name,
			Cause:    fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	return io.ReadAll(io.LimitReader(resp.Body, 1*1024*1024))
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

func mapTrack(r *trackResult) *model.Track {
	t := titles.Track(r.Title, r.Artist.Name)
	for _, c := range r.Contributors {
		if strings.EqualFold(c.Role, "featured") && !t.MainArtists().Contains(model.NewArtist(c.Name)) {
			t.Features().Add(model.NewArtist(c.Name))
		}
	}
	t.Duration = time.Duration(r.Duration) * time.Second
	t.Explicit = r.ExplicitLyrics
	t.BPM = int(r.BPM + 0.5)
	t.Disc = r.DiskNumber
	t.Number = r.TrackPosition
	if r.Album.Title != "" {
		t.Album = mapAlbum(&r.Album)
		if t.Album.Artists.Len() == 0 {
			t.Album.Artists.Add(model.NewArtist(r.Artist.Name))
		}
	}
	t.PutMetadata(string(name), model.Document{model.KeyID: strconv.Itoa(r.ID)}.
		With(model.KeyURL, r.Link).
		With(model.KeyPreview, r.Preview).
		With(model.KeyPopularity, r.Rank).
		With(model.KeyISRC, r.ISRC).
		With(model.KeyMarkets, r.AvailableIn))
	return t
}

func mapArtist(r *artistResult) *model.Artist {
	a := model.NewArtist(r.Name)
	if r.PictureXL != "" && !isDefaultPicture(r.PictureXL) {
		a.Picture = r.PictureXL
	} else if r.PictureBig != "" && !isDefaultPicture(r.PictureBig) {
		a.Picture = r.PictureBig
	}
	a.PutMetadata(string(name), model.Document{model.KeyID: strconv.Itoa(r.ID)}.
		With(model.KeyURL, r.Link).
		With(model.KeyListeners, r.NbFan))
	return a
}

func mapAlbum(r *albumResult) *model.Album {
	al := model.NewAlbum(r.Title)
	if r.Artist.Name != "" {
		al.Artists.Add(model.NewArtist(r.Artist.Name))
	}
	switch r.RecordType {
	case "single", "ep":
		al.Type = model.AlbumSingle
	case "compile":
		al.Type = model.AlbumCompilation
	case "album":
		al.Type = model.AlbumStudio
	}
	al.Cover = r.CoverXL
	al.ReleaseDate = r.ReleaseDate
	al.PutMetadata(string(name), model.Document{model.KeyID: strconv.Itoa(r.ID)}.
		With(model.KeyURL, r.Link))
	return al
}

// isDefaultPicture reports whether a Deezer picture URL is the generic placeholder.
// Deezer returns URLs containing "/images/artist//" (double slash) for artists
// without a photo.
func isDefaultPicture(u string) bool {
	return strings.Contains(u, "/images/artist//")
}
