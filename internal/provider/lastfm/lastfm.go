package lastfm

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

	"github.com/sydlexius/crawler/internal/match"
	"github.com/sydlexius/crawler/internal/model"
	"github.com/sydlexius/crawler/internal/provider"
	"github.com/sydlexius/crawler/internal/titles"
)

const defaultBaseURL = "https://ws.audioscrobbler.com/2.0"

const name = provider.NameLastFM

// Adapter implements provider.Source for Last.fm.
type Adapter struct {
	client   *http.Client
	limiter  *provider.RateLimiterMap
	settings *provider.SettingsService
	matcher  *match.Matcher
	logger   *slog.Logger
	baseURL  string
}

// New creates a Last.fm adapter. A nil client gets a default one with a
// 10 second timeout.
func New(client *http.Client, limiter *provider.RateLimiterMap, settings *provider.SettingsService, logger *slog.Logger) *Adapter {
	baseURL := settings.Get(name).BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return NewWithBaseURL(client, limiter, settings, logger, baseURL)
}

// NewWithBaseURL creates a Last.fm adapter with a custom base URL (for testing).
func NewWithBaseURL(client *http.Client, limiter *provider.RateLimiterMap, settings *provider.SettingsService, logger *slog.Logger, baseURL string) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Adapter{
		client:   client,
		limiter:  limiter,
		settings: settings,
		matcher:  match.New(settings.Get(name).Threshold),
		logger:   logger.With(slog.String("provider", string(name))),
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

var _ provider.Keyed = (*Adapter)(nil)

// Name returns the provider name.
func (a *Adapter) Name() provider.ProviderName { return name }

// Supplies returns nil: the mbid in Last.fm documents is never looked up.
func (a *Adapter) Supplies(model.Kind) []string { return nil }

// LooksUp reports that tracks are looked up by MusicBrainz id.
func (a *Adapter) LooksUp(kind model.Kind) []string {
	if kind == model.KindTrack {
		return []string{model.KeyMBID}
	}
	return nil
}

// SearchTrack looks the track up by its MusicBrainz id when MusicBrainz was
// merged into the reference, in an earlier pass or earlier in this one. Otherwise, or when the lookup finds nothing, it searches by
// title once per main artist.
func (a *Adapter) SearchTrack(ctx context.Context, ref *model.Track) iter.Seq2[provider.Result[*model.Track], error] {
	return func(yield func(provider.Result[*model.Track], error) bool) {
		if mbid := ref.Metadata().Get(string(provider.NameMusicBrainz)).ID(); mbid != "" {
			t, err := a.trackByMBID(ctx, mbid)
			switch {
			case err == nil:
				yield(provider.Result[*model.Track]{Entity: t, Exact: true, MatchedBy: model.KeyMBID}, nil)
				return
			case provider.IsNotFound(err):
				a.logger.Debug("mbid lookup found nothing, falling back to search", slog.String("mbid", mbid))
			default:
				yield(provider.Result[*model.Track]{}, err)
				return
			}
		}

		artists := ref.MainArtists().Names()
		if len(artists) == 0 {
			artists = []string{""}
		}
		var seqs []iter.Seq2[provider.Result[*model.Track], error]
		for _, artist := range artists {
			seqs = append(seqs, a.searchTracks(ctx, ref.Title, artist))
		}
		for r, err := range provider.Concat(seqs...) {
			if !yield(r, err) {
				return
			}
		}
	}
}

func (a *Adapter) searchTracks(ctx context.Context, title, artist string) iter.Seq2[provider.Result[*model.Track], error] {
	cfg := a.settings.Get(name)
	return provider.Paginate(ctx, a.limiter, name, cfg.PageSize, cfg.MaxPages,
		func(ctx context.Context, page provider.Page) ([]*model.Track, bool, error) {
			params := url.Values{
				"method": {"track.search"},
				"track":  {title},
				"limit":  {strconv.Itoa(page.Size)},
				"page":   {strconv.Itoa(page.Number)},
			}
			if artist != "" {
				params.Set("artist", artist)
			}
			var resp TrackSearchResponse
			if err := a.call(ctx, params, &resp); err != nil {
				return nil, false, err
			}
			hits := resp.Results.TrackMatches.Track
			out := make([]*model.Track, 0, len(hits))
			for _, h := range hits {
				out = append(out, mapSearchTrack(h))
			}
			more := int64(resp.Results.TotalResults) > int64(page.Offset+len(hits))
			return out, more, nil
		})
}

func (a *Adapter) trackByMBID(ctx context.Context, mbid string) (*model.Track, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	var resp TrackInfoResponse
	if err := a.call(ctx, url.Values{"method": {"track.getInfo"}, "mbid": {mbid}}, &resp); err != nil {
		return nil, err
	}
	if resp.Track.Name == "" {
		return nil, &provider.ErrNotFound{Provider: name, ID: mbid}
	}
	return mapTrackInfo(&resp.Track), nil
}

// SearchArtist searches Last.fm for the reference name, keeps the closest
// name and yields its full artist info.
func (a *Adapter) SearchArtist(ctx context.Context, ref *model.Artist) iter.Seq2[provider.Result[*model.Artist], error] {
	return func(yield func(provider.Result[*model.Artist], error) bool) {
		if err := a.wait(ctx); err != nil {
			yield(provider.Result[*model.Artist]{}, err)
			return
		}
		params := url.Values{
			"method": {"artist.search"},
			"artist": {ref.Name},
			"limit":  {strconv.Itoa(a.settings.Get(name).PageSize)},
		}
		var resp ArtistSearchResponse
		if err := a.call(ctx, params, &resp); err != nil {
			yield(provider.Result[*model.Artist]{}, err)
			return
		}
		hits := resp.Results.ArtistMatches.Artist
		candidates := make([]*model.Artist, 0, len(hits))
		byKey := make(map[string]SearchArtist, len(hits))
		for _, h := range hits {
			c := model.NewArtist(h.Name)
			if _, ok := byKey[c.Key()]; !ok {
				byKey[c.Key()] = h
			}
			candidates = append(candidates, c)
		}
		best, ok := a.matcher.BestArtist(candidates, ref.Name)
		if !ok {
			return
		}

		if err := a.wait(ctx); err != nil {
			yield(provider.Result[*model.Artist]{}, err)
			return
		}
		hit := byKey[best.Key()]
		info := url.Values{"method": {"artist.getinfo"}}
		if hit.MBID != "" {
			info.Set("mbid", hit.MBID)
		} else {
			info.Set("artist", hit.Name)
		}
		var infoResp ArtistInfoResponse
		if err := a.call(ctx, info, &infoResp); err != nil {
			yield(provider.Result[*model.Artist]{}, err)
			return
		}
		if infoResp.Artist.Name == "" {
			return
		}
		yield(provider.Result[*model.Artist]{Entity: mapArtistInfo(&infoResp.Artist)}, nil)
	}
}

// SearchAlbum searches albums by title and yields every hit.
func (a *Adapter) SearchAlbum(ctx context.Context, ref *model.Album) iter.Seq2[provider.Result[*model.Album], error] {
	cfg := a.settings.Get(name)
	return provider.Paginate(ctx, a.limiter, name, cfg.PageSize, cfg.MaxPages,
		func(ctx context.Context, page provider.Page) ([]*model.Album, bool, error) {
			params := url.Values{
				"method": {"album.search"},
				"album":  {ref.Title},
				"limit":  {strconv.Itoa(page.Size)},
				"page":   {strconv.Itoa(page.Number)},
			}
			var resp AlbumSearchResponse
			if err := a.call(ctx, params, &resp); err != nil {
				return nil, false, err
			}
			hits := resp.Results.AlbumMatches.Album
			out := make([]*model.Album, 0, len(hits))
			for _, h := range hits {
				out = append(out, mapSearchAlbum(h))
			}
			more := int64(resp.Results.TotalResults) > int64(page.Offset+len(hits))
			return out, more, nil
		})
}

// SearchGenre fetches the tag of the same name.
func (a *Adapter) SearchGenre(ctx context.Context, ref *model.Genre) iter.Seq2[provider.Result[*model.Genre], error] {
	return func(yield func(provider.Result[*model.Genre], error) bool) {
		if err := a.wait(ctx); err != nil {
			yield(provider.Result[*model.Genre]{}, err)
			return
		}
		var resp TagInfoResponse
		if err := a.call(ctx, url.Values{"method": {"tag.getinfo"}, "tag": {ref.Name}}, &resp); err != nil {
			if provider.IsNotFound(err) {
				return
			}
			yield(provider.Result[*model.Genre]{}, err)
			return
		}
		if resp.Tag.Name == "" {
			return
		}
		g := model.NewGenre(resp.Tag.Name)
		g.Description = cleanWiki(resp.Tag.Wiki.Summary)
		g.PutMetadata(string(name), model.Document{model.KeyID: strings.ToLower(resp.Tag.Name)}.
			With(model.KeyPlays, int64(resp.Tag.Total)).
			With(model.KeyListeners, int64(resp.Tag.Reach)).
			With(model.KeyWiki, cleanWiki(resp.Tag.Wiki.Content)))
		yield(provider.Result[*model.Genre]{Entity: g}, nil)
	}
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

// call performs one API request and decodes the body into out.
func (a *Adapter) call(ctx context.Context, params url.Values, out any) error {
	apiKey, err := a.settings.GetAPIKey(ctx, name)
	if err != nil {
		return err
	}
	params.Set("api_key", apiKey)
	params.Set("format", "json")

	body, err := a.doRequest(ctx, a.baseURL+"/?"+params.Encode())
	if err != nil {
		return err
	}

	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != 0 {
		return mapAPIError(apiErr, params.Get("method"))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing %s response: %w", params.Get("method"), err)
	}
	return nil
}

func (a *Adapter) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", provider.UserAgent)
	req.Header.Set("Accept", "application/json")

	a.logger.Debug("requesting", slog.String("method", req.URL.Query().Get("method")))

	resp, err := a.client.Do(req) //nolint:gosec // URL constructed from trusted base + API params
	if err != nil {
		return nil, &provider.ErrProviderUnavailable{Provider: name, Cause: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrAuthRequired{Provider: name}
	}
	// Last.fm reports API errors with a 4xx status and a JSON body.
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
		return io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrProviderUnavailable{
			Provider:   name,
			Cause:      fmt.Errorf("HTTP %d", resp.StatusCode),
			RetryAfter: provider.RetryAfter(resp),
		}
	}

	return io.ReadAll(io.LimitReader(resp.Body, 512*1024))
}

func mapAPIError(e apiError, method string) error {
	switch e.Error {
	case errInvalidAPIKey:
		return &provider.ErrAuthRequired{Provider: name}
	case errRateLimited:
		return &provider.ErrProviderUnavailable{Provider: name, Cause: fmt.Errorf("rate limit exceeded: %s", e.Message)}
	case errInvalidParameters:
		return &provider.ErrNotFound{Provider: name, ID: method}
	default:
		return fmt.Errorf("%s: last.fm error %d: %s", method, e.Error, e.Message)
	}
}

func mapSearchTrack(h SearchTrack) *model.Track {
	t := titles.Track(h.Name, h.Artist)
	t.PutMetadata(string(name), trackDocument(h.MBID, h.URL).
		With(model.KeyListeners, int64(h.Listeners)))
	return t
}

func mapTrackInfo(info *TrackInfo) *model.Track {
	t := titles.Track(info.Name, info.Artist.Name)
	t.Duration = time.Duration(info.Duration) * time.Millisecond
	t.Plays = int64(info.Playcount)
	for _, tag := range info.TopTags.Names() {
		t.Genres.Add(model.NewGenre(tag))
	}
	if info.Album != nil && info.Album.Title != "" {
		t.Album = model.NewAlbum(info.Album.Title, model.SplitArtists(info.Album.Artist)...)
	}
	doc := trackDocument(info.MBID, info.URL).
		With(model.KeyListeners, int64(info.Listeners)).
		With(model.KeyPlays, int64(info.Playcount)).
		With(model.KeyTags, info.TopTags.Names())
	if info.Wiki != nil {
		doc.With(model.KeyWiki, cleanWiki(info.Wiki.Content))
	}
	t.PutMetadata(string(name), doc)
	return t
}

// trackDocument uses the MusicBrainz id as the Last.fm id when there is one
// and the track URL otherwise; Last.fm has no ids of its own.
func trackDocument(mbid, trackURL string) model.Document {
	id := mbid
	if id == "" {
		id = trackURL
	}
	return model.Document{model.KeyID: id}.
		With(model.KeyMBID, mbid).
		With(model.KeyURL, trackURL)
}

func mapArtistInfo(info *ArtistInfo) *model.Artist {
	artist := model.NewArtist(info.Name)
	artist.Plays = int64(info.Stats.Playcount)
	for _, tag := range info.Tags.Names() {
		artist.Genres.Add(model.NewGenre(tag))
	}
	artist.PutMetadata(string(name), trackDocument(info.MBID, info.URL).
		With(model.KeyListeners, int64(info.Stats.Listeners)).
		With(model.KeyPlays, int64(info.Stats.Playcount)).
		With(model.KeyTags, info.Tags.Names()).
		With(model.KeyWiki, cleanWiki(info.Bio.Content)))
	return artist
}

func mapSearchAlbum(h SearchAlbum) *model.Album {
	al := model.NewAlbum(h.Name, model.SplitArtists(h.Artist)...)
	for _, img := range h.Image {
		// Images are listed from smallest to largest.
		if img.URL != "" {
			al.Cover = img.URL
		}
	}
	al.PutMetadata(string(name), trackDocument(h.MBID, h.URL))
	return al
}

// cleanWiki removes the Last.fm attribution link appended to wiki texts.
func cleanWiki(text string) string {
	if idx := strings.Index(text, "<a href=\"https://www.last.fm"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
