package musicbrainz

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sydlexius/crawler/internal/model"
	"github.com/sydlexius/crawler/internal/provider"
	"github.com/sydlexius/crawler/internal/titles"
)

const defaultBaseURL = "https://musicbrainz.org/ws/2"

const name = provider.NameMusicBrainz

// Adapter implements provider.Source for MusicBrainz. Documents it attaches
// carry the MusicBrainz id, which other sources use for exact lookups.
type Adapter struct {
	client   *http.Client
	limiter  *provider.RateLimiterMap
	settings *provider.SettingsService
	logger   *slog.Logger
	baseURL  string
}

// New creates a MusicBrainz adapter. A nil client gets a default one with a
// 10 second timeout.
func New(client *http.Client, limiter *provider.RateLimiterMap, settings *provider.SettingsService, logger *slog.Logger) *Adapter {
	baseURL := settings.Get(name).BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return NewWithBaseURL(client, limiter, settings, logger, baseURL)
}

// NewWithBaseURL creates a MusicBrainz adapter with a custom base URL (for testing).
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

// Name returns the provider name.
func (a *Adapter) Name() provider.ProviderName { return name }

// Supplies reports the identifiers MusicBrainz track documents carry.
func (a *Adapter) Supplies(kind model.Kind) []string {
	if kind == model.KindTrack {
		return []string{model.KeyMBID, model.KeyISRC}
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

// SearchTrack resolves the recording by ISRC when the reference carries one
// from file tags or an earlier source, and otherwise runs a recording search
// on title and main artists.
func (a *Adapter) SearchTrack(ctx context.Context, ref *model.Track) iter.Seq2[provider.Result[*model.Track], error] {
	return func(yield func(provider.Result[*model.Track], error) bool) {
		if isrc := findISRC(ref); isrc != "" {
			t, err := a.recordingByISRC(ctx, isrc)
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

		clauses := []string{field("recording", ref.Title)}
		for _, artist := range ref.MainArtists().Names() {
			clauses = append(clauses, field("artist", artist))
		}
		seq := search(ctx, a, "recording", strings.Join(clauses, " AND "), func(r *searchResponse) []*model.Track {
			out := make([]*model.Track, 0, len(r.Recordings))
			for i := range r.Recordings {
				out = append(out, mapRecording(&r.Recordings[i]))
			}
			return out
		})
		for r, err := range seq {
			if !yield(r, err) {
				return
			}
		}
	}
}

func (a *Adapter) recordingByISRC(ctx context.Context, isrc string) (*model.Track, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	var resp isrcResponse
	params := url.Values{"inc": {"artist-credits+releases+isrcs"}}
	if err := a.get(ctx, "/isrc/"+url.PathEscape(isrc), params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Recordings) == 0 {
		return nil, &provider.ErrNotFound{Provider: name, ID: isrc}
	}
	return mapRecording(&resp.Recordings[0]), nil
}

// SearchArtist searches artists by name.
func (a *Adapter) SearchArtist(ctx context.Context, ref *model.Artist) iter.Seq2[provider.Result[*model.Artist], error] {
	if ref.Name == "" {
		return provider.Empty[*model.Artist]()
	}
	return search(ctx, a, "artist", field("artist", ref.Name), func(r *searchResponse) []*model.Artist {
		out := make([]*model.Artist, 0, len(r.Artists))
		for i := range r.Artists {
			out = append(out, mapArtist(&r.Artists[i]))
		}
		return out
	})
}

// SearchAlbum searches release groups by title and artists.
func (a *Adapter) SearchAlbum(ctx context.Context, ref *model.Album) iter.Seq2[provider.Result[*model.Album], error] {
	clauses := []string{field("releasegroup", ref.Title)}
	for _, artist := range ref.Artists.Names() {
		clauses = append(clauses, field("artist", artist))
	}
	return search(ctx, a, "release-group", strings.Join(clauses, " AND "), func(r *searchResponse) []*model.Album {
		out := make([]*model.Album, 0, len(r.ReleaseGroups))
		for i := range r.ReleaseGroups {
			out = append(out, mapReleaseGroup(&r.ReleaseGroups[i]))
		}
		return out
	})
}

// SearchGenre searches the tag index.
func (a *Adapter) SearchGenre(ctx context.Context, ref *model.Genre) iter.Seq2[provider.Result[*model.Genre], error] {
	if ref.Name == "" {
		return provider.Empty[*model.Genre]()
	}
	return search(ctx, a, "tag", field("tag", ref.Name), func(r *searchResponse) []*model.Genre {
		out := make([]*model.Genre, 0, len(r.Tags))
		for _, t := range r.Tags {
			g := model.NewGenre(t.Name)
			g.PutMetadata(string(name), model.Document{model.KeyID: strings.ToLower(t.Name)})
			out = append(out, g)
		}
		return out
	})
}

// search pages through a Lucene search endpoint using offset/limit.
func search[T any](ctx context.Context, a *Adapter, entity, query string, convert func(*searchResponse) []T) iter.Seq2[provider.Result[T], error] {
	cfg := a.settings.Get(name)
	return provider.Paginate(ctx, a.limiter, name, cfg.PageSize, cfg.MaxPages,
		func(ctx context.Context, page provider.Page) ([]T, bool, error) {
			params := url.Values{
				"query":  {query},
				"limit":  {strconv.Itoa(page.Size)},
				"offset": {strconv.Itoa(page.Offset)},
			}
			var resp searchResponse
			if err := a.get(ctx, "/"+entity, params, &resp); err != nil {
				return nil, false, err
			}
			items := convert(&resp)
			return items, resp.Count > page.Offset+len(items), nil
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

// get requests path with fmt=json and decodes the body into out.
func (a *Adapter) get(ctx context.Context, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("fmt", "json")
	body, err := a.doRequest(ctx, a.baseURL+path+"?"+params.Encode())
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing %s response: %w", path, err)
	}
	return nil
}

// doRequest executes an HTTP GET with standard headers. Rate limiting is
// done by the caller.
func (a *Adapter) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", provider.UserAgent)
	req.Header.Set("Accept", "application/json")

	a.logger.Debug("requesting", slog.String("url", reqURL))

	resp, err := a.client.Do(req) //nolint:gosec // URL constructed from trusted base + query parameters
	if err != nil {
		return nil, &provider.ErrProviderUnavailable{
			Provider: name,
			Cause:    err,
		}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &provider.ErrNotFound{
			Provider: name,
			ID:       reqURL,
		}
	}

	if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		retry := provider.RetryAfter(resp)
		if retry == 0 {
			retry = 2 * time.Second
		}
		return nil, &provider.ErrProviderUnavailable{
			Provider:   name,
			Cause:      fmt.Errorf("HTTP %d", resp.StatusCode),
			RetryAfter: retry,
		}
	}

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&e)
		cause := fmt.Errorf("unexpected HTTP %d", resp.StatusCode)
		if e.Error != "" {
			cause = fmt.Errorf("HTTP %d: %s", resp.StatusCode, e.Error)
		}
		return nil, &provider.ErrProviderUnavailable{
			Provider: name,
			Cause:    cause,
		}
	}

	return io.ReadAll(io.LimitReader(resp.Body, 512*1024))
}

// field builds a quoted Lucene field clause.
func field(key, value string) string {
	return key + `:"` + luceneEscaper.Replace(value) + `"`
}

var luceneEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

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

// splitCredits separates main artists from those credited after a
// "feat." join phrase.
func splitCredits(credits []MBArtistCredit) (main, features []*model.Artist) {
	featuring := false
	for _, c := range credits {
		a := model.NewArtist(c.Artist.Name)
		if a.Name == "" {
			a = model.NewArtist(c.Name)
		}
		a.PutMetadata(string(name), model.Document{model.KeyID: c.Artist.ID})
		if featuring {
			features = append(features, a)
		} else {
			main = append(main, a)
		}
		jp := strings.ToLower(c.JoinPhrase)
		if strings.Contains(jp, "feat") || strings.Contains(jp, " ft") || strings.Contains(jp, " with ") {
			featuring = true
		}
	}
	return main, features
}

func mapRecording(r *MBRecording) *model.Track {
	main, features := splitCredits(r.ArtistCredit)
	t := titles.Track(r.Title, "")
	for _, a := range main {
		t.MainArtists().Add(a)
	}
	for _, a := range features {
		if !t.MainArtists().Contains(a) {
			t.Features().Add(a)
		}
	}
	if r.Length > 0 {
		t.Duration = time.Duration(r.Length) * time.Millisecond
	}
	t.Genres = tagGenres(r.Tags)

	if rel := firstRelease(r.Releases); rel != nil {
		t.Album = mapReleaseGroup(&rel.ReleaseGroup)
		if t.Album.Title == "" {
			t.Album.Title = rel.Title
		}
		if t.Album.ReleaseDate == "" {
			t.Album.ReleaseDate = rel.Date
		}
		if t.Album.Artists.Len() == 0 {
			for _, a := range main {
				t.Album.Artists.Add(a)
			}
		}
		if len(rel.Media) > 0 {
			t.Disc = rel.Media[0].Position
			if len(rel.Media[0].Track) > 0 {
				t.Number, _ = strconv.Atoi(rel.Media[0].Track[0].Number)
			}
		}
	}

	doc := model.Document{model.KeyID: r.ID}.
		With(model.KeyURL, "https://musicbrainz.org/recording/"+r.ID)
	if len(r.ISRCs) > 0 {
		doc = doc.With(model.KeyISRC, r.ISRCs[0])
	}
	if r.Disambiguation != "" {
		doc = doc.With("disambiguation", r.Disambiguation)
	}
	t.PutMetadata(string(name), doc)
	return t
}

// firstRelease prefers the earliest dated release.
func firstRelease(releases []MBRelease) *MBRelease {
	if len(releases) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(releases); i++ {
		d := releases[i].Date
		if d != "" && (releases[best].Date == "" || d < releases[best].Date) {
			best = i
		}
	}
	return &releases[best]
}

func mapArtist(mb *MBArtist) *model.Artist {
	a := model.NewArtist(mb.Name)
	a.Type = mapArtistType(mb.Type)
	for _, g := range mb.Genres {
		a.Genres.Add(model.NewGenre(g.Name))
	}
	if a.Genres.Len() == 0 {
		a.Genres = tagGenres(mb.Tags)
	}
	a.PutMetadata(string(name), model.Document{model.KeyID: mb.ID}.
		With(model.KeyURL, "https://musicbrainz.org/artist/"+mb.ID).
		With("country", mb.Country).
		With("disambiguation", mb.Disambiguation).
		With("begin", mb.LifeSpan.Begin).
		With("end", mb.LifeSpan.End))
	return a
}

func mapReleaseGroup(rg *MBReleaseGroup) *model.Album {
	main, _ := splitCredits(rg.ArtistCredit)
	al := model.NewAlbum(rg.Title, main...)
	al.Type = mapAlbumType(rg.PrimaryType, rg.SecondaryTypes)
	al.ReleaseDate = rg.FirstReleaseDate
	al.Genres = tagGenres(rg.Tags)
	if rg.ID != "" {
		al.PutMetadata(string(name), model.Document{model.KeyID: rg.ID}.
			With(model.KeyURL, "https://musicbrainz.org/release-group/"+rg.ID))
	}
	return al
}

// tagGenres keeps tags that at least one user voted for.
func tagGenres(tags []MBTag) model.GenreSet {
	var set model.GenreSet
	for _, t := range tags {
		if t.Name != "" && t.Count > 0 {
			set.Add(model.NewGenre(t.Name))
		}
	}
	return set
}

// mapArtistType normalizes MusicBrainz type strings.
func mapArtistType(mbType string) model.ArtistType {
	switch mbType {
	case "Person", "Character":
		return model.ArtistSolo
	case "Group", "Orchestra", "Choir":
		return model.ArtistGroup
	default:
		return ""
	}
}

func mapAlbumType(primary string, secondary []string) model.AlbumType {
	if slices.Contains(secondary, "Compilation") {
		return model.AlbumCompilation
	}
	switch primary {
	case "Album":
		return model.AlbumStudio
	case "Single", "EP":
		return model.AlbumSingle
	default:
		return ""
	}
}
