package resolve

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sydlexius/crawler/internal/event"
	"github.com/sydlexius/crawler/internal/model"
	"github.com/sydlexius/crawler/internal/provider"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockSource implements provider.Source for testing.
type mockSource struct {
	name     provider.ProviderName
	calls    atomic.Int32
	trackFn  func(ctx context.Context, ref *model.Track) iter.Seq2[provider.Result[*model.Track], error]
	artistFn func(ctx context.Context, ref *model.Artist) iter.Seq2[provider.Result[*model.Artist], error]
}

func (m *mockSource) Name() provider.ProviderName { return m.name }

func (m *mockSource) SearchTrack(ctx context.Context, ref *model.Track) iter.Seq2[provider.Result[*model.Track], error] {
	m.calls.Add(1)
	if m.trackFn != nil {
		return m.trackFn(ctx, ref)
	}
	return provider.Empty[*model.Track]()
}

func (m *mockSource) SearchArtist(ctx context.Context, ref *model.Artist) iter.Seq2[provider.Result[*model.Artist], error] {
	m.calls.Add(1)
	if m.artistFn != nil {
		return m.artistFn(ctx, ref)
	}
	return provider.Empty[*model.Artist]()
}

func (m *mockSource) SearchAlbum(context.Context, *model.Album) iter.Seq2[provider.Result[*model.Album], error] {
	m.calls.Add(1)
	return provider.Empty[*model.Album]()
}

func (m *mockSource) SearchGenre(context.Context, *model.Genre) iter.Seq2[provider.Result[*model.Genre], error] {
	m.calls.Add(1)
	return provider.Empty[*model.Genre]()
}

func tracks(ts ...*model.Track) func(context.Context, *model.Track) iter.Seq2[provider.Result[*model.Track], error] {
	return func(context.Context, *model.Track) iter.Seq2[provider.Result[*model.Track], error] {
		return provider.Slice(ts)
	}
}

func candidate(source string, id string, title string, artists ...string) *model.Track {
	var as []*model.Artist
	for _, a := range artists {
		as = append(as, model.NewArtist(a))
	}
	t := model.NewTrack(title, as...)
	t.PutMetadata(source, model.Document{model.KeyID: id})
	return t
}

func newOrchestrator(opts Options, sources ...provider.Source) *Orchestrator {
	reg := provider.NewRegistry()
	for _, s := range sources {
		reg.Register(s)
	}
	return NewOrchestrator(reg, nil, testLogger(), opts)
}

func TestResolveTrackMergesBestCandidate(t *testing.T) {
	winner := candidate("spotify", "good", "Wake Me Up", "Avicii")
	winner.BPM = 124
	winner.Duration = 247 * time.Second
	spotify := &mockSource{
		name: provider.NameSpotify,
		trackFn: tracks(
			candidate("spotify", "bad", "Wake Me Up (Karaoke)", "Karaoke Kings"),
			winner,
			candidate("spotify", "far", "Levels", "Avicii"),
		),
	}

	master := model.NewTrack("Wake Me Up", model.NewArtist("Avicii"))
	report, err := newOrchestrator(Options{}, spotify).ResolveTrack(context.Background(), master)
	if err != nil {
		t.Fatalf("ResolveTrack: %v", err)
	}
	if !report.Merged() || report.State != StateMerged {
		t.Fatalf("state = %s, want merged", report.State)
	}
	if got := master.Metadata().Get("spotify").ID(); got != "good" {
		t.Errorf("merged id = %q, want good", got)
	}
	if master.BPM != 124 || master.Duration != 247*time.Second {
		t.Errorf("fields not merged: bpm %d duration %v", master.BPM, master.Duration)
	}
	out := report.Outcomes[0]
	if out.Status != StatusMerged || out.Scanned != 3 {
		t.Errorf("outcome = %+v", out)
	}
	if report.RunID == "" {
		t.Error("expected a run id")
	}
}

func TestResolveSkipsAlreadyResolvedSource(t *testing.T) {
	lastfm := &mockSource{name: provider.NameLastFM, trackFn: tracks(candidate("lastfm", "x", "One", "U2"))}

	master := model.NewTrack("One", model.NewArtist("U2"))
	master.PutMetadata("lastfm", model.Document{model.KeyID: "existing"})

	report, err := newOrchestrator(Options{}, lastfm).ResolveTrack(context.Background(), master)
	if err != nil {
		t.Fatal(err)
	}
	if n := lastfm.calls.Load(); n != 0 {
		t.Errorf("expected no search call, got %d", n)
	}
	if report.Outcomes[0].Status != StatusSkipped || report.State != StateNoop {
		t.Errorf("report = %+v", report)
	}
	if master.Metadata().Get("lastfm").ID() != "existing" {
		t.Error("skipped source must not touch the master")
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	deezer := &mockSource{name: provider.NameDeezer, trackFn: tracks(candidate("deezer", "1", "One", "U2"))}
	o := newOrchestrator(Options{}, deezer)
	master := model.NewTrack("One", model.NewArtist("U2"))

	if _, err := o.ResolveTrack(context.Background(), master); err != nil {
		t.Fatal(err)
	}
	second, err := o.ResolveTrack(context.Background(), master)
	if err != nil {
		t.Fatal(err)
	}
	if second.State != StateNoop || deezer.calls.Load() != 1 {
		t.Errorf("second pass state %s, calls %d", second.State, deezer.calls.Load())
	}
}

func TestResolveIsolatesSourceFailures(t *testing.T) {
	failing := &mockSource{
		name: provider.NameLastFM,
		trackFn: func(context.Context, *model.Track) iter.Seq2[provider.Result[*model.Track], error] {
			return provider.Fail[*model.Track](&provider.ErrProviderUnavailable{Provider: provider.NameLastFM, Cause: errors.New("503")})
		},
	}
	mismatch := &mockSource{
		name: provider.NameSpotify,
		trackFn: tracks(func() *model.Track {
			t := model.NewVersionTrack("One", "Remix", model.NewArtist("U2"))
			t.PutMetadata("spotify", model.Document{model.KeyID: "remix"})
			return t
		}()),
	}
	empty := &mockSource{name: provider.NameMusicBrainz}
	good := &mockSource{name: provider.NameDeezer, trackFn: tracks(candidate("deezer", "1", "One", "U2"))}

	bus := event.NewBus(testLogger(), 64)
	var mu sync.Mutex
	var failed []string
	bus.Subscribe(func(e event.Event) {
		mu.Lock()
		defer mu.Unlock()
		failed = append(failed, e.String("source"))
	}, event.SourceFailed)
	go bus.Start()

	master := model.NewTrack("One", model.NewArtist("U2"))
	o := newOrchestrator(Options{Bus: bus, Workers: 4}, failing, mismatch, empty, good)
	report, err := o.ResolveTrack(context.Background(), master)
	if err != nil {
		t.Fatalf("per-source failures must not fail the pass: %v", err)
	}
	bus.Stop()
	<-bus.Finished()

	want := []Status{StatusFailed, StatusFailed, StatusNoMatch, StatusMerged}
	for i, s := range want {
		if report.Outcomes[i].Status != s {
			t.Errorf("outcome %d (%s) = %s, want %s", i, report.Outcomes[i].Source, report.Outcomes[i].Status, s)
		}
	}
	if len(report.Failed()) != 2 {
		t.Errorf("Failed() = %d, want 2", len(report.Failed()))
	}
	if master.Metadata().Has("spotify") {
		t.Error("mismatched candidate must not be merged")
	}
	if !master.Metadata().Has("deezer") {
		t.Error("later sources must still be merged")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(failed) != 2 {
		t.Errorf("failure events = %v", failed)
	}
}

func TestResolveMergesInConfiguredOrder(t *testing.T) {
	a := candidate("deezer", "d", "One", "U2")
	a.Audio.Energy = 0.1
	b := candidate("spotify", "s", "One", "U2")
	b.Audio.Energy = 0.9

	deezer := &mockSource{name: provider.NameDeezer, trackFn: tracks(a)}
	spotify := &mockSource{name: provider.NameSpotify, trackFn: tracks(b)}

	master := model.NewTrack("One", model.NewArtist("U2"))
	o := newOrchestrator(Options{Active: []provider.ProviderName{provider.NameSpotify, provider.NameDeezer}}, deezer, spotify)
	report, err := o.ResolveTrack(context.Background(), master)
	if err != nil {
		t.Fatal(err)
	}
	if report.Outcomes[0].Source != provider.NameSpotify {
		t.Fatalf("first outcome is %s, want spotify", report.Outcomes[0].Source)
	}
	// Deezer merges last, so its value wins.
	if master.Audio.Energy != 0.1 {
		t.Errorf("energy = %v, want 0.1", master.Audio.Energy)
	}
}

func TestResolveExactResultDominates(t *testing.T) {
	exact := candidate("lastfm", "by-mbid", "One (Live)", "U2")
	lastfm := &mockSource{
		name: provider.NameLastFM,
		trackFn: func(context.Context, *model.Track) iter.Seq2[provider.Result[*model.Track], error] {
			return provider.Concat(
				provider.Slice([]*model.Track{candidate("lastfm", "fuzzy", "One", "U2")}),
				provider.Exact(exact, model.KeyMBID),
			)
		},
	}
	master := model.NewTrack("One", model.NewArtist("U2"))
	report, err := newOrchestrator(Options{}, lastfm).ResolveTrack(context.Background(), master)
	if err != nil {
		t.Fatal(err)
	}
	if got := master.Metadata().Get("lastfm").ID(); got != "by-mbid" {
		t.Errorf("merged %q, want the exact result", got)
	}
	if !report.Outcomes[0].Exact {
		t.Error("outcome should be marked exact")
	}
}

func TestResolveMarksSourceWithoutDocument(t *testing.T) {
	bare := model.NewArtist("Muse")
	bare.Picture = "muse.jpg"
	src := &mockSource{
		name: provider.NameDeezer,
		artistFn: func(context.Context, *model.Artist) iter.Seq2[provider.Result[*model.Artist], error] {
			return provider.Slice([]*model.Artist{bare})
		},
	}
	master := model.NewArtist("Muse")
	if _, err := newOrchestrator(Options{}, src).Resolve(context.Background(), master); err != nil {
		t.Fatal(err)
	}
	if !master.Metadata().Has("deezer") || master.Picture != "muse.jpg" {
		t.Errorf("artist not merged: %+v", master)
	}
}

func TestResolveUnsupportedKind(t *testing.T) {
	src := &mockSource{name: provider.NameDeezer}
	_, err := newOrchestrator(Options{}, src).Resolve(context.Background(), model.NewPlaylist("mix"))
	if !errors.Is(err, ErrUnsupportedKind) {
		t.Errorf("got %v, want ErrUnsupportedKind", err)
	}
	if src.calls.Load() != 0 {
		t.Error("no source may be queried for an unsupported kind")
	}
}

func TestResolveAllStopsOnFatalError(t *testing.T) {
	src := &mockSource{name: provider.NameDeezer}
	entities := []model.Entity{
		model.NewGenre("house"),
		model.NewAlbum("Discovery"),
		model.NewPlaylist("mix"),
		model.NewTrack("never reached"),
	}
	reports, err := newOrchestrator(Options{}, src).ResolveAll(context.Background(), entities)
	if !errors.Is(err, ErrUnsupportedKind) {
		t.Fatalf("got %v, want ErrUnsupportedKind", err)
	}
	if len(reports) != 2 {
		t.Errorf("got %d reports, want 2", len(reports))
	}
	if src.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", src.calls.Load())
	}
}

// keyedSource adds identifier exchange to a mockSource.
type keyedSource struct {
	*mockSource
	supplies []string
	lookups  []string
}

func (k *keyedSource) Supplies(model.Kind) []string { return k.supplies }
func (k *keyedSource) LooksUp(model.Kind) []string { return k.lookups }

func TestResolveIdentifierReachesLaterSourceInSamePass(t *testing.T) {
	mb := &keyedSource{
		mockSource: &mockSource{name: provider.NameMusicBrainz, trackFn: tracks(candidate("musicbrainz", "mbid-123", "One", "U2"))},
		supplies:   []string{model.KeyMBID},
	}
	var seen string
	lastfm := &keyedSource{
		mockSource: &mockSource{
			name: provider.NameLastFM,
			trackFn: func(_ context.Context, ref *model.Track) iter.Seq2[provider.Result[*model.Track], error] {
				seen = ref.Metadata().Get(string(provider.NameMusicBrainz)).ID()
				if seen == "" {
					return provider.Empty[*model.Track]()
				}
				return provider.Exact(candidate("lastfm", "by-"+seen, "One (Remastered)", "U2"), model.KeyMBID)
			},
		},
		lookups: []string{model.KeyMBID},
	}

	master := model.NewTrack("One", model.NewArtist("U2"))
	report, err := newOrchestrator(Options{}, mb, lastfm).ResolveTrack(context.Background(), master)
	if err != nil {
		t.Fatal(err)
	}
	if seen != "mbid-123" {
		t.Fatalf("lastfm saw mbid %q, want mbid-123", seen)
	}
	out := report.Outcomes[1]
	if out.Status != StatusMerged || !out.Exact || out.MatchedBy != model.KeyMBID {
		t.Errorf("lastfm outcome = %+v", out)
	}
	if got := master.Metadata().Get("lastfm").ID(); got != "by-mbid-123" {
		t.Errorf("lastfm id = %q", got)
	}
}

func TestWaves(t *testing.T) {
	plain := func(n provider.ProviderName) provider.Source { return &mockSource{name: n} }
	keyed := func(n provider.ProviderName, supplies, lookups []string) provider.Source {
		return &keyedSource{mockSource: &mockSource{name: n}, supplies: supplies, lookups: lookups}
	}
	isrc := []string{model.KeyISRC}
	mbid := []string{model.KeyMBID}

	tests := []struct {
		name    string
		sources []provider.Source
		want    [][]int
	}{
		{"none", nil, nil},
		{"no exchange", []provider.Source{plain("a"), plain("b"), plain("c")}, [][]int{{0, 1, 2}}},
		{
			"default order",
			[]provider.Source{
				keyed(provider.NameMusicBrainz, []string{model.KeyMBID, model.KeyISRC}, isrc),
				keyed(provider.NameSpotify, isrc, isrc),
				keyed(provider.NameLastFM, nil, mbid),
				keyed(provider.NameDeezer, isrc, isrc),
			},
			[][]int{{0}, {1, 2}, {3}},
		},
		{
			"consumer first",
			[]provider.Source{keyed("lastfm", nil, mbid), keyed("musicbrainz", mbid, nil)},
			[][]int{{0, 1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := waves(tt.sources, model.KindTrack)
			if len(got) != len(tt.want) {
				t.Fatalf("waves = %v, want %v", got, tt.want)
			}
			for i := range got {
				if !slices.Equal(got[i], tt.want[i]) {
					t.Errorf("waves = %v, want %v", got, tt.want)
				}
			}
		})
	}
}
