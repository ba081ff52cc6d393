package history

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/sydlexius/crawler/internal/database"
	"github.com/sydlexius/crawler/internal/event"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupService(t *testing.T) *Service {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return NewService(db, testLogger())
}

func ptr(f float64) *float64 { return &f }

func TestRecordAndList(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	entries := []*Entry{
		{RunID: "r1", Kind: "track", Label: "Avicii - Levels", Source: "spotify", Status: "merged", Distance: ptr(0.12), Scanned: 25, Winner: "Avicii - Levels", CreatedAt: base},
		{RunID: "r1", Kind: "track", Label: "Avicii - Levels", Source: "lastfm", Status: "failed", Error: "provider lastfm: credentials not configured", CreatedAt: base.Add(time.Second)},
		{RunID: "r2", Kind: "artist", Label: "Avicii", Source: "spotify", Status: "no_match", Scanned: 4, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
		if e.ID == "" {
			t.Error("expected generated id")
		}
	}

	all, err := s.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].RunID != "r2" {
		t.Fatalf("expected newest first, got %+v", all)
	}

	spotify, _ := s.List(ctx, Filter{Source: "spotify"})
	if len(spotify) != 2 {
		t.Errorf("expected 2 spotify entries, got %d", len(spotify))
	}
	merged, _ := s.List(ctx, Filter{RunID: "r1", Status: "merged"})
	if len(merged) != 1 || merged[0].Distance == nil || *merged[0].Distance != 0.12 {
		t.Errorf("unexpected merged entries %+v", merged)
	}
	if merged[0].Scanned != 25 || !merged[0].CreatedAt.Equal(base) {
		t.Errorf("fields not round-tripped: %+v", merged[0])
	}
	limited, _ := s.List(ctx, Filter{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("Limit ignored, got %d", len(limited))
	}
	recent, _ := s.List(ctx, Filter{Since: base.Add(time.Second)})
	if len(recent) != 2 {
		t.Errorf("Since filter returned %d entries", len(recent))
	}
}

func TestRecordValidation(t *testing.T) {
	s := setupService(t)
	if err := s.Record(context.Background(), &Entry{Source: "spotify"}); err == nil {
		t.Error("expected error without run id")
	}
	if err := s.Record(context.Background(), &Entry{RunID: "r"}); err == nil {
		t.Error("expected error without source")
	}
}

func TestSummary(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()
	for _, st := range []string{"merged", "merged", "failed", "skipped"} {
		if err := s.Record(ctx, &Entry{RunID: "r", Source: "deezer", Status: st}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := s.Record(ctx, &Entry{RunID: "r", Source: "musicbrainz", Status: "no_match"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	sum, err := s.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(sum) != 2 {
		t.Fatalf("expected 2 sources, got %+v", sum)
	}
	dz := sum[0]
	if dz.Source != "deezer" || dz.Merged != 2 || dz.Failed != 1 || dz.Skipped != 1 {
		t.Errorf("deezer summary = %+v", dz)
	}
	if sum[1].NoMatch != 1 {
		t.Errorf("musicbrainz summary = %+v", sum[1])
	}
}

func TestPrune(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)
	_ = s.Record(ctx, &Entry{RunID: "old", Source: "deezer", Status: "merged", CreatedAt: old})
	_ = s.Record(ctx, &Entry{RunID: "new", Source: "deezer", Status: "merged"})

	n, err := s.Prune(ctx, time.Now().Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("Prune = %d, %v", n, err)
	}
	left, _ := s.List(ctx, Filter{})
	if len(left) != 1 || left[0].RunID != "new" {
		t.Errorf("unexpected remaining entries %+v", left)
	}
}

func TestSubscribeRecordsSourceEvents(t *testing.T) {
	s := setupService(t)
	bus := event.NewBus(testLogger(), 16)
	s.Subscribe(bus)
	go bus.Start()

	bus.Publish(event.Event{Type: event.ResolutionStarted, Data: map[string]any{"run_id": "r9"}})
	bus.Publish(event.Event{Type: event.SourceMerged, Data: map[string]any{
		"run_id": "r9", "kind": "track", "label": "Levels", "source": "deezer",
		"status": "merged", "distance": 0.2, "exact": true, "matched_by": "isrc", "scanned": 1,
	}})
	bus.Publish(event.Event{Type: event.SourceFailed, Data: map[string]any{
		"run_id": "r9", "source": "lastfm", "status": "failed", "distance": 0.0, "error": "boom",
	}})
	bus.Stop()
	<-bus.Finished()

	entries, err := s.List(context.Background(), Filter{RunID: "r9"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 source outcomes, got %d", len(entries))
	}
	byStatus := map[string]Entry{}
	for _, e := range entries {
		byStatus[e.Status] = e
	}
	merged := byStatus["merged"]
	if !merged.Exact || merged.MatchedBy != "isrc" || merged.Distance == nil || merged.Scanned != 1 {
		t.Errorf("merged entry = %+v", merged)
	}
	failed := byStatus["failed"]
	if failed.Error != "boom" || failed.Distance != nil {
		t.Errorf("failed entry = %+v", failed)
	}
}
