package maintenance

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sydlexius/crawler/internal/database"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return db, dbPath
}

type mockCache struct {
	purgeFn func(ctx context.Context) (int64, error)
}

func (m *mockCache) Purge(ctx context.Context) (int64, error) { return m.purgeFn(ctx) }

type mockHistory struct {
	pruneFn func(ctx context.Context, before time.Time) (int64, error)
}

func (m *mockHistory) Prune(ctx context.Context, before time.Time) (int64, error) {
	return m.pruneFn(ctx, before)
}

func TestStatus(t *testing.T) {
	db, dbPath := setupTestDB(t)
	if _, err := db.Exec(`INSERT INTO resolutions (id, run_id, kind, label, source, status, created_at)
		VALUES ('1', 'r', 'track', 'Levels', 'deezer', 'merged', '2026-10-01T00:00:00Z')`); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	st, err := NewService(db, dbPath, nil, nil, testLogger()).Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.DBFileSize <= 0 || st.PageSize <= 0 || st.PageCount <= 0 {
		t.Errorf("unexpected sizes %+v", st)
	}
	if st.HistoryEntries != 1 || st.CachedResponses != 0 {
		t.Errorf("counts = %+v", st)
	}
}

func TestRun(t *testing.T) {
	db, dbPath := setupTestDB(t)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	var prunedBefore time.Time

	svc := NewService(db, dbPath,
		&mockCache{purgeFn: func(context.Context) (int64, error) { return 4, nil }},
		&mockHistory{pruneFn: func(_ context.Context, before time.Time) (int64, error) {
			prunedBefore = before
			return 2, nil
		}},
		testLogger())
	svc.now = func() time.Time { return now }

	res, err := svc.Run(context.Background(), Options{HistoryAge: 48 * time.Hour, Vacuum: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExpiredResponses != 4 || res.PrunedHistory != 2 {
		t.Errorf("result = %+v", res)
	}
	if !prunedBefore.Equal(now.Add(-48 * time.Hour)) {
		t.Errorf("pruned before %v", prunedBefore)
	}
}

func TestRunKeepsHistoryWithoutAge(t *testing.T) {
	db, dbPath := setupTestDB(t)
	called := false
	svc := NewService(db, dbPath, nil, &mockHistory{pruneFn: func(context.Context, time.Time) (int64, error) {
		called = true
		return 0, nil
	}}, testLogger())

	if _, err := svc.Run(context.Background(), Options{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if called {
		t.Error("history pruned without an age")
	}
}

func TestRunStopsOnPurgeError(t *testing.T) {
	db, dbPath := setupTestDB(t)
	boom := errors.New("boom")
	svc := NewService(db, dbPath, &mockCache{purgeFn: func(context.Context) (int64, error) { return 0, boom }}, nil, testLogger())
	if _, err := svc.Run(context.Background(), Options{}); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}
