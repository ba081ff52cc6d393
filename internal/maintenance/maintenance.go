// Package maintenance keeps the crawler database small: it drops expired
// cache entries and old history, then optimizes the SQLite file.
package maintenance

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Status holds database maintenance status information.
type Status struct {
	DBFileSize     int64 `json:"db_file_size"`
	WALFileSize    int64 `json:"wal_file_size"`
	PageCount      int64 `json:"page_count"`
	PageSize       int64 `json:"page_size"`
	CachedResponses int64 `json:"cached_responses"`
	HistoryEntries int64 `json:"history_entries"`
}

// Options select what Run does.
type Options struct {
	// HistoryAge drops history older than this. Zero keeps everything.
	HistoryAge time.Duration
	Vacuum     bool
}

// Result counts what Run removed.
type Result struct {
	ExpiredResponses int64 `json:"expired_responses"`
	PrunedHistory    int64 `json:"pruned_history"`
}

// CachePurger deletes expired cached responses.
type CachePurger interface {
	Purge(ctx context.Context) (int64, error)
}

// HistoryPruner deletes history entries created before a time.
type HistoryPruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Service provides database maintenance operations.
type Service struct {
	db      *sql.DB
	dbPath  string
	cache   CachePurger
	history HistoryPruner
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a maintenance service. cache and history may be nil.
func NewService(db *sql.DB, dbPath string, cache CachePurger, history HistoryPruner, logger *slog.Logger) *Service {
	return &Service{
		db:      db,
		dbPath:  dbPath,
		cache:   cache,
		history: history,
		logger:  logger.With(slog.String("component", "maintenance")),
		now:     time.Now,
	}
}

// Status returns current database maintenance status.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	st := &Status{}

	if info, err := os.Stat(s.dbPath); err == nil {
		st.DBFileSize = info.Size()
	}
	if info, err := os.Stat(s.dbPath + "-wal"); err == nil {
		st.WALFileSize = info.Size()
	}

	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&st.PageCount); err != nil {
		return nil, fmt.Errorf("reading page_count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&st.PageSize); err != nil {
		return nil, fmt.Errorf("reading page_size: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM response_cache").Scan(&st.CachedResponses); err != nil {
		return nil, fmt.Errorf("counting cached responses: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM resolutions").Scan(&st.HistoryEntries); err != nil {
		return nil, fmt.Errorf("counting history: %w", err)
	}
	return st, nil
}

// Run purges expired responses, prunes old history and optimizes the
// database, vacuuming it when asked to.
func (s *Service) Run(ctx context.Context, opts Options) (*Result, error) {
	res := &Result{}
	if s.cache != nil {
		n, err := s.cache.Purge(ctx)
		if err != nil {
			return res, err
		}
		res.ExpiredResponses = n
	}
	if s.history != nil && opts.HistoryAge > 0 {
		n, err := s.history.Prune(ctx, s.now().Add(-opts.HistoryAge))
		if err != nil {
			return res, err
		}
		res.PrunedHistory = n
	}
	s.logger.Info("pruned database",
		slog.Int64("expired_responses", res.ExpiredResponses),
		slog.Int64("pruned_history", res.PrunedHistory))

	if err := s.Optimize(ctx); err != nil {
		return res, err
	}
	if opts.Vacuum {
		if err := s.Vacuum(ctx); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Optimize runs PRAGMA optimize followed by a WAL checkpoint.
func (s *Service) Optimize(ctx context.Context) error {
	s.logger.Debug("running PRAGMA optimize")
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("PRAGMA optimize: %w", err)
	}
	s.logger.Debug("running WAL checkpoint")
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("WAL checkpoint: %w", err)
	}
	return nil
}

// Vacuum runs VACUUM to rebuild the database file.
func (s *Service) Vacuum(ctx context.Context) error {
	s.logger.Info("running VACUUM")
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("VACUUM: %w", err)
	}
	return nil
}
