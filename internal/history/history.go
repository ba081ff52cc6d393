// Package history keeps an audit log of per-source resolution outcomes.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sydlexius/crawler/internal/event"
)

// Entry is one recorded source outcome.
type Entry struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Kind      string    `json:"kind"`
	Label     string    `json:"label"`
	Source    string    `json:"source"`
	Status    string    `json:"status"`
	Distance  *float64  `json:"distance,omitempty"`
	Exact     bool      `json:"exact"`
	MatchedBy string    `json:"matched_by,omitempty"`
	Scanned   int       `json:"scanned"`
	Winner    string    `json:"winner,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	RunID  string
	Source string
	Status string
	Since  time.Time
	Limit  int
}

// SourceSummary counts outcomes per status for one source.
type SourceSummary struct {
	Source  string `json:"source"`
	Merged  int    `json:"merged"`
	NoMatch int    `json:"no_match"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
}

// Service stores and queries resolution history.
type Service struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewService creates a history service.
func NewService(db *sql.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger.With(slog.String("component", "history"))}
}

// Record inserts an entry, assigning its ID and timestamp when unset.
func (s *Service) Record(ctx context.Context, e *Entry) error {
	if e.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if e.Source == "" {
		return fmt.Errorf("source is required")
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var distance any
	if e.Distance != nil {
		distance = *e.Distance
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resolutions (id, run_id, kind, label, source, status, distance, exact, matched_by, scanned, winner, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.RunID, e.Kind, e.Label, e.Source, e.Status, distance, e.Exact, e.MatchedBy, e.Scanned,
		e.Winner, e.Error, e.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("inserting resolution: %w", err)
	}
	return nil
}

// List returns entries matching f, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.Source != "" {
		where = append(where, "source = ?")
		args = append(args, f.Source)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since.UTC().Format(time.RFC3339Nano))
	}

	query := `SELECT id, run_id, kind, label, source, status, distance, exact, matched_by, scanned, winner, error, created_at
		FROM resolutions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing resolutions: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			distance  sql.NullFloat64
			exact     int
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Kind, &e.Label, &e.Source, &e.Status, &distance, &exact,
			&e.MatchedBy, &e.Scanned, &e.Winner, &e.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning resolution: %w", err)
		}
		if distance.Valid {
			d := distance.Float64
			e.Distance = &d
		}
		e.Exact = exact != 0
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Summary counts outcomes per source and status.
func (s *Service) Summary(ctx context.Context) ([]SourceSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, status, COUNT(*) FROM resolutions GROUP BY source, status ORDER BY source
	`)
	if err != nil {
		return nil, fmt.Errorf("summarising resolutions: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []SourceSummary
	index := make(map[string]int)
	for rows.Next() {
		var source, status string
		var n int
		if err := rows.Scan(&source, &status, &n); err != nil {
			return nil, fmt.Errorf("scanning summary: %w", err)
		}
		i, ok := index[source]
		if !ok {
			i = len(out)
			index[source] = i
			out = append(out, SourceSummary{Source: source})
		}
		switch status {
		case "merged":
			out[i].Merged += n
		case "no_match":
			out[i].NoMatch += n
		case "skipped":
			out[i].Skipped += n
		case "failed":
			out[i].Failed += n
		}
	}
	return out, rows.Err()
}

// Prune deletes entries older than before.
func (s *Service) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM resolutions WHERE created_at < ?`,
		before.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("pruning resolutions: %w", err)
	}
	return res.RowsAffected()
}

// Subscribe registers the service on bus for every per-source outcome event.
func (s *Service) Subscribe(bus *event.Bus) {
	bus.Subscribe(s.HandleEvent, event.SourceTypes()...)
}

// HandleEvent is an event.Handler that records a source outcome event.
func (s *Service) HandleEvent(e event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entry := &Entry{
		RunID:     e.String("run_id"),
		Kind:      e.String("kind"),
		Label:     e.String("label"),
		Source:    e.String("source"),
		Status:    e.String("status"),
		MatchedBy: e.String("matched_by"),
		Winner:    e.String("winner"),
		Error:     e.String("error"),
		CreatedAt: e.Timestamp,
	}
	if d, ok := e.Data["distance"].(float64); ok && e.Type == event.SourceMerged {
		entry.Distance = &d
	}
	entry.Exact, _ = e.Data["exact"].(bool)
	entry.Scanned, _ = e.Data["scanned"].(int)

	if err := s.Record(ctx, entry); err != nil {
		s.logger.Error("recording resolution", slog.String("type", string(e.Type)), slog.String("error", err.Error()))
	}
}

func parseTime(v string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
