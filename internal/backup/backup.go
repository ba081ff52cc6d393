// Package backup snapshots the crawler database with VACUUM INTO and prunes
// old snapshots.
package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

const stampFormat = "20060102-150405"

// backupPattern matches backup filenames: crawler-YYYYMMDD-HHMMSS.db
var backupPattern = regexp.MustCompile(`^crawler-\d{8}-\d{6}\.db$`)

// Info describes a backup file.
type Info struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Policy bounds how many backups are kept. Zero values disable a bound.
type Policy struct {
	Keep   int
	MaxAge time.Duration
}

// Service manages database backups.
type Service struct {
	db     *sql.DB
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a backup service writing into dir.
func NewService(db *sql.DB, dir string, logger *slog.Logger) *Service {
	return &Service{
		db:     db,
		dir:    dir,
		logger: logger.With(slog.String("component", "backup")),
		now:    time.Now,
	}
}

// Dir returns the backup directory.
func (s *Service) Dir() string { return s.dir }

// Backup creates a snapshot of the database using VACUUM INTO.
func (s *Service) Backup(ctx context.Context) (*Info, error) {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	now := s.now().UTC().Truncate(time.Second)
	filename := "crawler-" + now.Format(stampFormat) + ".db"
	dest := filepath.Join(s.dir, filename)
	if _, err := os.Stat(dest); err == nil {
		return nil, fmt.Errorf("backup %s already exists", filename)
	}

	s.logger.Info("starting backup", slog.String("dest", dest))
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return nil, fmt.Errorf("VACUUM INTO: %w", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("stat backup file: %w", err)
	}
	s.logger.Info("backup complete",
		slog.String("filename", filename),
		slog.Int64("size", info.Size()))

	return &Info{Filename: filename, Size: info.Size(), CreatedAt: now}, nil
}

// List returns all backup files, newest first.
func (s *Service) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var backups []Info
	for _, entry := range entries {
		if entry.IsDir() || !backupPattern.MatchString(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(entry.Name(), "crawler-"), ".db")
		ts, err := time.Parse(stampFormat, stamp)
		if err != nil {
			ts = info.ModTime()
		}
		backups = append(backups, Info{Filename: entry.Name(), Size: info.Size(), CreatedAt: ts})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// Delete removes a single backup file by filename.
func (s *Service) Delete(filename string) error {
	if !IsValidFilename(filename) {
		return fmt.Errorf("invalid backup filename %q", filename)
	}
	if err := os.Remove(filepath.Join(s.dir, filename)); err != nil { //nolint:gosec // G703: filename validated above
		return fmt.Errorf("removing backup: %w", err)
	}
	s.logger.Info("backup deleted", slog.String("filename", filename))
	return nil
}

// Prune deletes backups beyond p.Keep and those older than p.MaxAge, and
// returns the names it removed.
func (s *Service) Prune(p Policy) ([]string, error) {
	backups, err := s.List()
	if err != nil {
		return nil, err
	}

	cutoff := s.now().UTC().Add(-p.MaxAge)
	var removed []string
	for i, b := range backups {
		overCount := p.Keep > 0 && i >= p.Keep
		tooOld := p.MaxAge > 0 && b.CreatedAt.Before(cutoff)
		if !overCount && !tooOld {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, b.Filename)); err != nil {
			s.logger.Warn("failed to remove old backup",
				slog.String("filename", b.Filename),
				slog.String("error", err.Error()))
			continue
		}
		s.logger.Info("pruned backup", slog.String("filename", b.Filename))
		removed = append(removed, b.Filename)
	}
	return removed, nil
}

// IsValidFilename checks that filename matches the backup pattern and holds
// no path separators.
func IsValidFilename(filename string) bool {
	if strings.Contains(filename, "/") || strings.Contains(filename, "\\") || strings.Contains(filename, "..") {
		return false
	}
	return backupPattern.MatchString(filename)
}
