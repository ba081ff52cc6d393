package scanner

import (
	"time"

	"github.com/sydlexius/crawler/internal/model"
)

// Scan statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ScanResult summarizes the outcome of a directory scan.
type ScanResult struct {
	ID          string         `json:"id"`
	Root        string         `json:"root"`
	Status      string         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Files       int            `json:"files"`
	Unreadable  int            `json:"unreadable"`
	Tracks      []*model.Track `json:"-"`
	Error       string         `json:"error,omitempty"`
}
