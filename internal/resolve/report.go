package resolve

import (
	"time"

	"github.com/sydlexius/crawler/internal/model"
	"github.com/sydlexius/crawler/internal/provider"
)

// State is the lifecycle state of one resolution pass.
type State string

// Resolution states. A pass moves from pending through scanning to either
// merged, when at least one source was merged, or noop.
const (
	StatePending  State = "pending"
	StateScanning State = "scanning"
	StateMerged   State = "merged"
	StateNoop     State = "noop"
)

// Status is the outcome of one source within a pass.
type Status string

// Source statuses.
const (
	StatusSkipped Status = "skipped"
	StatusNoMatch Status = "no_match"
	StatusMerged  Status = "merged"
	StatusFailed  Status = "failed"
)

// Outcome records what happened for one source.
type Outcome struct {
	Source    provider.ProviderName `json:"source"`
	Status    Status                `json:"status"`
	Distance  float64               `json:"distance,omitempty"`
	Exact     bool                  `json:"exact,omitempty"`
	MatchedBy string                `json:"matched_by,omitempty"`
	Scanned   int                   `json:"scanned"`
	Winner    string                `json:"winner,omitempty"`
	Err       error                 `json:"-"`
	Error     string                `json:"error,omitempty"`
}

func (o *Outcome) fail(err error) {
	o.Status = StatusFailed
	o.Err = err
	o.Error = err.Error()
}

// Report summarises one resolution pass. All effects of the pass are
// mutations of the master entity; the report only describes them.
type Report struct {
	RunID    string     `json:"run_id"`
	Kind     model.Kind `json:"kind"`
	Label    string     `json:"label"`
	State    State      `json:"state"`
	Started  time.Time  `json:"started"`
	Finished time.Time  `json:"finished"`
	Outcomes []Outcome  `json:"outcomes"`
}

// Merged reports whether any source was merged into the master.
func (r *Report) Merged() bool {
	return r.State == StateMerged
}

// Failed returns the outcomes of sources that failed.
func (r *Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			out = append(out, o)
		}
	}
	return out
}

// Count returns the number of outcomes with status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}
