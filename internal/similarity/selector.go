package similarity

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sydlexius/crawler/internal/provider"
)

// Selector reduces a candidate sequence to its best element.
type Selector struct {
	// Workers bounds concurrent scoring. Values below 2 score inline.
	Workers int
}

// Selection is the outcome of SelectBest.
type Selection[T any] struct {
	Winner    T
	Distance  float64
	Exact     bool
	MatchedBy string
	// Scanned counts every candidate read from the sequence.
	Scanned int
	// Qualified counts candidates with a distance below 1.
	Qualified int

	index int
	found bool
}

// Found reports whether a winner was selected.
func (s Selection[T]) Found() bool { return s.found }

// better orders candidates by distance and then by position in the sequence.
func (s Selection[T]) better(d float64, index int) bool {
	if !s.found {
		return true
	}
	return d < s.Distance || (d == s.Distance && index < s.index)
}

// SelectBest consumes seq once and returns the candidate closest to ref.
// Candidates at distance 1 or more are dropped. An exact identifier result
// takes precedence over every scored one; the first exact result wins. The
// whole sequence is read before deciding, since a later page can hold a
// better match. Scoring runs on up to sel.Workers goroutines while the
// sequence is being read. An error from the sequence aborts the selection.
func SelectBest[T any](ctx context.Context, sel Selector, seq iter.Seq2[provider.Result[T], error], ref T, m Measure[T]) (Selection[T], error) {
	var (
		mu      sync.Mutex
		scored  Selection[T]
		exact   Selection[T]
		scanned int
	)

	consider := func(i int, cand T) {
		p := m.Measure(ref, cand)
		if !(p.Distance >= 0 && p.Distance < 1) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		scored.Qualified++
		if scored.better(p.Distance, i) {
			scored.Winner, scored.Distance, scored.index, scored.found = p.Candidate, p.Distance, i, true
		}
	}

	var g *errgroup.Group
	if sel.Workers > 1 {
		g, _ = errgroup.WithContext(ctx)
		g.SetLimit(sel.Workers)
	}

	var seqErr error
	for res, err := range seq {
		if err != nil {
			seqErr = err
			break
		}
		i := scanned
		scanned++
		if res.Exact {
			if !exact.found {
				exact = Selection[T]{Winner: res.Entity, Exact: true, MatchedBy: res.MatchedBy, index: i, found: true}
			}
			continue
		}
		if exact.found {
			continue
		}
		if g == nil {
			consider(i, res.Entity)
			continue
		}
		g.Go(func() error {
			consider(i, res.Entity)
			return nil
		})
	}
	if g != nil {
		_ = g.Wait()
	}

	if seqErr != nil {
		return Selection[T]{Scanned: scanned}, fmt.Errorf("reading candidates: %w", seqErr)
	}
	if exact.found {
		exact.Scanned = scanned
		exact.Qualified = scored.Qualified + 1
		return exact, nil
	}
	scored.Scanned = scanned
	return scored, nil
}
