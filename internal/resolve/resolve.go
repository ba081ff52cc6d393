// Package resolve drives the resolution of one master entity against every
// configured source: it skips sources that already resolved the entity,
// selects the best candidate from each remaining source and merges the
// winners into the master.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sydlexius/crawler/internal/event"
	"github.com/sydlexius/crawler/internal/merge"
	"github.com/sydlexius/crawler/internal/model"
	"github.com/sydlexius/crawler/internal/provider"
	"github.com/sydlexius/crawler/internal/similarity"
)

// ErrUnsupportedKind is returned for kinds that cannot be resolved. It
// aborts the whole pass.
var ErrUnsupportedKind = similarity.ErrUnsupportedKind

// Options tune an Orchestrator.
type Options struct {
	// Active lists the sources to use, in resolution order. Empty means
	// every registered source in registration order.
	Active []provider.ProviderName
	// Workers bounds concurrent candidate scoring per source.
	Workers int
	// Bus receives resolution events when set.
	Bus *event.Bus
}

// Orchestrator resolves master entities against the registered sources.
type Orchestrator struct {
	sources  *provider.Registry
	measures *similarity.Registry
	opts     Options
	logger   *slog.Logger
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(sources *provider.Registry, measures *similarity.Registry, logger *slog.Logger, opts Options) *Orchestrator {
	if measures == nil {
		measures = similarity.NewRegistry(nil)
	}
	return &Orchestrator{
		sources:  sources,
		measures: measures,
		opts:     opts,
		logger:   logger.With(slog.String("component", "resolver")),
	}
}

// Resolve dispatches on the master's kind.
func (o *Orchestrator) Resolve(ctx context.Context, master model.Entity) (*Report, error) {
	switch m := master.(type) {
	case *model.Track:
		return o.ResolveTrack(ctx, m)
	case *model.Artist:
		return o.ResolveArtist(ctx, m)
	case *model.Album:
		return o.ResolveAlbum(ctx, m)
	case *model.Genre:
		return o.ResolveGenre(ctx, m)
	default:
		return nil, fmt.Errorf("resolving %s: %w", master.Kind(), ErrUnsupportedKind)
	}
}

// ResolveTrack resolves a track against every active source.
func (o *Orchestrator) ResolveTrack(ctx context.Context, master *model.Track) (*Report, error) {
	return run(ctx, o, master, func(s provider.Source) iter.Seq2[provider.Result[*model.Track], error] {
		return s.SearchTrack(ctx, master)
	})
}

// ResolveArtist resolves an artist against every active source.
func (o *Orchestrator) ResolveArtist(ctx context.Context, master *model.Artist) (*Report, error) {
	return run(ctx, o, master, func(s provider.Source) iter.Seq2[provider.Result[*model.Artist], error] {
		return s.SearchArtist(ctx, master)
	})
}

// ResolveAlbum resolves an album against every active source.
func (o *Orchestrator) ResolveAlbum(ctx context.Context, master *model.Album) (*Report, error) {
	return run(ctx, o, master, func(s provider.Source) iter.Seq2[provider.Result[*model.Album], error] {
		return s.SearchAlbum(ctx, master)
	})
}

// ResolveGenre resolves a genre against every active source.
func (o *Orchestrator) ResolveGenre(ctx context.Context, master *model.Genre) (*Report, error) {
	return run(ctx, o, master, func(s provider.Source) iter.Seq2[provider.Result[*model.Genre], error] {
		return s.SearchGenre(ctx, master)
	})
}

// ResolveAll resolves entities one after another and returns a report per
// resolved entity. A fatal error stops the batch; the reports gathered so
// far are returned with it.
func (o *Orchestrator) ResolveAll(ctx context.Context, entities []model.Entity) ([]*Report, error) {
	reports := make([]*Report, 0, len(entities))
	for _, e := range entities {
		r, err := o.Resolve(ctx, e)
		if err != nil {
			return reports, fmt.Errorf("resolving %q: %w", e.Label(), err)
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// run scans the sources wave by wave. Within a wave sources are scanned
// concurrently while the master is only read; the winners are then merged
// serially in source order before the next wave starts, so identifiers an
// earlier source supplies reach the sources that look entities up by them.
func run[T model.Entity](ctx context.Context, o *Orchestrator, master T, search func(provider.Source) iter.Seq2[provider.Result[T], error]) (*Report, error) {
	report := &Report{
		RunID:   uuid.NewString(),
		Kind:    master.Kind(),
		Label:   master.Label(),
		State:   StatePending,
		Started: time.Now().UTC(),
	}
	logger := o.logger.With(slog.String("run_id", report.RunID), slog.String("kind", string(report.Kind)))

	measure, err := similarity.For[T](o.measures, master.Kind())
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", master.Kind(), err)
	}

	sources := o.sources.Active(o.opts.Active)
	report.Outcomes = make([]Outcome, len(sources))
	winners := make([]similarity.Selection[T], len(sources))
	selector := similarity.Selector{Workers: o.opts.Workers}

	report.State = StateScanning
	o.publish(event.ResolutionStarted, report, nil)
	logger.Debug("resolving", slog.String("label", report.Label), slog.Int("sources", len(sources)))

	for _, wave := range waves(sources, master.Kind()) {
		var g errgroup.Group
		for _, i := range wave {
			src := sources[i]
			out := &report.Outcomes[i]
			out.Source = src.Name()
			if master.Metadata().Has(string(src.Name())) {
				out.Status = StatusSkipped
				continue
			}
			g.Go(func() error {
				sel, err := similarity.SelectBest(ctx, selector, search(src), master, measure)
				out.Scanned = sel.Scanned
				if err != nil {
					out.fail(err)
					return nil
				}
				winners[i] = sel
				return nil
			})
		}
		_ = g.Wait()

		for _, i := range wave {
			settle(ctx, o, logger, report, &report.Outcomes[i], master, winners[i])
		}
	}

	report.State = StateNoop
	if report.Count(StatusMerged) > 0 {
		report.State = StateMerged
	}
	report.Finished = time.Now().UTC()
	o.publish(event.ResolutionCompleted, report, nil)
	logger.Info("resolution finished",
		slog.String("label", report.Label),
		slog.String("state", string(report.State)),
		slog.Int("merged", report.Count(StatusMerged)),
		slog.Int("failed", report.Count(StatusFailed)))
	return report, nil
}

// settle merges the winner of one source into master and records the
// outcome.
func settle[T model.Entity](ctx context.Context, o *Orchestrator, logger *slog.Logger, report *Report, out *Outcome, master T, sel similarity.Selection[T]) {
	switch {
	case out.Status != "":
		// skipped or failed while scanning
	case !sel.Found():
		out.Status = StatusNoMatch
	default:
		if err := merge.Entities(master, sel.Winner); err != nil {
			out.fail(err)
			break
		}
		if !master.Metadata().Has(string(out.Source)) {
			master.PutMetadata(string(out.Source), model.Document{})
		}
		out.Status = StatusMerged
		out.Distance = sel.Distance
		out.Exact = sel.Exact
		out.MatchedBy = sel.MatchedBy
		out.Winner = sel.Winner.Label()
	}
	o.record(ctx, logger, report, out)
}

func (o *Orchestrator) record(ctx context.Context, logger *slog.Logger, report *Report, out *Outcome) {
	logger = logger.With(slog.String("provider", string(out.Source)))
	switch out.Status {
	case StatusSkipped:
		logger.Debug("source already resolved, skipping")
		o.publish(event.SourceSkipped, report, out)
	case StatusNoMatch:
		logger.Debug("no candidate close enough", slog.Int("scanned", out.Scanned))
		o.publish(event.SourceNoMatch, report, out)
	case StatusMerged:
		logger.Info("merged candidate",
			slog.String("winner", out.Winner),
			slog.Float64("distance", out.Distance),
			slog.Bool("exact", out.Exact))
		o.publish(event.SourceMerged, report, out)
	case StatusFailed:
		level := slog.LevelWarn
		if errors.Is(out.Err, merge.ErrTypeMismatch) {
			level = slog.LevelError
		}
		logger.Log(ctx, level, "source failed", slog.String("error", out.Error))
		o.publish(event.SourceFailed, report, out)
	}
}

func (o *Orchestrator) publish(t event.Type, report *Report, out *Outcome) {
	if o.opts.Bus == nil {
		return
	}
	data := map[string]any{
		"run_id": report.RunID,
		"kind":   string(report.Kind),
		"label":  report.Label,
		"state":  string(report.State),
	}
	if out != nil {
		data["source"] = string(out.Source)
		data["status"] = string(out.Status)
		data["distance"] = out.Distance
		data["exact"] = out.Exact
		data["scanned"] = out.Scanned
		if out.MatchedBy != "" {
			data["matched_by"] = out.MatchedBy
		}
		if out.Winner != "" {
			data["winner"] = out.Winner
		}
		if out.Error != "" {
			data["error"] = out.Error
		}
	}
	o.opts.Bus.Publish(event.Event{Type: t, Data: data})
}
