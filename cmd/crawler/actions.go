package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/sydlexius/crawler/internal/backup"
	"github.com/sydlexius/crawler/internal/catalog"
	"github.com/sydlexius/crawler/internal/history"
	"github.com/sydlexius/crawler/internal/maintenance"
	"github.com/sydlexius/crawler/internal/model"
	"github.com/sydlexius/crawler/internal/provider"
	"github.com/sydlexius/crawler/internal/resolve"
	"github.com/sydlexius/crawler/internal/scanner"
	"github.com/sydlexius/crawler/internal/similarity"
	"github.com/sydlexius/crawler/internal/titles"
	"github.com/sydlexius/crawler/internal/watcher"
)

// resolveCatalog resolves every entity of cat in place. An interrupt stops
// the pass early and keeps what was resolved so far.
func (a *app) resolveCatalog(ctx context.Context, cat *catalog.Catalog) []*resolve.Report {
	orch := resolve.NewOrchestrator(a.sources, similarity.NewRegistry(nil), a.logger, resolve.Options{
		Active:  a.cfg.Active(),
		Workers: a.cfg.Resolver.Workers,
		Bus:     a.bus,
	})

	timeout := a.cfg.Resolver.Timeout.Std()
	var reports []*resolve.Report
	for _, e := range cat.Entities() {
		if ctx.Err() != nil {
			a.logger.Warn("interrupted, saving what was resolved", slog.Int("resolved", len(reports)))
			break
		}
		ectx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			ectx, cancel = context.WithTimeout(ctx, timeout)
		}
		r, err := orch.Resolve(ectx, e)
		cancel()
		if err != nil {
			a.logger.Error("resolving entity", slog.String("label", e.Label()), slog.String("error", err.Error()))
			continue
		}
		reports = append(reports, r)
	}
	return reports
}

func runResolve(ctx context.Context, cmd *cli.Command) error {
	catalogPath, dir := cmd.String("catalog"), cmd.String("dir")
	if (catalogPath == "") == (dir == "") {
		return errors.New("exactly one of --catalog or --dir is required")
	}

	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if len(a.cfg.Active()) == 0 {
		return errors.New("no sources are enabled")
	}
	a.registerSources(ctx)
	a.startBus()

	var cat *catalog.Catalog
	if catalogPath != "" {
		if cat, err = catalog.Load(catalogPath); err != nil {
			return err
		}
	} else {
		sc := scanner.NewService(a.logger, dir, cmd.StringSlice("exclude"))
		sc.SetEventBus(a.bus)
		res, err := sc.Scan(ctx)
		if err != nil {
			return err
		}
		cat = catalog.FromTracks(res.Tracks)
	}

	reports := a.resolveCatalog(ctx, cat)

	out := cmd.String("out")
	if out == "" {
		out = catalogPath
	}
	reportWriter := os.Stdout
	if out == "" {
		reportWriter = os.Stderr
		if err := cat.Encode(os.Stdout); err != nil {
			return err
		}
	} else {
		if err := cat.Save(out); err != nil {
			return err
		}
		a.logger.Info("catalog written", slog.String("path", out), slog.Int("entities", cat.Len()))
	}

	if cmd.Bool("json") {
		return printJSON(reportWriter, reports)
	}
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, []string{
			string(r.Kind), r.Label, string(r.State),
			strconv.Itoa(r.Count(resolve.StatusMerged)),
			strconv.Itoa(r.Count(resolve.StatusNoMatch)),
			strconv.Itoa(r.Count(resolve.StatusSkipped)),
			strconv.Itoa(r.Count(resolve.StatusFailed)),
		})
	}
	printTable(reportWriter, []string{"Kind", "Entity", "State", "Merged", "No match", "Skipped", "Failed"}, rows, 2)
	return nil
}

// candidate is one scored search result.
type candidate struct {
	Label     string  `json:"label"`
	ID        string  `json:"id,omitempty"`
	Distance  float64 `json:"distance"`
	Exact     bool    `json:"exact"`
	MatchedBy string  `json:"matched_by,omitempty"`
}

func runSearch(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(cmd.StringArg("query"))
	if query == "" {
		return errors.New("a search query is required")
	}

	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	a.registerSources(ctx)

	name := provider.ProviderName(cmd.String("source"))
	src := a.sources.Get(name)
	if src == nil {
		return fmt.Errorf("unknown source %q (known: %s)", name, joinNames(a.sources.Names()))
	}
	if key := cmd.String("api-key"); key != "" {
		ctx = provider.WithAPIKeyOverride(ctx, name, key)
	}

	measures := similarity.NewRegistry(nil)
	limit := int(cmd.Int("limit"))
	artists := cmd.String("artist")

	var found []candidate
	switch kind := model.Kind(cmd.String("kind")); kind {
	case model.KindTrack:
		ref := titles.Track(query, artists)
		found, err = score(measures, name, src.SearchTrack(ctx, ref), ref, limit)
	case model.KindArtist:
		ref := model.NewArtist(query)
		found, err = score(measures, name, src.SearchArtist(ctx, ref), ref, limit)
	case model.KindAlbum:
		ref := model.NewAlbum(query, model.SplitArtists(artists)...)
		found, err = score(measures, name, src.SearchAlbum(ctx, ref), ref, limit)
	case model.KindGenre:
		ref := model.NewGenre(query)
		found, err = score(measures, name, src.SearchGenre(ctx, ref), ref, limit)
	default:
		return fmt.Errorf("searching %q: %w", kind, similarity.ErrUnsupportedKind)
	}
	if err != nil {
		return fmt.Errorf("searching %s: %w", name.DisplayName(), err)
	}
	if len(found) == 0 {
		fmt.Println("no candidates")
		return nil
	}

	rows := make([][]string, 0, len(found))
	for i, c := range found {
		match := "no"
		if c.Exact || c.Distance < 1 {
			match = "yes"
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), c.Label, c.ID, formatDistance(c.Distance, c.Exact), match})
	}
	printTable(os.Stdout, []string{"#", "Candidate", "ID", "Distance", "Within cutoff"}, rows, 4)
	return nil
}

// score reads up to limit candidates from seq and orders them the way the
// selector would: exact results first, then by distance.
func score[T model.Entity](measures *similarity.Registry, source provider.ProviderName, seq iter.Seq2[provider.Result[T], error], ref T, limit int) ([]candidate, error) {
	m, err := similarity.For[T](measures, ref.Kind())
	if err != nil {
		return nil, err
	}
	var out []candidate
	for r, err := range seq {
		if err != nil {
			return out, err
		}
		p := m.Measure(ref, r.Entity)
		out = append(out, candidate{
			Label:     r.Entity.Label(),
			ID:        r.Entity.Metadata().Get(string(source)).ID(),
			Distance:  p.Distance,
			Exact:     r.Exact,
			MatchedBy: r.MatchedBy,
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	slices.SortStableFunc(out, func(x, y candidate) int {
		if x.Exact != y.Exact {
			if x.Exact {
				return -1
			}
			return 1
		}
		return cmp.Compare(x.Distance, y.Distance)
	})
	return out, nil
}

func runSources(_ context.Context, cmd *cli.Command) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	status := make(map[provider.ProviderName]string)
	for _, s := range a.settings.ListProviderKeyStatuses() {
		status[s.Name] = s.Status
	}

	rows := make([][]string, 0, len(a.cfg.Sources))
	position := 0
	for _, s := range a.cfg.Sources {
		name := provider.ProviderName(s.Name)
		order := "-"
		if s.Enabled {
			position++
			order = strconv.Itoa(position)
		}
		settings := a.settings.Get(name)
		rows = append(rows, []string{
			order,
			name.DisplayName(),
			yesNo(s.Enabled),
			strconv.FormatFloat(a.limiters.Limit(name), 'f', -1, 64) + "/s",
			strconv.Itoa(s.Burst),
			strconv.Itoa(settings.PageSize) + " x " + strconv.Itoa(settings.MaxPages),
			status[name],
		})
	}
	printTable(os.Stdout, []string{"Order", "Source", "Enabled", "Rate", "Burst", "Pages", "Credentials"}, rows, 2, 6)
	return nil
}

func runHistory(ctx context.Context, cmd *cli.Command) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if age := cmd.Duration("prune"); age > 0 {
		n, err := a.history.Prune(ctx, time.Now().Add(-age))
		if err != nil {
			return err
		}
		a.logger.Info("pruned history", slog.Int64("deleted", n))
	}

	if cmd.Bool("summary") {
		sums, err := a.history.Summary(ctx)
		if err != nil {
			return err
		}
		if cmd.Bool("json") {
			return printJSON(os.Stdout, sums)
		}
		rows := make([][]string, 0, len(sums))
		for _, s := range sums {
			rows = append(rows, []string{
				provider.ProviderName(s.Source).DisplayName(),
				strconv.Itoa(s.Merged), strconv.Itoa(s.NoMatch), strconv.Itoa(s.Skipped), strconv.Itoa(s.Failed),
			})
		}
		printTable(os.Stdout, []string{"Source", "Merged", "No match", "Skipped", "Failed"}, rows)
		return nil
	}

	entries, err := a.history.List(ctx, history.Filter{
		RunID:  cmd.String("run"),
		Source: cmd.String("source"),
		Status: cmd.String("status"),
		Limit:  int(cmd.Int("limit")),
	})
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return printJSON(os.Stdout, entries)
	}
	if len(entries) == 0 {
		fmt.Println("no history")
		return nil
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		distance := "-"
		if e.Distance != nil {
			distance = formatDistance(*e.Distance, e.Exact)
		}
		detail := e.Winner
		if e.Error != "" {
			detail = e.Error
		}
		rows = append(rows, []string{
			e.CreatedAt.Local().Format(time.DateTime),
			e.RunID[:min(8, len(e.RunID))],
			e.Label,
			provider.ProviderName(e.Source).DisplayName(),
			e.Status,
			distance,
			detail,
		})
	}
	printTable(os.Stdout, []string{"When", "Run", "Entity", "Source", "Status", "Distance", "Detail"}, rows, 4)
	return nil
}

func runCachePurge(ctx context.Context, cmd *cli.Command) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	n, err := a.cache.Purge(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("purged %d expired responses\n", n)
	return nil
}

func runCacheClear(ctx context.Context, cmd *cli.Command) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	n, err := a.cache.Clear(ctx, cmd.String("host"))
	if err != nil {
		return err
	}
	fmt.Printf("cleared %d cached responses\n", n)
	return nil
}

func runWatch(ctx context.Context, cmd *cli.Command) error {
	dir, out := cmd.String("dir"), cmd.String("out")

	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if len(a.cfg.Active()) == 0 {
		return errors.New("no sources are enabled")
	}
	a.registerSources(ctx)
	a.startBus()

	sc := scanner.NewService(a.logger, dir, cmd.StringSlice("exclude"))
	sc.SetEventBus(a.bus)

	rescan := func(ctx context.Context) error {
		res, err := sc.Scan(ctx)
		if err != nil {
			return err
		}
		cat := catalog.FromTracks(res.Tracks)
		if prev, err := catalog.Load(out); err == nil {
			n := cat.Carry(prev)
			a.logger.Debug("carried resolved tracks", slog.Int("tracks", n))
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		reports := a.resolveCatalog(ctx, cat)
		if err := cat.Save(out); err != nil {
			return err
		}
		merged := 0
		for _, r := range reports {
			merged += r.Count(resolve.StatusMerged)
		}
		a.logger.Info("catalog updated",
			slog.String("path", out),
			slog.Int("tracks", len(cat.Tracks)),
			slog.Int("merged", merged))
		return nil
	}

	if err := rescan(ctx); err != nil {
		return err
	}

	w := watcher.NewService(dir, sc.Excluded, rescan, a.bus, a.logger)
	w.SetDebounce(cmd.Duration("debounce"))
	w.SetPollInterval(cmd.Duration("poll"))
	return w.Start(ctx)
}

func runMaintenance(ctx context.Context, cmd *cli.Command) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	svc := maintenance.NewService(a.db, a.cfg.Database.Path, a.cache, a.history, a.logger)
	if !cmd.Bool("status") {
		res, err := svc.Run(ctx, maintenance.Options{
			HistoryAge: cmd.Duration("history-age"),
			Vacuum:     cmd.Bool("vacuum"),
		})
		if err != nil {
			return err
		}
		fmt.Printf("purged %d expired responses, pruned %d history entries\n", res.ExpiredResponses, res.PrunedHistory)
	}

	st, err := svc.Status(ctx)
	if err != nil {
		return err
	}
	printTable(os.Stdout, []string{"Database", "WAL", "Pages", "Cached responses", "History entries"}, [][]string{{
		strconv.FormatInt(st.DBFileSize, 10) + " B",
		strconv.FormatInt(st.WALFileSize, 10) + " B",
		strconv.FormatInt(st.PageCount, 10) + " x " + strconv.FormatInt(st.PageSize, 10),
		strconv.FormatInt(st.CachedResponses, 10),
		strconv.FormatInt(st.HistoryEntries, 10),
	}})
	return nil
}

func runBackup(ctx context.Context, cmd *cli.Command) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	dir := cmd.String("dir")
	if dir == "" {
		dir = filepath.Join(filepath.Dir(a.cfg.Database.Path), "backups")
	}
	svc := backup.NewService(a.db, dir, a.logger)

	if !cmd.Bool("list") {
		info, err := svc.Backup(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("wrote %s (%d B)\n", filepath.Join(dir, info.Filename), info.Size)
		removed, err := svc.Prune(backup.Policy{Keep: int(cmd.Int("keep")), MaxAge: cmd.Duration("max-age")})
		if err != nil {
			return err
		}
		if len(removed) > 0 {
			fmt.Printf("pruned %s\n", strings.Join(removed, ", "))
		}
	}

	backups, err := svc.List()
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(backups))
	for _, b := range backups {
		rows = append(rows, []string{b.Filename, strconv.FormatInt(b.Size, 10) + " B", b.CreatedAt.Local().Format(time.DateTime)})
	}
	printTable(os.Stdout, []string{"Backup", "Size", "Created"}, rows)
	return nil
}

func joinNames(names []provider.ProviderName) string {
	s := make([]string, len(names))
	for i, n := range names {
		s[i] = string(n)
	}
	return strings.Join(s, ", ")
}
