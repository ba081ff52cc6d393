package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/sydlexius/crawler/internal/config"
	"github.com/sydlexius/crawler/internal/database"
	"github.com/sydlexius/crawler/internal/event"
	"github.com/sydlexius/crawler/internal/history"
	"github.com/sydlexius/crawler/internal/httpcache"
	"github.com/sydlexius/crawler/internal/logging"
	"github.com/sydlexius/crawler/internal/provider"
	"github.com/sydlexius/crawler/internal/provider/deezer"
	"github.com/sydlexius/crawler/internal/provider/lastfm"
	"github.com/sydlexius/crawler/internal/provider/musicbrainz"
	"github.com/sydlexius/crawler/internal/provider/spotify"
	"github.com/sydlexius/crawler/internal/webhook"
)

// app holds the services one command invocation needs.
type app struct {
	cfg      *config.Config
	logs     io.Closer
	logger   *slog.Logger
	db       *sql.DB
	cache    *httpcache.Transport
	settings *provider.SettingsService
	limiters *provider.RateLimiterMap
	sources  *provider.Registry
	bus      *event.Bus
	history  *history.Service
	webhooks *webhook.Dispatcher
}

// setup loads configuration and opens the database. Sources and the event
// bus are created by the commands that need them.
func setup(cmd *cli.Command) (*app, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if lvl := cmd.String("log-level"); lvl != "" {
		if !logging.ValidLevel(lvl) {
			return nil, fmt.Errorf("invalid log level %q", lvl)
		}
		cfg.Logging.Level = lvl
	}

	logger, logs := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxFiles,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logs: logs, logger: logger}

	if dir := filepath.Dir(cfg.Database.Path); cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: data directory
			a.close()
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a.db = db
	if err := database.Migrate(db); err != nil {
		a.close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	logger.Debug("database ready", slog.String("path", cfg.Database.Path))

	a.history = history.NewService(db, logger)
	a.cache = httpcache.New(db, http.DefaultTransport, cfg.Cache.TTL.Std(), logger)
	a.settings = provider.NewSettingsService(cfg.ProviderSettings())
	a.limiters = cfg.RateLimiters()
	return a, nil
}

// registerSources creates an adapter for every configured source. Adapters
// share one HTTP client whose transport is the response cache when enabled.
func (a *app) registerSources(ctx context.Context) {
	var transport http.RoundTripper = http.DefaultTransport
	if a.cfg.Cache.Enabled {
		transport = a.cache
	}
	client := provider.NewHTTPClient(transport, 0)

	a.sources = provider.NewRegistry()
	for _, s := range a.cfg.Sources {
		switch provider.ProviderName(s.Name) {
		case provider.NameSpotify:
			a.sources.Register(spotify.New(ctx, client, a.limiters, a.settings, a.logger))
		case provider.NameLastFM:
			a.sources.Register(lastfm.New(client, a.limiters, a.settings, a.logger))
		case provider.NameDeezer:
			a.sources.Register(deezer.New(client, a.limiters, a.settings, a.logger))
		case provider.NameMusicBrainz:
			a.sources.Register(musicbrainz.New(client, a.limiters, a.settings, a.logger))
		}
	}
}

// startBus starts the event bus, records source outcomes in the history and
// forwards events to the configured webhooks.
func (a *app) startBus() {
	a.bus = event.NewBus(a.logger, 0)
	a.history.Subscribe(a.bus)

	hooks := make([]webhook.Webhook, 0, len(a.cfg.Webhooks))
	for _, w := range a.cfg.Webhooks {
		hooks = append(hooks, webhook.Webhook{Name: w.Name, URL: w.URL, Type: w.Type, Events: w.Events, Enabled: w.Enabled})
	}
	if d := webhook.NewDispatcher(hooks, nil, a.logger); d.Subscribe(a.bus) {
		a.webhooks = d
	}
	go a.bus.Start()
}

func (a *app) close() {
	if a.bus != nil {
		a.bus.Stop()
		<-a.bus.Finished()
	}
	if a.webhooks != nil {
		a.webhooks.Wait()
	}
	if a.cache != nil {
		st := a.cache.Stats()
		if st.Hits+st.Misses > 0 {
			a.logger.Debug("response cache", slog.Int64("hits", st.Hits), slog.Int64("misses", st.Misses))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("closing database", slog.String("error", err.Error()))
		}
	}
	if a.logs != nil {
		a.logs.Close() //nolint:errcheck
	}
}
