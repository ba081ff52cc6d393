package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sydlexius/crawler/internal/event"
	"github.com/sydlexius/crawler/internal/provider"
)

const (
	maxRetries     = 3
	requestTimeout = 10 * time.Second
)

// Dispatcher sends events to matching webhooks.
type Dispatcher struct {
	hooks      []Webhook
	httpClient *http.Client
	logger     *slog.Logger
	backoff    time.Duration
	wg         sync.WaitGroup
}

// NewDispatcher creates a webhook dispatcher. A nil client gets one with a
// 10 second timeout.
func NewDispatcher(hooks []Webhook, httpClient *http.Client, logger *slog.Logger) *Dispatcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	return &Dispatcher{
		hooks:      hooks,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "webhook-dispatcher")),
		backoff:    time.Second,
	}
}

// Subscribe registers the dispatcher on bus for every event some enabled
// webhook wants. It reports whether anything was subscribed.
func (d *Dispatcher) Subscribe(bus *event.Bus) bool {
	var types []event.Type
	for _, t := range AllTypes() {
		for i := range d.hooks {
			if d.hooks[i].Wants(t) {
				types = append(types, t)
				break
			}
		}
	}
	if len(types) == 0 {
		return false
	}
	bus.Subscribe(d.HandleEvent, types...)
	return true
}

// HandleEvent is an event.Handler that dispatches the event to all matching
// webhooks. Deliveries run in the background; Wait blocks until they end.
func (d *Dispatcher) HandleEvent(e event.Event) {
	for i := range d.hooks {
		w := d.hooks[i]
		if !w.Wants(e.Type) {
			continue
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.deliver(w, e)
		}()
	}
}

// Wait blocks until every started delivery has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(w Webhook, e event.Event) {
	body, contentType := formatPayload(&w, e)

	var lastErr error
	for attempt := range maxRetries {
		if attempt > 0 {
			time.Sleep(d.backoff << uint(attempt-1))
		}

		lastErr = d.send(w.URL, body, contentType)
		if lastErr == nil {
			d.logger.Debug("webhook delivered",
				slog.String("webhook", w.Name),
				slog.String("event", string(e.Type)),
				slog.Int("attempt", attempt+1))
			return
		}

		d.logger.Warn("webhook delivery failed",
			slog.String("webhook", w.Name),
			slog.String("event", string(e.Type)),
			slog.Int("attempt", attempt+1),
			slog.String("error", lastErr.Error()))
	}

	d.logger.Error("webhook delivery exhausted retries",
		slog.String("webhook", w.Name),
		slog.String("event", string(e.Type)),
		slog.String("error", lastErr.Error()))
}

func (d *Dispatcher) send(url string, body []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", provider.UserAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()        //nolint:errcheck
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
