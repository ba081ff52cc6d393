// Package httpcache stores successful GET responses from metadata sources in
// SQLite and replays them until they expire.
package httpcache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// HeaderStatus is set on every response that passed through the cache.
const HeaderStatus = "X-Crawler-Cache"

// DefaultMaxBody bounds the size of a stored response.
const DefaultMaxBody = 4 * 1024 * 1024

// timeFormat has a fixed width so stored timestamps compare as strings.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Transport is an http.RoundTripper that answers GET requests from the
// response_cache table when a fresh entry exists. Only 200 responses that
// pass Cacheable are stored.
type Transport struct {
	// Cacheable reports whether a 200 response may be stored. New sets it
	// to NoErrorEnvelope; nil stores every 200 response.
	Cacheable func(resp *http.Response, body []byte) bool
	// MaxBody bounds the size of a stored response. Larger bodies pass
	// through unstored.
	MaxBody int64

	db     *sql.DB
	next   http.RoundTripper
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a caching transport in front of next. A nil next uses
// http.DefaultTransport.
func New(db *sql.DB, next http.RoundTripper, ttl time.Duration, logger *slog.Logger) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Transport{
		Cacheable: NoErrorEnvelope,
		MaxBody:   DefaultMaxBody,
		db:        db,
		next:      next,
		ttl:       ttl,
		logger:    logger.With(slog.String("component", "httpcache")),
		now:       time.Now,
	}
}

// NoErrorEnvelope rejects JSON objects carrying a top-level "error" member.
// Deezer and Last.fm report failures such as quota limits that way with a
// 200 status.
func NoErrorEnvelope(_ *http.Response, body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return true
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &top); err != nil {
		return true
	}
	_, failed := top["error"]
	return !failed
}

// Stats reports cache hits and misses since creation.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Stats returns the hit and miss counters.
func (t *Transport) Stats() Stats {
	return Stats{Hits: t.hits.Load(), Misses: t.misses.Load()}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet || t.ttl <= 0 {
		return t.next.RoundTrip(req)
	}
	ctx := req.Context()
	key := cacheKey(req)

	if resp, ok := t.lookup(ctx, key, req); ok {
		t.hits.Add(1)
		return resp, nil
	}
	t.misses.Add(1)

	resp, err := t.next.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		return resp, err
	}

	limit := t.MaxBody
	if limit <= 0 {
		limit = DefaultMaxBody
	}
	orig := resp.Body
	body, err := io.ReadAll(io.LimitReader(orig, limit+1))
	if err != nil {
		orig.Close() //nolint:errcheck,gosec
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	resp.Header.Set(HeaderStatus, "MISS")

	if int64(len(body)) > limit {
		t.logger.Debug("response too large to cache", slog.String("url", redact(req)))
		resp.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(body), orig), Closer: orig}
		return resp, nil
	}
	orig.Close() //nolint:errcheck,gosec
	resp.Body = io.NopCloser(bytes.NewReader(body))

	if t.Cacheable != nil && !t.Cacheable(resp, body) {
		t.logger.Debug("response not cacheable", slog.String("url", redact(req)))
		return resp, nil
	}
	if err := t.store(ctx, key, req, resp, body); err != nil {
		t.logger.Warn("storing cached response", slog.String("url", redact(req)), slog.String("error", err.Error()))
	}
	return resp, nil
}

// readCloser replays the buffered prefix of a body before the rest of it.
type readCloser struct {
	io.Reader
	io.Closer
}

func (t *Transport) lookup(ctx context.Context, key string, req *http.Request) (*http.Response, bool) {
	var (
		status  int
		rawHdr  string
		body    []byte
		expires string
	)
	err := t.db.QueryRowContext(ctx, `
		SELECT status, header, body, expires_at FROM response_cache WHERE key = ?
	`, key).Scan(&status, &rawHdr, &body, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		t.logger.Warn("reading cached response", slog.String("error", err.Error()))
		return nil, false
	}
	exp, err := time.Parse(timeFormat, expires)
	if err != nil || !t.now().Before(exp) {
		return nil, false
	}

	header := make(http.Header)
	if err := json.Unmarshal([]byte(rawHdr), &header); err != nil {
		return nil, false
	}
	header.Set(HeaderStatus, "HIT")
	header.Set("Content-Length", strconv.Itoa(len(body)))

	t.logger.Debug("cache hit", slog.String("url", redact(req)))
	return &http.Response{
		Status:        strconv.Itoa(status) + " " + http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}, true
}

func (t *Transport) store(ctx context.Context, key string, req *http.Request, resp *http.Response, body []byte) error {
	header := resp.Header.Clone()
	header.Del(HeaderStatus)
	header.Del("Set-Cookie")
	rawHdr, err := json.Marshal(header)
	if err != nil {
		return err
	}
	now := t.now().UTC()
	_, err = t.db.ExecContext(ctx, `
		INSERT INTO response_cache (key, provider, url, status, header, body, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			status = excluded.status,
			header = excluded.header,
			body = excluded.body,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`, key, req.URL.Host, redact(req), resp.StatusCode, string(rawHdr), body,
		now.Format(timeFormat), now.Add(t.ttl).Format(timeFormat))
	if err != nil {
		return fmt.Errorf("inserting cache entry: %w", err)
	}
	return nil
}

// Purge removes expired entries and returns how many were deleted.
func (t *Transport) Purge(ctx context.Context) (int64, error) {
	res, err := t.db.ExecContext(ctx, `
		DELETE FROM response_cache WHERE expires_at < ?
	`, t.now().UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("purging cache: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every entry, or only those of host when host is not empty.
func (t *Transport) Clear(ctx context.Context, host string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if host == "" {
		res, err = t.db.ExecContext(ctx, `DELETE FROM response_cache`)
	} else {
		res, err = t.db.ExecContext(ctx, `DELETE FROM response_cache WHERE provider = ?`, host)
	}
	if err != nil {
		return 0, fmt.Errorf("clearing cache: %w", err)
	}
	return res.RowsAffected()
}

// cacheKey hashes the request URL together with the Accept header.
func cacheKey(req *http.Request) string {
	h := sha256.New()
	h.Write([]byte(req.URL.String()))
	h.Write([]byte{0})
	h.Write([]byte(req.Header.Get("Accept")))
	return hex.EncodeToString(h.Sum(nil))
}

// redact returns the request URL without credentials in the query.
func redact(req *http.Request) string {
	u := *req.URL
	q := u.Query()
	for _, k := range []string{"api_key", "apikey", "token", "access_token"} {
		if q.Has(k) {
			q.Set(k, "REDACTED")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
