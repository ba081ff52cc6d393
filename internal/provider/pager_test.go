package provider

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"
)

func numbers(total int) PageFunc[int] {
	return func(_ context.Context, p Page) ([]int, bool, error) {
		var items []int
		for i := p.Offset; i < p.Offset+p.Size && i < total; i++ {
			items = append(items, i)
		}
		return items, p.Offset+len(items) < total, nil
	}
}

func collect(t *testing.T, seq iter.Seq2[Result[int], error]) ([]int, error) {
	t.Helper()
	var out []int
	for r, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, r.Entity)
	}
	return out, nil
}

func TestPaginateYieldsAllPages(t *testing.T) {
	got, err := collect(t, Paginate(context.Background(), nil, NameDeezer, 3, 0, numbers(7)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 7 || got[6] != 6 {
		t.Errorf("got %v", got)
	}
}

func TestPaginateRespectsMaxPages(t *testing.T) {
	got, _ := collect(t, Paginate(context.Background(), nil, NameDeezer, 3, 2, numbers(100)))
	if len(got) != 6 {
		t.Errorf("expected 6 items from 2 pages, got %d", len(got))
	}
}

func TestPaginateIsLazy(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, p Page) ([]int, bool, error) {
		calls++
		return numbers(1000)(ctx, p)
	}
	for r := range Paginate(context.Background(), nil, NameDeezer, 10, 0, fetch) {
		if r.Entity == 12 {
			break
		}
	}
	if calls != 2 {
		t.Errorf("expected 2 page fetches, got %d", calls)
	}
}

func TestPaginateStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	fetch := func(_ context.Context, p Page) ([]int, bool, error) {
		if p.Number == 2 {
			return nil, false, boom
		}
		return []int{1, 2}, true, nil
	}
	got, err := collect(t, Paginate(context.Background(), nil, NameDeezer, 2, 0, fetch))
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected first page before the error, got %v", got)
	}
}

func TestPaginateWaitsOnOwnLimiter(t *testing.T) {
	limiters := NewRateLimiterMap()
	limiters.Set(NameMusicBrainz, 10, 1)
	// A starved limiter on another provider must not slow this one down.
	limiters.Set(NameSpotify, 0.001, 1)
	_ = limiters.Wait(context.Background(), NameSpotify)

	start := time.Now()
	got, err := collect(t, Paginate(context.Background(), limiters, NameMusicBrainz, 1, 3, numbers(3)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %v", got)
	}
	elapsed := time.Since(start)
	if elapsed < 150*time.Millisecond {
		t.Errorf("expected page fetches to be paced, took %v", elapsed)
	}
	if elapsed > 2*time.Second {
		t.Errorf("pagination waited on another provider's limiter, took %v", elapsed)
	}
}

func TestPaginateCanceledContext(t *testing.T) {
	limiters := NewRateLimiterMap()
	limiters.Set(NameLastFM, 0.001, 1)
	_ = limiters.Wait(context.Background(), NameLastFM)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := collect(t, Paginate(ctx, limiters, NameLastFM, 1, 0, numbers(3)))
	var unavailable *ErrProviderUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestConcatStopsAfterError(t *testing.T) {
	boom := errors.New("boom")
	seq := Concat(Slice([]int{1}), Fail[int](boom), Slice([]int{2}))
	got, err := collect(t, seq)
	if !errors.Is(err, boom) || len(got) != 1 {
		t.Errorf("got %v, %v", got, err)
	}
}

func TestExactAndEmpty(t *testing.T) {
	for range Empty[int]() {
		t.Fatal("Empty yielded a value")
	}
	n := 0
	for r, err := range Exact(42, "mbid") {
		n++
		if err != nil || !r.Exact || r.MatchedBy != "mbid" || r.Entity != 42 {
			t.Errorf("unexpected result %+v, %v", r, err)
		}
	}
	if n != 1 {
		t.Errorf("Exact yielded %d values", n)
	}
}
