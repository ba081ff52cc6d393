package provider

import (
	"context"
	"fmt"
	"iter"
)

// Page addresses one page of a remote result list.
type Page struct {
	Number int // 1-based
	Offset int // 0-based index of the first item
	Size   int
}

// PageFunc fetches one page. more reports whether the remote API announced a
// further page; a short page ends the sequence regardless.
type PageFunc[T any] func(ctx context.Context, page Page) (items []T, more bool, err error)

// Paginate turns fetch into a lazy sequence of results. Before every page
// fetch it waits on the limiter of name and on no other. Pages are requested
// only as the consumer advances. A maxPages of zero or less means no page
// cap.
func Paginate[T any](ctx context.Context, limiter *RateLimiterMap, name ProviderName, pageSize, maxPages int, fetch PageFunc[T]) iter.Seq2[Result[T], error] {
	return func(yield func(Result[T], error) bool) {
		var zero Result[T]
		for n := 1; maxPages <= 0 || n <= maxPages; n++ {
			if limiter != nil {
				if err := limiter.Wait(ctx, name); err != nil {
					yield(zero, &ErrProviderUnavailable{
						Provider: name,
						Cause:    fmt.Errorf("rate limiter: %w", err),
					})
					return
				}
			}

			items, more, err := fetch(ctx, Page{Number: n, Offset: (n - 1) * pageSize, Size: pageSize})
			if err != nil {
				yield(zero, err)
				return
			}
			for _, item := range items {
				if !yield(Result[T]{Entity: item}, nil) {
					return
				}
			}
			if !more || len(items) == 0 || (pageSize > 0 && len(items) < pageSize) {
				return
			}
		}
	}
}

// Concat chains sequences one after another.
func Concat[T any](seqs ...iter.Seq2[Result[T], error]) iter.Seq2[Result[T], error] {
	return func(yield func(Result[T], error) bool) {
		for _, seq := range seqs {
			for r, err := range seq {
				if !yield(r, err) {
					return
				}
				if err != nil {
					return
				}
			}
		}
	}
}
