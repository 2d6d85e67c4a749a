package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// span is a half-open index range [start, end) of one partition.
type span struct {
	start, end int
}

// splitSpans cuts n items into at most parts contiguous, near-equal spans.
// Concatenating per-span results in span order reproduces input order, which
// keeps every stage independent of the partition count.
func splitSpans(n, parts int) []span {
	if parts < 1 {
		parts = 1
	}
	if parts > n {
		parts = n
	}
	if parts == 0 {
		return nil
	}

	spans := make([]span, 0, parts)
	size, rem := n/parts, n%parts
	start := 0
	for i := 0; i < parts; i++ {
		end := start + size
		if i < rem {
			end++
		}
		spans = append(spans, span{start: start, end: end})
		start = end
	}
	return spans
}

// forEachPartition runs fn once per span concurrently and returns the first
// error. fn receives the partition index and its span.
func forEachPartition(ctx context.Context, spans []span, fn func(ctx context.Context, idx int, sp span) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for i, sp := range spans {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(ctx, i, sp)
		})
	}
	return g.Wait()
}
