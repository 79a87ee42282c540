package statscache

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"edustat-engine/internal/source"
	"edustat-engine/internal/stats"
)

// fetchCycle runs the count query and the server-side aggregation side by side.
// If aggregation is unavailable it pages through every record instead.
func (a *Adapter) fetchCycle(ctx context.Context) (cycle, error) {
	var (
		total  int
		server source.Aggregation
		aggErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := a.src.Count(gctx)
		if err != nil {
			return fmt.Errorf("%w: count: %w", stats.ErrTransport, err)
		}
		total = n
		return nil
	})
	g.Go(func() error {
		server, aggErr = a.src.Aggregate(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return cycle{}, ctxErr
		}
		return cycle{}, err
	}

	if aggErr == nil {
		return cycle{
			summaries:   server.Categories,
			total:       total,
			lastUpdated: server.LastUpdated,
			path:        PathServer,
		}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return cycle{}, ctxErr
	}
	if !errors.Is(aggErr, source.ErrAggregationUnavailable) {
		log.Printf("[stats] aggregate failed, paging instead: %v", aggErr)
	}

	fetched, err := stats.FetchAll(ctx, a.src, stats.FetchOptions{
		PageSize:    a.opts.PageSize,
		MaxPages:    a.opts.MaxPages,
		PageTimeout: a.opts.PageTimeout,
		OnPage:      a.opts.OnPage,
	})
	if err != nil {
		return cycle{}, err
	}

	summaries, last := stats.Group(fetched.Records, a.opts.Imputation)
	c := cycle{
		summaries:   summaries,
		total:       total,
		lastUpdated: last,
		truncated:   fetched.Truncated && len(fetched.Records) < total,
		path:        PathPaged,
	}
	if c.truncated {
		log.Printf("level=warn msg=\"stats truncated\" fetched=%d total=%d pages=%d",
			len(fetched.Records), total, fetched.Pages)
		if a.opts.FailOnTruncation {
			return cycle{}, fmt.Errorf("%w: fetched %d of %d", stats.ErrTruncated, len(fetched.Records), total)
		}
	}
	if len(fetched.Records) > total {
		// Rows were added between the count query and the last page.
		c.total = len(fetched.Records)
	}
	return c, nil
}
