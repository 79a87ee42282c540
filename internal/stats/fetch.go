package stats

import (
	"context"
	"fmt"
	"time"

	"edustat-engine/internal/domain"
)

const (
	DefaultPageSize = 1000
	DefaultMaxPages = 50
)

// Pager is the part of a record source the fetch loop needs.
type Pager interface {
	Page(ctx context.Context, offset, limit int) ([]domain.Record, error)
}

type FetchOptions struct {
	PageSize    int
	MaxPages    int
	PageTimeout time.Duration

	// OnPage is called after every successful page with the running total.
	OnPage func(page, fetched int)
}

type Fetched struct {
	Records []domain.Record
	Pages   int
	// Truncated is set when the ceiling was hit on a full page, so more
	// records may exist.
	Truncated bool
}

// FetchAll pages through src one request at a time until a short page or the
// page ceiling. Any failed page discards everything fetched so far.
func FetchAll(ctx context.Context, src Pager, opts FetchOptions) (Fetched, error) {
	size := opts.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	var out []domain.Record
	for page := 0; page < maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return Fetched{}, err
		}

		pctx, cancel := ctx, context.CancelFunc(func() {})
		if opts.PageTimeout > 0 {
			pctx, cancel = context.WithTimeout(ctx, opts.PageTimeout)
		}
		recs, err := src.Page(pctx, page*size, size)
		cancel()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Fetched{}, ctxErr
			}
			return Fetched{}, fmt.Errorf("%w: page %d: %w", ErrTransport, page, err)
		}

		out = append(out, recs...)
		if opts.OnPage != nil {
			opts.OnPage(page+1, len(out))
		}
		if len(recs) < size {
			return Fetched{Records: out, Pages: page + 1}, nil
		}
	}

	return Fetched{Records: out, Pages: maxPages, Truncated: true}, nil
}
