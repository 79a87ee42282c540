package source

import (
	"context"
	"errors"
	"time"

	"edustat-engine/internal/domain"
)

// ErrAggregationUnavailable means the source cannot aggregate server-side.
// Callers fall back to paging through the records.
var ErrAggregationUnavailable = errors.New("server-side aggregation unavailable")

// Aggregation is what a source returns when it groups records itself.
type Aggregation struct {
	Categories []domain.CategorySummary
	// LastUpdated is the latest parsed_at across the grouped records, nil if
	// none carried one.
	LastUpdated *time.Time
}

// RecordSource is a queryable store of flat vacancy records.
//
// Page results must be stable across identical calls during one fetch cycle.
type RecordSource interface {
	Count(ctx context.Context) (int, error)
	Aggregate(ctx context.Context) (Aggregation, error)
	Page(ctx context.Context, offset, limit int) ([]domain.Record, error)
}
