package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"edustat-engine/internal/backend"
	"edustat-engine/internal/domain"
	"edustat-engine/internal/source"
	"edustat-engine/internal/stats"
)

const recordColumns = "category,salary_min,salary_max,parsed_at"

// Source reads vacancy records from a PostgREST-style REST backend.
type Source struct {
	c     *backend.Client
	table string
	rpc   string
}

func New(c *backend.Client, table, aggregateRPC string) *Source {
	return &Source{c: c, table: table, rpc: aggregateRPC}
}

func (s *Source) Count(ctx context.Context) (int, error) {
	q := url.Values{"select": {"id"}, "limit": {"1"}}
	req, err := s.c.NewRequest(ctx, http.MethodHead, "/rest/v1/"+url.PathEscape(s.table)+"?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Prefer", "count=exact")

	resp, err := s.c.Do(req)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", s.table, err)
	}
	resp.Body.Close()

	return parseContentRange(resp.Header.Get("Content-Range"))
}

// parseContentRange reads the total from "0-0/3573" or "*/0".
func parseContentRange(h string) (int, error) {
	i := strings.LastIndexByte(h, '/')
	if i < 0 || i == len(h)-1 {
		return 0, fmt.Errorf("count: bad Content-Range %q", h)
	}
	n, err := strconv.Atoi(h[i+1:])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("count: bad Content-Range %q", h)
	}
	return n, nil
}

// Aggregate calls the aggregation RPC. Any failure, including a backend
// without the function, is reported as source.ErrAggregationUnavailable.
func (s *Source) Aggregate(ctx context.Context) (source.Aggregation, error) {
	if s.rpc == "" {
		return source.Aggregation{}, source.ErrAggregationUnavailable
	}

	req, err := s.c.NewRequest(ctx, http.MethodPost, "/rest/v1/rpc/"+url.PathEscape(s.rpc), struct{}{})
	if err != nil {
		return source.Aggregation{}, err
	}
	resp, err := s.c.Do(req)
	if err != nil {
		return source.Aggregation{}, unavailable(err)
	}
	defer resp.Body.Close()

	var rows []aggregateRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return source.Aggregation{}, unavailable(fmt.Errorf("decode %s: %w", s.rpc, err))
	}

	agg := source.Aggregation{Categories: make([]domain.CategorySummary, 0, len(rows))}
	for i, r := range rows {
		if r.Count == nil || *r.Count < 0 {
			return source.Aggregation{}, unavailable(fmt.Errorf("%s row %d: missing count", s.rpc, i))
		}
		cat := ""
		if r.Category != nil {
			cat = *r.Category
		}
		cat = stats.CategoryOf(domain.Record{Category: cat})
		agg.Categories = append(agg.Categories, stats.SummaryFromAverages(cat, r.AvgSalaryMin, r.AvgSalaryMax, *r.Count))

		if t := parseTime(r.LastParsedAt); t != nil && (agg.LastUpdated == nil || t.After(*agg.LastUpdated)) {
			agg.LastUpdated = t
		}
	}
	return agg, nil
}

func unavailable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", source.ErrAggregationUnavailable, err)
}

func (s *Source) Page(ctx context.Context, offset, limit int) ([]domain.Record, error) {
	q := url.Values{
		"select": {recordColumns},
		"order":  {"id.asc"},
		"offset": {strconv.Itoa(offset)},
		"limit":  {strconv.Itoa(limit)},
	}
	req, err := s.c.NewRequest(ctx, http.MethodGet, "/rest/v1/"+url.PathEscape(s.table)+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("page offset=%d: %w", offset, err)
	}
	defer resp.Body.Close()

	var rows []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("page offset=%d: decode: %w", offset, err)
	}

	out := make([]domain.Record, 0, len(rows))
	malformed := 0
	for _, raw := range rows {
		rec, ok := parseRecord(raw)
		if !ok {
			malformed++
		}
		out = append(out, rec)
	}
	if malformed > 0 {
		log.Printf("[remote] page offset=%d rows=%d malformed=%d (defaulted)", offset, len(rows), malformed)
	}
	return out, nil
}
