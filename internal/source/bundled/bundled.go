// Package bundled serves a static dataset shipped with the dashboard.
package bundled

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"edustat-engine/internal/domain"
	"edustat-engine/internal/source"
)

type file struct {
	Vacancies []domain.Record `yaml:"vacancies"`
}

// Source is an in-memory record set. It has no server-side aggregation, so
// the stats adapter always pages through it.
type Source struct {
	records []domain.Record
}

func New(records []domain.Record) *Source {
	return &Source{records: records}
}

// Load reads a YAML file with a top-level "vacancies" list.
func Load(path string) (*Source, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("bundled %s: %w", path, err)
	}
	return New(f.Vacancies), nil
}

func (s *Source) Count(ctx context.Context) (int, error) {
	return len(s.records), ctx.Err()
}

func (s *Source) Aggregate(ctx context.Context) (source.Aggregation, error) {
	return source.Aggregation{}, source.ErrAggregationUnavailable
}

func (s *Source) Page(ctx context.Context, offset, limit int) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset >= len(s.records) || offset < 0 {
		return []domain.Record{}, nil
	}
	end := min(offset+limit, len(s.records))
	out := make([]domain.Record, end-offset)
	copy(out, s.records[offset:end])
	return out, nil
}
