package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"edustat-engine/internal/backend"
	"edustat-engine/internal/domain"
	"edustat-engine/internal/source"
)

// fakeBackend serves total generated rows and, when aggregate is set, the RPC.
type fakeBackend struct {
	total     int
	aggregate string
	pageCalls int
	lastKey   string
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.lastKey = r.Header.Get("apikey")
	switch {
	case r.Method == http.MethodHead && r.URL.Path == "/rest/v1/vacancies":
		if r.Header.Get("Prefer") != "count=exact" {
			http.Error(w, "missing prefer", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("0-0/%d", f.total))
	case r.Method == http.MethodPost && r.URL.Path == "/rest/v1/rpc/get_vacancy_stats":
		if f.aggregate == "" {
			http.Error(w, `{"code":"PGRST202"}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(f.aggregate))
	case r.Method == http.MethodGet && r.URL.Path == "/rest/v1/vacancies":
		f.pageCalls++
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		var rows []map[string]any
		for i := offset; i < min(offset+limit, f.total); i++ {
			rows = append(rows, map[string]any{"category": "IT", "salary_min": 1000 + i, "salary_max": nil})
		}
		if rows == nil {
			rows = []map[string]any{}
		}
		_ = json.NewEncoder(w).Encode(rows)
	default:
		http.NotFound(w, r)
	}
}

func newTestSource(t *testing.T, fb *fakeBackend) *Source {
	t.Helper()
	srv := httptest.NewServer(fb)
	t.Cleanup(srv.Close)
	return New(backend.New(srv.URL, "anon-key", 1000), "vacancies", "get_vacancy_stats")
}

func TestCount(t *testing.T) {
	fb := &fakeBackend{total: 3573}
	s := newTestSource(t, fb)

	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3573 {
		t.Errorf("Count = %d, want 3573", n)
	}
	if fb.lastKey != "anon-key" {
		t.Errorf("apikey header = %q", fb.lastKey)
	}
}

func TestAggregateUnavailable(t *testing.T) {
	s := newTestSource(t, &fakeBackend{})
	_, err := s.Aggregate(context.Background())
	if !errors.Is(err, source.ErrAggregationUnavailable) {
		t.Fatalf("err = %v, want ErrAggregationUnavailable", err)
	}

	noRPC := New(backend.New("http://127.0.0.1:1", "", 1000), "vacancies", "")
	if _, err := noRPC.Aggregate(context.Background()); !errors.Is(err, source.ErrAggregationUnavailable) {
		t.Fatalf("err = %v, want ErrAggregationUnavailable", err)
	}
}

func TestAggregateParsesRows(t *testing.T) {
	fb := &fakeBackend{aggregate: `[
		{"category":"IT","avg_salary_min":1250,"avg_salary_max":2250,"count":2,"last_parsed_at":"2024-05-11T09:00:00+00:00"},
		{"category":null,"avg_salary_min":800,"avg_salary_max":null,"count":1,"last_parsed_at":"2024-05-12 07:45:00"}
	]`}
	s := newTestSource(t, fb)

	got, err := s.Aggregate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []domain.CategorySummary{
		{Category: "IT", AvgSalaryMin: 1250, AvgSalaryMax: 2250, AvgSalary: 1750, Count: 2},
		{Category: domain.UncategorizedLabel, AvgSalaryMin: 800, AvgSalaryMax: 800, AvgSalary: 800, Count: 1},
	}
	cats := got.Categories
	if len(cats) != len(want) || cats[0] != want[0] || cats[1] != want[1] {
		t.Fatalf("got %+v, want %+v", cats, want)
	}
	last := time.Date(2024, 5, 12, 7, 45, 0, 0, time.UTC)
	if got.LastUpdated == nil || !got.LastUpdated.Equal(last) {
		t.Errorf("lastUpdated = %v, want %v", got.LastUpdated, last)
	}
}

func TestAggregateWithoutLastParsedAt(t *testing.T) {
	s := newTestSource(t, &fakeBackend{aggregate: `[{"category":"IT","avg_salary_min":1000,"count":1}]`})
	got, err := s.Aggregate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.LastUpdated != nil {
		t.Errorf("lastUpdated = %v, want nil", got.LastUpdated)
	}
}

func TestAggregateRejectsMissingCount(t *testing.T) {
	s := newTestSource(t, &fakeBackend{aggregate: `[{"category":"IT"}]`})
	if _, err := s.Aggregate(context.Background()); !errors.Is(err, source.ErrAggregationUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestPage(t *testing.T) {
	fb := &fakeBackend{total: 25}
	s := newTestSource(t, fb)

	recs, err := s.Page(context.Background(), 20, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 5 {
		t.Fatalf("len = %d, want 5", len(recs))
	}
	if recs[0].SalaryMin == nil || *recs[0].SalaryMin != 1020 || recs[0].SalaryMax != nil {
		t.Errorf("first record = %+v", recs[0])
	}
}

func TestPageServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New(backend.New(srv.URL, "", 1000), "vacancies", "")
	_, err := s.Page(context.Background(), 0, 10)

	var se *backend.StatusError
	if !errors.As(err, &se) || se.Status != http.StatusInternalServerError {
		t.Fatalf("err = %v, want StatusError 500", err)
	}
}

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"0-0/3573", 3573, true},
		{"*/0", 0, true},
		{"0-24/*", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, err := parseContentRange(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("parseContentRange(%q) = %d, %v", tt.in, got, err)
		}
	}
}
