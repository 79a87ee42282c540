package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"edustat-engine/internal/domain"
)

// fakePager serves total records (or endless records when total < 0).
type fakePager struct {
	total   int
	failAt  int // page index that fails, -1 for never
	calls   []int
	onCall  func(call int)
	pageErr error
}

func (p *fakePager) Page(ctx context.Context, offset, limit int) ([]domain.Record, error) {
	p.calls = append(p.calls, offset)
	if p.onCall != nil {
		p.onCall(len(p.calls))
	}
	if p.failAt >= 0 && len(p.calls)-1 == p.failAt {
		return nil, p.pageErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := limit
	if p.total >= 0 {
		n = min(limit, p.total-offset)
		if n < 0 {
			n = 0
		}
	}
	out := make([]domain.Record, n)
	for i := range out {
		out[i] = domain.Record{Category: "IT"}
	}
	return out, nil
}

func TestFetchAllStopsOnShortPage(t *testing.T) {
	p := &fakePager{total: 2500, failAt: -1}

	got, err := FetchAll(context.Background(), p, FetchOptions{PageSize: 1000, MaxPages: 50})
	if err != nil {
		t.Fatal(err)
	}
	if len(p.calls) != 3 {
		t.Fatalf("requests = %d, want 3", len(p.calls))
	}
	wantOffsets := []int{0, 1000, 2000}
	for i, off := range wantOffsets {
		if p.calls[i] != off {
			t.Errorf("request %d offset = %d, want %d", i, p.calls[i], off)
		}
	}
	if len(got.Records) != 2500 || got.Pages != 3 || got.Truncated {
		t.Errorf("got records=%d pages=%d truncated=%v", len(got.Records), got.Pages, got.Truncated)
	}
}

func TestFetchAllEnforcesCeiling(t *testing.T) {
	p := &fakePager{total: -1, failAt: -1}

	got, err := FetchAll(context.Background(), p, FetchOptions{PageSize: 1000, MaxPages: 50})
	if err != nil {
		t.Fatal(err)
	}
	if len(p.calls) != 50 {
		t.Fatalf("requests = %d, want 50", len(p.calls))
	}
	if len(got.Records) != 50000 {
		t.Errorf("records = %d, want 50000", len(got.Records))
	}
	if !got.Truncated {
		t.Error("Truncated = false, want true")
	}
}

func TestFetchAllEmptySource(t *testing.T) {
	p := &fakePager{total: 0, failAt: -1}
	got, err := FetchAll(context.Background(), p, FetchOptions{PageSize: 1000, MaxPages: 50})
	if err != nil {
		t.Fatal(err)
	}
	if len(p.calls) != 1 || len(got.Records) != 0 {
		t.Errorf("requests=%d records=%d", len(p.calls), len(got.Records))
	}
}

func TestFetchAllExactMultipleNeedsTrailingPage(t *testing.T) {
	p := &fakePager{total: 2000, failAt: -1}
	got, err := FetchAll(context.Background(), p, FetchOptions{PageSize: 1000, MaxPages: 50})
	if err != nil {
		t.Fatal(err)
	}
	if len(p.calls) != 3 || len(got.Records) != 2000 {
		t.Errorf("requests=%d records=%d", len(p.calls), len(got.Records))
	}
}

func TestFetchAllDiscardsPartialOnFailure(t *testing.T) {
	boom := errors.New("connection reset")
	p := &fakePager{total: -1, failAt: 2, pageErr: boom}

	got, err := FetchAll(context.Background(), p, FetchOptions{PageSize: 10, MaxPages: 50})
	if !errors.Is(err, ErrTransport) || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want transport failure wrapping cause", err)
	}
	if got.Records != nil || got.Pages != 0 {
		t.Errorf("partial result leaked: %+v", got)
	}
	if len(p.calls) != 3 {
		t.Errorf("requests = %d, want 3", len(p.calls))
	}
}

func TestFetchAllStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &fakePager{total: -1, failAt: -1}
	p.onCall = func(call int) {
		if call == 2 {
			cancel()
		}
	}

	_, err := FetchAll(ctx, p, FetchOptions{PageSize: 10, MaxPages: 50})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(p.calls) != 2 {
		t.Errorf("requests = %d, want 2", len(p.calls))
	}
}

type slowPager struct{}

func (slowPager) Page(ctx context.Context, offset, limit int) ([]domain.Record, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestFetchAllPageTimeout(t *testing.T) {
	_, err := FetchAll(context.Background(), slowPager{}, FetchOptions{PageTimeout: 10 * time.Millisecond})
	if !errors.Is(err, ErrTransport) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want transport failure from page deadline", err)
	}
}

func TestFetchAllReportsProgress(t *testing.T) {
	p := &fakePager{total: 25, failAt: -1}
	var seen []int
	_, err := FetchAll(context.Background(), p, FetchOptions{
		PageSize: 10,
		OnPage:   func(page, fetched int) { seen = append(seen, fetched) },
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 3 || seen[2] != 25 {
		t.Errorf("progress = %v", seen)
	}
}
