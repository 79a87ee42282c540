package stats

import (
	"math"
	"sort"
	"strings"
	"time"

	"edustat-engine/internal/domain"
)

type SortBy string

const (
	SortBySalary SortBy = "salary"
	SortByCount  SortBy = "count"
)

// ParseSortBy maps a query value to a SortBy. Empty means salary.
func ParseSortBy(s string) (SortBy, bool) {
	switch SortBy(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortBySalary:
		return SortBySalary, true
	case SortByCount:
		return SortByCount, true
	}
	return "", false
}

// Imputation controls what happens when a record carries only one salary bound.
type Imputation string

const (
	// ImputeNone averages each bound only over records that have it.
	ImputeNone Imputation = "none"
	// ImputePerRecord copies the present bound into the missing one first.
	ImputePerRecord Imputation = "per_record"
)

type Options struct {
	Sort       SortBy
	Imputation Imputation
}

// Totals holds the running sums for one category during a single pass.
type Totals struct {
	Category string
	Count    int
	SumMin   float64
	NMin     int
	SumMax   float64
	NMax     int
}

func (t *Totals) add(r domain.Record, imp Imputation) {
	t.Count++

	lo, hasLo := bound(r.SalaryMin)
	hi, hasHi := bound(r.SalaryMax)
	if imp == ImputePerRecord {
		switch {
		case hasLo && !hasHi:
			hi, hasHi = lo, true
		case hasHi && !hasLo:
			lo, hasLo = hi, true
		}
	}
	if hasLo {
		t.SumMin += lo
		t.NMin++
	}
	if hasHi {
		t.SumMax += hi
		t.NMax++
	}
}

// Summary turns the sums into averages. A category without any max samples
// reports its min average as the max.
func (t Totals) Summary() domain.CategorySummary {
	var avgMin, avgMax int64
	if t.NMin > 0 {
		avgMin = round(t.SumMin / float64(t.NMin))
	}
	if t.NMax > 0 {
		avgMax = round(t.SumMax / float64(t.NMax))
	} else {
		avgMax = avgMin
	}
	return domain.CategorySummary{
		Category:     t.Category,
		AvgSalaryMin: avgMin,
		AvgSalaryMax: avgMax,
		AvgSalary:    round(float64(avgMin+avgMax) / 2),
		Count:        t.Count,
	}
}

// SummaryFromAverages finishes a category whose bound averages were computed
// by the record source. A nil bound means no samples.
func SummaryFromAverages(category string, avgMin, avgMax *float64, count int) domain.CategorySummary {
	t := Totals{Category: category, Count: count}
	if v, ok := bound(avgMin); ok {
		t.SumMin, t.NMin = v, 1
	}
	if v, ok := bound(avgMax); ok {
		t.SumMax, t.NMax = v, 1
	}
	return t.Summary()
}

// Aggregate groups records by category and summarizes them. It has no side
// effects and returns identical output for identical input.
func Aggregate(records []domain.Record, opts Options) domain.AggregateResult {
	summaries, last := Group(records, opts.Imputation)
	res := Summarize(summaries, opts.Sort)
	res.LastUpdated = last
	return res
}

// Group returns one summary per category in first-seen order, plus the latest
// ParsedAt across records.
func Group(records []domain.Record, imp Imputation) ([]domain.CategorySummary, *time.Time) {
	index := make(map[string]int)
	var totals []Totals
	var last *time.Time

	for _, r := range records {
		cat := CategoryOf(r)
		i, ok := index[cat]
		if !ok {
			i = len(totals)
			index[cat] = i
			totals = append(totals, Totals{Category: cat})
		}
		totals[i].add(r, imp)

		if r.ParsedAt != nil && (last == nil || r.ParsedAt.After(*last)) {
			t := *r.ParsedAt
			last = &t
		}
	}

	summaries := make([]domain.CategorySummary, 0, len(totals))
	for _, t := range totals {
		summaries = append(summaries, t.Summary())
	}
	return summaries, last
}

// Summarize builds a result from per-category summaries that were computed
// elsewhere, e.g. by the record source itself.
func Summarize(summaries []domain.CategorySummary, by SortBy) domain.AggregateResult {
	cats := make([]domain.CategorySummary, len(summaries))
	copy(cats, summaries)
	SortSummaries(cats, by)

	var weighted float64
	total := 0
	for _, c := range cats {
		weighted += float64(c.AvgSalary) * float64(c.Count)
		total += c.Count
	}

	var overall int64
	if total > 0 {
		overall = round(weighted / float64(total))
	}

	return domain.AggregateResult{
		Categories:       cats,
		TotalRecords:     total,
		OverallAvgSalary: overall,
	}
}

// SortSummaries orders summaries descending by the chosen key. Ties keep
// their current relative order.
func SortSummaries(cats []domain.CategorySummary, by SortBy) {
	key := func(c domain.CategorySummary) int64 { return c.AvgSalary }
	if by == SortByCount {
		key = func(c domain.CategorySummary) int64 { return int64(c.Count) }
	}
	sort.SliceStable(cats, func(i, j int) bool {
		return key(cats[i]) > key(cats[j])
	})
}

// CategoryOf returns the grouping label for a record.
func CategoryOf(r domain.Record) string {
	if strings.TrimSpace(r.Category) == "" {
		return domain.UncategorizedLabel
	}
	return r.Category
}

func bound(v *float64) (float64, bool) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) || *v <= 0 {
		return 0, false
	}
	return *v, true
}

// round is half-up, which is what the dashboard has always displayed.
func round(x float64) int64 {
	return int64(math.Floor(x + 0.5))
}
