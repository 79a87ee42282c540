package remote

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"edustat-engine/internal/domain"
	"edustat-engine/internal/stats"
)

// Rows from the backend are loosely typed: salaries arrive as numbers, numeric
// strings or null, and categories may be missing. Everything is parsed here so
// the aggregation engine only ever sees well-formed records.

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseRecord never fails. A row that is not an object becomes an empty
// record so the page keeps its length; ok reports whether it was well formed.
func parseRecord(raw json.RawMessage) (rec domain.Record, ok bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return domain.Record{Category: domain.UncategorizedLabel}, false
	}

	ok = true
	cat, catOK := parseString(fields["category"])
	if !catOK {
		ok = false
	}
	rec.Category = stats.CategoryOf(domain.Record{Category: cat})

	var good bool
	if rec.SalaryMin, good = parseSalary(fields["salary_min"]); !good {
		ok = false
	}
	if rec.SalaryMax, good = parseSalary(fields["salary_max"]); !good {
		ok = false
	}
	rec.ParsedAt = parseTime(fields["parsed_at"])
	return rec, ok
}

func parseString(raw json.RawMessage) (string, bool) {
	if isNull(raw) {
		return "", true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return strings.TrimSpace(s), true
}

// parseSalary returns nil for absent values. good is false when a value was
// present but unusable.
func parseSalary(raw json.RawMessage) (v *float64, good bool) {
	if isNull(raw) {
		return nil, true
	}

	var val interface{}
	if err := json.Unmarshal(raw, &val); err != nil {
		return nil, false
	}

	var f float64
	switch x := val.(type) {
	case float64:
		f = x
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(x), " ", "")
		s = strings.ReplaceAll(s, ",", ".")
		if s == "" {
			return nil, true
		}
		p, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		f = p
	default:
		return nil, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return nil, false
	}
	if f == 0 {
		return nil, true
	}
	return &f, true
}

func parseTime(raw json.RawMessage) *time.Time {
	s, ok := parseString(raw)
	if !ok || s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

type aggregateRow struct {
	Category     *string  `json:"category"`
	AvgSalaryMin *float64 `json:"avg_salary_min"`
	AvgSalaryMax *float64 `json:"avg_salary_max"`
	Count        *int     `json:"count"`
	// Optional. Older deployments of the RPC do not return it.
	LastParsedAt json.RawMessage `json:"last_parsed_at"`
}
