package main

import (
	"strings"
	"testing"

	"github.com/pterm/pterm"

	"edustat-engine/internal/domain"
)

func TestReportTable(t *testing.T) {
	res := domain.AggregateResult{
		Categories: []domain.CategorySummary{
			{Category: "IT", AvgSalaryMin: 1250, AvgSalaryMax: 2250, AvgSalary: 1750, Count: 2},
			{Category: "Law", Count: 1200},
		},
		TotalRecords:     1202,
		OverallAvgSalary: 3,
	}
	data := reportTable(res)
	for _, row := range data {
		for i := range row {
			row[i] = pterm.RemoveColorFromString(row[i])
		}
	}
	if len(data) != 4 {
		t.Fatalf("rows = %d", len(data))
	}
	if got := strings.Join(data[1], "|"); got != "IT|2|1,250 BYN|2,250 BYN|1,750 BYN" {
		t.Fatalf("row = %q", got)
	}
	if data[2][1] != "1,200" || data[2][2] != "-" {
		t.Fatalf("row = %v", data[2])
	}
	if data[3][1] != "1,202" {
		t.Fatalf("total row = %v", data[3])
	}
}

func TestLoadConfigDefaultsWhenMissing(t *testing.T) {
	t.Setenv("EDUSTAT_DATA_DIR", t.TempDir())
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Stats.PageSize != 1000 || cfg.Stats.MaxPages != 50 {
		t.Fatalf("cfg = %+v", cfg.Stats)
	}
}
