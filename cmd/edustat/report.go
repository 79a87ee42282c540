package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"

	"edustat-engine/internal/app"
	"edustat-engine/internal/domain"
	"edustat-engine/internal/export"
	"edustat-engine/internal/stats"
	"edustat-engine/internal/statscache"
)

func runReport(ctx context.Context, args []string) error {
	fs, cfgPath := newFlags("report")
	sortFlag := fs.String("sort", "salary", "Sort by salary or count")
	if err := fs.Parse(args); err != nil {
		return err
	}
	by, ok := stats.ParseSortBy(*sortFlag)
	if !ok {
		return fmt.Errorf("invalid -sort %q", *sortFlag)
	}

	snap, err := fetchStats(ctx, *cfgPath, by)
	if err != nil {
		return err
	}
	return pterm.DefaultTable.WithHasHeader().WithData(reportTable(snap.Result)).Render()
}

func runExport(ctx context.Context, args []string) error {
	fs, cfgPath := newFlags("export")
	formatFlag := fs.String("format", "xlsx", "Output format: xlsx or csv")
	out := fs.String("out", "", "Output file (default: vacancy-stats-DATE.FORMAT)")
	sortFlag := fs.String("sort", "salary", "Sort by salary or count")
	if err := fs.Parse(args); err != nil {
		return err
	}
	format, ok := export.ParseFormat(*formatFlag)
	if !ok {
		return fmt.Errorf("invalid -format %q", *formatFlag)
	}
	by, ok := stats.ParseSortBy(*sortFlag)
	if !ok {
		return fmt.Errorf("invalid -sort %q", *sortFlag)
	}

	snap, err := fetchStats(ctx, *cfgPath, by)
	if err != nil {
		return err
	}

	path := *out
	if path == "" {
		path = export.Filename(format, time.Now())
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.Write(f, format, snap.Result); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	pterm.Success.Printf("wrote %s (%d categories)\n", path, len(snap.Result.Categories))
	return nil
}

// fetchStats runs one full cycle, drawing a progress bar if the source has
// to be paged through.
func fetchStats(ctx context.Context, cfgPath string, by stats.SortBy) (statscache.Snapshot, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return statscache.Snapshot{}, err
	}
	rt, err := app.Open(ctx, cfg)
	if err != nil {
		return statscache.Snapshot{}, err
	}
	defer rt.Close()

	var bar *pb.ProgressBar
	opts := app.AdapterOptions(cfg)
	opts.OnPage = func(page, fetched int) {
		if bar == nil {
			bar = pb.New(cfg.Stats.MaxPages)
			bar.Set("prefix", "pages ")
			bar.Start()
		}
		bar.SetCurrent(int64(page))
	}

	adapter := statscache.New(rt.Source, opts, nil)
	defer adapter.Close()

	snap, err := adapter.Get(ctx, by)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return snap, err
	}
	if snap.Result.Truncated {
		pterm.Warning.Printf("page ceiling reached: counted %s of %s vacancies\n",
			humanize.Comma(int64(countOf(snap.Result))), humanize.Comma(int64(snap.Result.TotalRecords)))
	}
	return snap, nil
}

func countOf(res domain.AggregateResult) int {
	n := 0
	for _, c := range res.Categories {
		n += c.Count
	}
	return n
}

func reportTable(res domain.AggregateResult) pterm.TableData {
	data := pterm.TableData{{"Категория", "Вакансий", "Мин.", "Макс.", "Средняя"}}
	for _, c := range res.Categories {
		data = append(data, []string{
			c.Category,
			humanize.Comma(int64(c.Count)),
			money(c.AvgSalaryMin),
			money(c.AvgSalaryMax),
			colorizeSalary(c.AvgSalary),
		})
	}
	data = append(data, []string{
		pterm.Bold.Sprint("Итого"),
		humanize.Comma(int64(res.TotalRecords)),
		"", "",
		colorizeSalary(res.OverallAvgSalary),
	})
	return data
}

func money(v int64) string {
	if v == 0 {
		return "-"
	}
	return humanize.Comma(v) + " BYN"
}

func colorizeSalary(v int64) string {
	s := money(v)
	switch {
	case v == 0:
		return pterm.Gray(s)
	case v >= 3000:
		return pterm.Green(s)
	case v >= 1500:
		return pterm.LightGreen(s)
	case v >= 800:
		return pterm.Yellow(s)
	default:
		return pterm.Red(s)
	}
}
