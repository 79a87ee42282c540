// Package export writes an aggregate result as a spreadsheet for download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"edustat-engine/internal/domain"
)

const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"

	sheetName = "Статистика"
)

var header = []string{"Категория", "Вакансий", "Средняя мин. зарплата", "Средняя макс. зарплата", "Средняя зарплата"}

// ParseFormat accepts "xlsx" (the default) and "csv".
func ParseFormat(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", FormatXLSX:
		return FormatXLSX, true
	case FormatCSV:
		return FormatCSV, true
	}
	return "", false
}

func ContentType(format string) string {
	if format == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Filename is the download name for a result exported at t.
func Filename(format string, t time.Time) string {
	return fmt.Sprintf("vacancy-stats-%s.%s", t.Format("2006-01-02"), format)
}

func Write(w io.Writer, format string, res domain.AggregateResult) error {
	switch format {
	case FormatXLSX:
		return writeXLSX(w, res)
	case FormatCSV:
		return writeCSV(w, res)
	}
	return fmt.Errorf("unknown export format %q", format)
}

func rows(res domain.AggregateResult) [][]any {
	out := make([][]any, 0, len(res.Categories)+2)
	for _, c := range res.Categories {
		out = append(out, []any{c.Category, c.Count, c.AvgSalaryMin, c.AvgSalaryMax, c.AvgSalary})
	}
	out = append(out, []any{"Итого", res.TotalRecords, nil, nil, res.OverallAvgSalary})
	return out
}

func writeXLSX(w io.Writer, res domain.AggregateResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	set := func(col, row int, v any) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return f.SetCellValue(sheetName, cell, v)
	}

	for i, h := range header {
		if err := set(i+1, 1, h); err != nil {
			return err
		}
	}
	for r, vals := range rows(res) {
		for c, v := range vals {
			if v == nil {
				continue
			}
			if err := set(c+1, r+2, v); err != nil {
				return err
			}
		}
	}

	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, bold); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "A", "A", 32); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "B", "E", 22); err != nil {
		return err
	}

	if res.Truncated {
		note := len(res.Categories) + 4
		if err := set(1, note, "Внимание: статистика посчитана не по всем вакансиям."); err != nil {
			return err
		}
	}
	return f.Write(w)
}

func writeCSV(w io.Writer, res domain.AggregateResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, vals := range rows(res) {
		rec := make([]string, len(vals))
		for i, v := range vals {
			switch x := v.(type) {
			case nil:
			case string:
				rec[i] = x
			case int:
				rec[i] = strconv.Itoa(x)
			case int64:
				rec[i] = strconv.FormatInt(x, 10)
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
