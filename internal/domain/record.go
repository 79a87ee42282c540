package domain

import "time"

// UncategorizedLabel is assigned to records whose category is missing or blank.
const UncategorizedLabel = "Другое"

// Record is one job posting as stored by the record source.
type Record struct {
	Category  string     `json:"category" yaml:"category"`
	SalaryMin *float64   `json:"salaryMin,omitempty" yaml:"salary_min,omitempty"`
	SalaryMax *float64   `json:"salaryMax,omitempty" yaml:"salary_max,omitempty"`
	ParsedAt  *time.Time `json:"parsedAt,omitempty" yaml:"parsed_at,omitempty"`
}

type CategorySummary struct {
	Category     string `json:"category"`
	AvgSalaryMin int64  `json:"avgSalaryMin"`
	AvgSalaryMax int64  `json:"avgSalaryMax"`
	AvgSalary    int64  `json:"avgSalary"`
	Count        int    `json:"count"`
}

// AggregateResult is the output of one complete fetch cycle. It is never
// mutated after it is returned; the next cycle replaces it.
type AggregateResult struct {
	Categories       []CategorySummary `json:"categories"`
	TotalRecords     int               `json:"totalRecords"`
	OverallAvgSalary int64             `json:"overallAvgSalary"`
	LastUpdated      *time.Time        `json:"lastUpdated"`
	Truncated        bool              `json:"truncated,omitempty"`
}

// Float is a small helper for building records with salary bounds.
func Float(v float64) *float64 { return &v }
