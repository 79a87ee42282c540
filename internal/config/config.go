// engine/internal/config/config.go
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SourceRemote  = "remote"
	SourceSQLite  = "sqlite"
	SourceBundled = "bundled"
)

type Config struct {
	App struct {
		Port    int    `yaml:"port" json:"port"`
		DataDir string `yaml:"data_dir" json:"data_dir"`
	} `yaml:"app" json:"app"`

	Source struct {
		Kind           string  `yaml:"kind" json:"kind"` // remote | sqlite | bundled
		BaseURL        string  `yaml:"base_url" json:"base_url"`
		Table          string  `yaml:"table" json:"table"`
		AggregateRPC   string  `yaml:"aggregate_rpc" json:"aggregate_rpc"`
		APIKey         string  `yaml:"api_key" json:"api_key"` // prefer the keychain
		KeyringAccount string  `yaml:"keyring_account" json:"keyring_account"`
		RequestsPerSec float64 `yaml:"requests_per_second" json:"requests_per_second"`
		BundledPath    string  `yaml:"bundled_path" json:"bundled_path"`
	} `yaml:"source" json:"source"`

	Stats struct {
		PageSize            int    `yaml:"page_size" json:"page_size"`
		MaxPages            int    `yaml:"max_pages" json:"max_pages"`
		StaleSeconds        int    `yaml:"stale_seconds" json:"stale_seconds"`
		PageTimeoutSeconds  int    `yaml:"page_timeout_seconds" json:"page_timeout_seconds"`
		CycleTimeoutSeconds int    `yaml:"cycle_timeout_seconds" json:"cycle_timeout_seconds"`
		Imputation          string `yaml:"imputation" json:"imputation"` // none | per_record
		FailOnTruncation    bool   `yaml:"fail_on_truncation" json:"fail_on_truncation"`
	} `yaml:"stats" json:"stats"`

	Scrape struct {
		JobsFunction       string `yaml:"jobs_function" json:"jobs_function"`
		UniversityFunction string `yaml:"university_function" json:"university_function"`
		TimeoutSeconds     int    `yaml:"timeout_seconds" json:"timeout_seconds"`
	} `yaml:"scrape" json:"scrape"`
}

func Defaults() Config {
	var c Config
	c.App.Port = 38471
	c.App.DataDir = "."

	c.Source.Kind = SourceSQLite
	c.Source.Table = "vacancies"
	c.Source.AggregateRPC = "get_vacancy_stats"
	c.Source.RequestsPerSec = 5

	c.Stats.PageSize = 1000
	c.Stats.MaxPages = 50
	c.Stats.StaleSeconds = 300
	c.Stats.PageTimeoutSeconds = 15
	c.Stats.CycleTimeoutSeconds = 120
	c.Stats.Imputation = "none"

	c.Scrape.JobsFunction = "scrape-jobs"
	c.Scrape.UniversityFunction = "scrape-university"
	c.Scrape.TimeoutSeconds = 60
	return c
}

// Load reads path on top of Defaults, so omitted keys keep their defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(b, &cfg)
	return cfg, err
}

func (c Config) StaleWindow() time.Duration {
	return time.Duration(c.Stats.StaleSeconds) * time.Second
}

func (c Config) PageTimeout() time.Duration {
	return time.Duration(c.Stats.PageTimeoutSeconds) * time.Second
}

func (c Config) CycleTimeout() time.Duration {
	return time.Duration(c.Stats.CycleTimeoutSeconds) * time.Second
}

func (c Config) ScrapeTimeout() time.Duration {
	return time.Duration(c.Scrape.TimeoutSeconds) * time.Second
}
