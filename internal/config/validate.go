package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// NormalizeAndValidate returns a normalized copy of cfg and what is wrong with it.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	var out = cfg
	var res Validation

	out.Source.Kind = strings.ToLower(strings.TrimSpace(out.Source.Kind))
	out.Source.BaseURL = strings.TrimRight(strings.TrimSpace(out.Source.BaseURL), "/")
	out.Source.Table = strings.TrimSpace(out.Source.Table)
	out.Source.AggregateRPC = strings.TrimSpace(out.Source.AggregateRPC)
	out.Stats.Imputation = strings.ToLower(strings.TrimSpace(out.Stats.Imputation))
	if out.Stats.Imputation == "" {
		out.Stats.Imputation = "none"
	}

	if out.App.Port <= 0 || out.App.Port > 65535 {
		res.addErr("app.port must be 1..65535")
	}

	switch out.Source.Kind {
	case SourceRemote:
		u, err := url.Parse(out.Source.BaseURL)
		if out.Source.BaseURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			res.addErr("source.base_url must be an http(s) URL when source.kind=remote")
		}
		if out.Source.Table == "" {
			res.addErr("source.table is required when source.kind=remote")
		}
		if out.Source.AggregateRPC == "" {
			res.addWarn("source.aggregate_rpc is empty; every refresh will page through all records.")
		}
		if out.Source.RequestsPerSec <= 0 {
			res.addErr("source.requests_per_second must be > 0")
		}
		if out.Source.APIKey != "" {
			res.addWarn("source.api_key is stored in plain text; consider the OS keychain instead.")
		}
	case SourceSQLite:
	case SourceBundled:
		if strings.TrimSpace(out.Source.BundledPath) == "" {
			res.addErr("source.bundled_path is required when source.kind=bundled")
		}
	default:
		res.addErr("source.kind must be one of remote, sqlite, bundled (got %q)", out.Source.Kind)
	}

	if out.Stats.PageSize <= 0 {
		res.addErr("stats.page_size must be > 0")
	} else if out.Stats.PageSize > 1000 {
		res.addWarn("stats.page_size is %d; backends that cap responses at 1000 rows will end pagination early.", out.Stats.PageSize)
	}
	if out.Stats.MaxPages <= 0 {
		res.addErr("stats.max_pages must be > 0")
	}
	if out.Stats.StaleSeconds <= 0 {
		res.addErr("stats.stale_seconds must be > 0")
	} else if out.Stats.StaleSeconds < 30 {
		res.addWarn("stats.stale_seconds is very low (%d) and may hammer the backend.", out.Stats.StaleSeconds)
	}
	if out.Stats.PageTimeoutSeconds <= 0 {
		res.addErr("stats.page_timeout_seconds must be > 0")
	}
	if out.Stats.CycleTimeoutSeconds <= 0 {
		res.addErr("stats.cycle_timeout_seconds must be > 0")
	} else if out.Stats.CycleTimeoutSeconds < out.Stats.PageTimeoutSeconds {
		res.addWarn("stats.cycle_timeout_seconds is shorter than one page timeout.")
	}
	if out.Stats.Imputation != "none" && out.Stats.Imputation != "per_record" {
		res.addErr("stats.imputation must be none or per_record (got %q)", out.Stats.Imputation)
	}

	if out.Source.Kind == SourceRemote {
		if strings.TrimSpace(out.Scrape.JobsFunction) == "" || strings.TrimSpace(out.Scrape.UniversityFunction) == "" {
			res.addWarn("scrape function names are empty; scrape triggers will be rejected.")
		}
	}
	if out.Scrape.TimeoutSeconds <= 0 {
		res.addErr("scrape.timeout_seconds must be > 0")
	}

	return out, res
}

// SaveAtomic validates cfg and replaces path, keeping the previous file as .bak.
// Concurrent writers are serialized with a lock file next to path.
func SaveAtomic(path string, cfg Config) error {
	normalized, vr := NormalizeAndValidate(cfg)
	if !vr.OK() {
		return errors.New("config validation failed:\n- " + strings.Join(vr.Errors, "\n- "))
	}

	b, err := yaml.Marshal(&normalized)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock config: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	tmp := path + ".tmp"
	bak := path + ".bak"

	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}

	_ = os.Remove(bak)
	_ = os.Rename(path, bak)

	return os.Rename(tmp, path)
}
