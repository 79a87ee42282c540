// Package app turns a config into the record source and clients the engine
// and the CLI run on.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"edustat-engine/internal/backend"
	"edustat-engine/internal/config"
	"edustat-engine/internal/scrape"
	"edustat-engine/internal/secrets"
	"edustat-engine/internal/source"
	"edustat-engine/internal/source/bundled"
	"edustat-engine/internal/source/remote"
	"edustat-engine/internal/stats"
	"edustat-engine/internal/statscache"
	"edustat-engine/internal/store"
)

const dbFile = "edustat.db"

type Runtime struct {
	Source source.RecordSource

	// Client is set for source.kind=remote.
	Client *backend.Client
	// Store is set for source.kind=sqlite.
	Store *store.DB
}

// Open builds the record source named by cfg.Source.Kind.
func Open(ctx context.Context, cfg config.Config) (*Runtime, error) {
	switch cfg.Source.Kind {
	case config.SourceRemote:
		c, err := NewClient(cfg)
		if err != nil {
			return nil, err
		}
		return &Runtime{
			Source: remote.New(c, cfg.Source.Table, cfg.Source.AggregateRPC),
			Client: c,
		}, nil

	case config.SourceSQLite:
		db, err := OpenStore(cfg)
		if err != nil {
			return nil, err
		}
		if err := seedFromBundled(ctx, db, cfg.Source.BundledPath); err != nil {
			log.Printf("[app] seed skipped: %v", err)
		}
		return &Runtime{Source: db, Store: db}, nil

	case config.SourceBundled:
		src, err := bundled.Load(cfg.Source.BundledPath)
		if err != nil {
			return nil, err
		}
		return &Runtime{Source: src}, nil
	}
	return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
}

func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	return r.Store.Close()
}

// Triggers returns the scrape triggers, which only exist for the hosted
// backend.
func (r *Runtime) Triggers(cfg config.Config) (scrape.Triggers, bool) {
	if r.Client == nil {
		return scrape.Triggers{}, false
	}
	return scrape.Triggers{
		Client:             r.Client,
		JobsFunction:       cfg.Scrape.JobsFunction,
		UniversityFunction: cfg.Scrape.UniversityFunction,
	}, true
}

// NewClient builds a backend client. A missing API key is not fatal: the
// backend may allow anonymous reads, and the key can be set later.
func NewClient(cfg config.Config) (*backend.Client, error) {
	key, err := secrets.BackendAPIKey(cfg)
	switch {
	case errors.Is(err, secrets.ErrNoAPIKey):
		log.Printf("[app] no backend API key configured; requests go out unauthenticated")
	case err != nil:
		return nil, err
	}
	return backend.New(cfg.Source.BaseURL, key, cfg.Source.RequestsPerSec), nil
}

func OpenStore(cfg config.Config) (*store.DB, error) {
	if err := os.MkdirAll(cfg.App.DataDir, 0o755); err != nil {
		return nil, err
	}
	db, err := store.Open(filepath.Join(cfg.App.DataDir, dbFile))
	if err != nil {
		return nil, err
	}
	db.Imputation = stats.Imputation(cfg.Stats.Imputation)
	return db, nil
}

// AdapterOptions maps the stats section onto the cache adapter.
func AdapterOptions(cfg config.Config) statscache.Options {
	return statscache.Options{
		StaleAfter:       cfg.StaleWindow(),
		PageSize:         cfg.Stats.PageSize,
		MaxPages:         cfg.Stats.MaxPages,
		PageTimeout:      cfg.PageTimeout(),
		CycleTimeout:     cfg.CycleTimeout(),
		Imputation:       stats.Imputation(cfg.Stats.Imputation),
		FailOnTruncation: cfg.Stats.FailOnTruncation,
	}
}

// seedFromBundled fills an empty store from the bundled dataset so a fresh
// install has something to show before the first sync.
func seedFromBundled(ctx context.Context, db *store.DB, path string) error {
	if path == "" {
		return nil
	}
	n, err := db.Count(ctx)
	if err != nil || n > 0 {
		return err
	}

	src, err := bundled.Load(path)
	if err != nil {
		return err
	}
	fetched, err := stats.FetchAll(ctx, src, stats.FetchOptions{})
	if err != nil {
		return err
	}
	if err := db.ReplaceRecords(ctx, fetched.Records, fetched.Truncated); err != nil {
		return err
	}
	log.Printf("[app] seeded local cache from %s records=%d", path, len(fetched.Records))
	return nil
}
