package httpapi

import (
	"context"
	"sync/atomic"

	"edustat-engine/internal/config"
	"edustat-engine/internal/events"
	"edustat-engine/internal/prefs"
	"edustat-engine/internal/scrape"
	"edustat-engine/internal/stats"
	"edustat-engine/internal/statscache"
	"edustat-engine/internal/store"
)

// StatsService is the part of *statscache.Adapter the handlers use.
type StatsService interface {
	Get(ctx context.Context, by stats.SortBy) (statscache.Snapshot, error)
	Refresh(ctx context.Context, by stats.SortBy) (statscache.Snapshot, error)
	Peek(by stats.SortBy) statscache.Snapshot
	Invalidate()
}

// Scraper fires the backend's scrape functions. scrape.Triggers fits.
type Scraper interface {
	TriggerJobListingScrape(ctx context.Context, category string) (scrape.Result, error)
	TriggerUniversityScrape(ctx context.Context, url, name string) (scrape.Result, error)
}

type Deps struct {
	Stats StatsService
	Hub   *events.Hub
	Prefs *prefs.Store

	// Atomic stores
	CfgVal       *atomic.Value // stores config.Config
	ScrapeStatus *scrape.Tracker

	// Config persistence
	UserCfgPath string
	LoadCfg     func() (config.Config, error)

	// Scraper is nil when the source is not the hosted backend.
	Scraper Scraper

	// LastSync reports the local cache's last sync; nil unless source.kind=sqlite.
	LastSync func(ctx context.Context) (*store.SyncRun, error)

	// OnBackendKey, if set, receives a newly stored API key so live clients
	// can pick it up without a restart.
	OnBackendKey func(key string)
}
