package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"edustat-engine/internal/app"
	"edustat-engine/internal/config"
	"edustat-engine/internal/events"
	"edustat-engine/internal/httpapi"
	"edustat-engine/internal/prefs"
	"edustat-engine/internal/scheduler"
	"edustat-engine/internal/scrape"
	"edustat-engine/internal/stats"
	"edustat-engine/internal/statscache"
)

func main() {
	// Engine data dir: use env if provided (the desktop shell passes one), else local folder.
	dataDir := os.Getenv("EDUSTAT_DATA_DIR")
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatal(err)
	}

	defaultCfgPath := filepath.Join("config", "config.yml")
	userCfgPath, err := config.EnsureUserConfig(dataDir, defaultCfgPath)
	if err != nil {
		log.Fatalf("config bootstrap failed: %v", err)
	}

	// Load config and keep it reloadable
	var cfgVal atomic.Value // stores config.Config
	loadCfg := func() (config.Config, error) {
		cfg, err := config.Load(userCfgPath)
		if err != nil {
			return cfg, err
		}
		cfg.App.DataDir = dataDir
		cfg, vr := config.NormalizeAndValidate(cfg)
		for _, w := range vr.Warnings {
			log.Printf("[config] warning: %s", w)
		}
		if !vr.OK() {
			return cfg, fmt.Errorf("invalid config: %v", vr.Errors)
		}
		return cfg, nil
	}
	cfg, err := loadCfg()
	if err != nil {
		log.Fatalf("config load failed (%s): %v", userCfgPath, err)
	}
	cfgVal.Store(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("source open failed (kind=%s): %v", cfg.Source.Kind, err)
	}
	defer rt.Close()

	hub := events.NewHub()
	adapter := statscache.New(rt.Source, app.AdapterOptions(cfg), hub)
	defer adapter.Close()

	deps := httpapi.Deps{
		Stats:        adapter,
		Hub:          hub,
		Prefs:        prefs.Load(filepath.Join(dataDir, "prefs.yml")),
		CfgVal:       &cfgVal,
		ScrapeStatus: scrape.NewTracker(),
		UserCfgPath:  userCfgPath,
		LoadCfg:      loadCfg,
	}
	if tr, ok := rt.Triggers(cfg); ok {
		deps.Scraper = tr
	}
	if rt.Store != nil {
		deps.LastSync = rt.Store.LastSync
	}
	if rt.Client != nil {
		deps.OnBackendKey = func(key string) {
			rt.Client.SetAPIKey(key)
			adapter.Invalidate()
		}
	}

	mux := httpapi.NewMux(deps)

	token := os.Getenv("EDUSTAT_SHUTDOWN_TOKEN")
	srv := &http.Server{
		ReadHeaderTimeout: 5 * time.Second,
	}
	if token != "" {
		mux.HandleFunc("/shutdown", shutdownHandler(token, stop))
	}
	srv.Handler = httpapi.Chain(mux,
		httpapi.RequestID,
		httpapi.Recover,
		httpapi.AccessLog,
		httpapi.Cors,
	)

	// Keep the cache warm so the dashboard rarely waits on a cycle.
	go scheduler.Every(ctx, cfg.StaleWindow(), "stats-warm", func(ctx context.Context) error {
		_, err := adapter.Refresh(ctx, stats.SortBySalary)
		return err
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.App.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("engine listening on http://%s (source=%s data=%s)", addr, cfg.Source.Kind, dataDir)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server error: %v", err)
		}
	case <-ctx.Done():
	}

	log.Printf("engine shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
