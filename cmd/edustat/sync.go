package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"

	"edustat-engine/internal/app"
	"edustat-engine/internal/config"
	"edustat-engine/internal/secrets"
	"edustat-engine/internal/source/remote"
	"edustat-engine/internal/stats"
)

// runSync copies every record from the hosted backend into the local cache,
// so the engine can run with source.kind=sqlite offline.
func runSync(ctx context.Context, args []string) error {
	fs, cfgPath := newFlags("sync")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Source.BaseURL) == "" {
		return errors.New("sync needs source.base_url")
	}

	c, err := app.NewClient(cfg)
	if err != nil {
		return err
	}
	src := remote.New(c, cfg.Source.Table, cfg.Source.AggregateRPC)

	total, err := src.Count(ctx)
	if err != nil {
		return fmt.Errorf("count: %w", err)
	}

	pageSize := cfg.Stats.PageSize
	if pageSize <= 0 {
		pageSize = stats.DefaultPageSize
	}
	bar := pb.New(total)
	bar.Set("prefix", "records ")
	bar.Start()
	fetched, err := stats.FetchAll(ctx, src, stats.FetchOptions{
		PageSize:    pageSize,
		MaxPages:    cfg.Stats.MaxPages,
		PageTimeout: cfg.PageTimeout(),
		OnPage: func(_, n int) {
			bar.SetCurrent(int64(n))
		},
	})
	bar.Finish()
	if err != nil {
		return err
	}

	db, err := app.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	truncated := fetched.Truncated && len(fetched.Records) < total
	if err := db.ReplaceRecords(ctx, fetched.Records, truncated); err != nil {
		return err
	}

	if truncated {
		pterm.Warning.Printf("page ceiling reached: stored %s of %s records\n",
			humanize.Comma(int64(len(fetched.Records))), humanize.Comma(int64(total)))
	}
	pterm.Success.Printf("synced %s records in %d pages\n", humanize.Comma(int64(len(fetched.Records))), fetched.Pages)
	if cfg.Source.Kind != config.SourceSQLite {
		pterm.Info.Println("set source.kind: sqlite to serve the local copy")
	}
	return nil
}

func runKey(args []string) error {
	fs, cfgPath := newFlags("key")
	key := fs.String("set", "", "Backend API key to store in the OS keychain")
	del := fs.Bool("delete", false, "Remove the stored API key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	acct := secrets.BackendKeyringAccount(cfg)
	if *del {
		if err := secrets.DeleteBackendAPIKey(acct); err != nil {
			return err
		}
		pterm.Success.Printf("removed API key for %s\n", acct)
		return nil
	}
	if err := secrets.SetBackendAPIKey(acct, *key); err != nil {
		return err
	}
	pterm.Success.Printf("stored API key for %s\n", acct)
	return nil
}
