package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pterm/pterm"

	"edustat-engine/internal/config"
)

const usage = `edustat: vacancy salary statistics from the command line

Usage:
  edustat report [-sort salary|count] [-config path]
  edustat export [-format xlsx|csv] [-out file] [-sort salary|count] [-config path]
  edustat sync   [-config path]
  edustat key    -set KEY | -delete [-config path]

Environment:
  EDUSTAT_DATA_DIR    Data directory holding config.yml and the local cache
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "report":
		err = runReport(ctx, args)
	case "export":
		err = runExport(ctx, args)
	case "sync":
		err = runSync(ctx, args)
	case "key":
		err = runKey(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

// loadConfig reads -config, or config.yml in the data dir.
func loadConfig(path string) (config.Config, error) {
	dataDir := os.Getenv("EDUSTAT_DATA_DIR")
	if dataDir == "" {
		dataDir = "."
	}
	if path == "" {
		path = filepath.Join(dataDir, "config.yml")
	}

	cfg, err := config.Load(path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	if cfg.App.DataDir == "" || cfg.App.DataDir == "." {
		cfg.App.DataDir = dataDir
	}

	cfg, vr := config.NormalizeAndValidate(cfg)
	for _, w := range vr.Warnings {
		pterm.Warning.Println(w)
	}
	if !vr.OK() {
		return cfg, fmt.Errorf("invalid config %s: %v", path, vr.Errors)
	}
	return cfg, nil
}

func newFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to config.yml (default: $EDUSTAT_DATA_DIR/config.yml)")
	return fs, cfgPath
}
