package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/odvcencio/gatepass/pkg/api"
	"github.com/odvcencio/gatepass/pkg/cache"
	"github.com/odvcencio/gatepass/pkg/config"
	"github.com/odvcencio/gatepass/pkg/orchestrator"
	"github.com/odvcencio/gatepass/pkg/pool"
	"github.com/odvcencio/gatepass/pkg/proxy"
	chromeengine "github.com/odvcencio/gatepass/pkg/session/chromedp"
	"github.com/odvcencio/gatepass/pkg/solver"
	"github.com/odvcencio/gatepass/pkg/storage"
)

// Version information - set via ldflags during build
var (
	version   = "1.0.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to gatepass.yaml (default: ./gatepass.yaml)")
		address     = flag.String("address", "", "listen address override")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("gatepass %s (%s, built %s)\n", version, commit, buildDate)
		return
	}

	if err := run(*configPath, *address); err != nil {
		fmt.Fprintf(os.Stderr, "gatepass: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, addressOverride string) error {
	logger := log.New(os.Stdout, "[gatepass] ", log.LstdFlags)

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addressOverride != "" {
		cfg.Server.Address = addressOverride
	}

	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	var rotator *proxy.Rotator
	if cfg.Proxies.Enabled {
		list := cfg.Proxies.List
		if list == "" {
			// Fall back to the operator-managed setting.
			if saved, err := store.GetSetting("proxy_list"); err == nil {
				list = saved
			}
		}
		rotator = proxy.NewRotator(list)
		logger.Printf("proxy rotation enabled with %d entries", rotator.Len())
	}

	engine := chromeengine.NewEngine(chromeengine.Options{
		ExecPath:  cfg.Browser.ExecPath,
		UserAgent: cfg.Browser.UserAgent,
	})
	defer engine.Close()

	sessionPool := pool.New(engine, pool.Config{
		Capacity:  cfg.Pool.Size,
		Headless:  cfg.Browser.Headless,
		UserAgent: cfg.Browser.UserAgent,
	})

	clearances := cache.New(cfg.Cache.Capacity, cfg.Cache.TTL)

	waiter := solver.NewWaiter(solver.WaitConfig{
		CookieName: cfg.Solver.CookieName,
		Interval:   cfg.Solver.PollInterval,
		Jitter:     cfg.Solver.PollJitter,
	})

	orch := orchestrator.New(engine, sessionPool, clearances, waiter, orchestrator.Config{
		MaxConcurrent:      cfg.Server.MaxConcurrent,
		PoolAcquireTimeout: cfg.Pool.AcquireTimeout,
		Headless:           cfg.Browser.Headless,
		UserAgent:          cfg.Browser.UserAgent,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Pool.WarmupOnStart {
		warmed := sessionPool.Warmup(ctx, cfg.Pool.Size)
		logger.Printf("session pool warmed with %d/%d sessions", warmed, cfg.Pool.Size)
	}

	server := api.NewServer(cfg, orch, clearances, sessionPool, store, rotator)

	logger.Printf("gatepass %s starting", version)
	err = server.Start(ctx)

	// Drain the HTTP surface before tearing down browser sessions.
	sessionPool.Shutdown()
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	logger.Printf("shutdown complete")
	return nil
}
