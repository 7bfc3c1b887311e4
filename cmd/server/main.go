package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"fileferry/internal/command"
	"fileferry/internal/config"
	"fileferry/internal/dispatch"
	"fileferry/internal/handlers"
	"fileferry/internal/logging"
	"fileferry/internal/monitoring"
	"fileferry/internal/sandbox"
	"fileferry/internal/server"
	"fileferry/internal/session"
	"fileferry/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "optional TOML config file, overlaid on environment")
	rootPath := flag.String("root", "", "permitted filesystem root (overrides config)")
	flag.Parse()

	if err := run(*configPath, *rootPath); err != nil {
		fmt.Fprintf(os.Stderr, "fileferry: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, rootPath string) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if rootPath != "" {
		cfg.Root.Path = rootPath
	}

	log, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Dir:         cfg.Logging.Dir,
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer log.Sync()

	resolver, err := sandbox.New(cfg.Root.Path, cfg.Root.Unrestricted)
	if err != nil {
		return fmt.Errorf("permitted root: %w", err)
	}
	log.Info("permitted root mounted",
		zap.String("root", resolver.Root()),
		zap.Bool("unrestricted", cfg.Root.Unrestricted))

	sessions := session.NewStore(resolver.Root())
	if cfg.Session.SnapshotPath != "" {
		if err := sessions.EnableSnapshot(cfg.Session.SnapshotPath); err != nil {
			log.Warn("bookmark snapshot unavailable",
				zap.String("path", cfg.Session.SnapshotPath),
				zap.Error(err))
		}
	}

	registry := command.NewRegistry()
	h := handlers.New(handlers.Options{
		Resolver:      resolver,
		Sessions:      sessions,
		Limits:        cfg.Limits,
		Log:           log,
		LogDir:        cfg.Logging.Dir,
		ProtectedPids: cfg.Protect.Pids,
	})
	if err := h.Register(registry); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	if err := registry.Validate(); err != nil {
		return fmt.Errorf("command table: %w", err)
	}
	log.Info("commands registered", zap.Int("count", len(registry.Names())))

	promReg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(promReg)
	dispatcher := dispatch.New(registry, sessions, metrics, log)

	var sender transport.Sender
	if cfg.Webhook.Enabled && cfg.Webhook.URL != "" {
		sender = transport.NewWebhook(cfg.Webhook.URL, log)
		log.Info("webhook transport enabled", zap.String("url", cfg.Webhook.URL))
	}

	srv := server.New(server.Options{
		Config:     cfg.Server,
		RateLimit:  cfg.RateLimit,
		Dispatcher: dispatcher,
		Sessions:   sessions,
		Sender:     sender,
		Gatherer:   promReg,
		Log:        log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		tick := time.NewTicker(15 * time.Second)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				metrics.UpdateUptime()
			}
		}
	}()

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}
