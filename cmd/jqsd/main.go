// Command jqsd runs the jqs scheduler daemon: the tick loop plus a
// read-only HTTP introspection surface.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jqs-project/jqs/internal/accountant"
	"github.com/jqs-project/jqs/internal/config"
	"github.com/jqs-project/jqs/internal/jobstore"
	"github.com/jqs-project/jqs/internal/launcher"
	"github.com/jqs-project/jqs/internal/observability"
	"github.com/jqs-project/jqs/internal/scheduler"
)

func main() {
	cfg := config.Load()

	logger, err := observability.NewLogger(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	layout := jobstore.NewLayout(cfg.Root)
	if err := layout.EnsureTree(); err != nil {
		logger.Error("create root directory tree", "error", err)
		os.Exit(1)
	}

	acct := accountant.New(layout, logger)
	if err := acct.EnsureDefaults(cfg.DefaultCoresTotal, cfg.DefaultMemMBTotal); err != nil {
		logger.Error("initialize limits.json/usage.json", "error", err)
		os.Exit(1)
	}
	if _, err := acct.Limits(); err != nil {
		logger.Error("unreadable limits.json at startup", "error", err)
		os.Exit(1)
	}

	l, err := launcher.New(cfg.Launcher)
	if err != nil {
		logger.Error("init launcher", "error", err)
		os.Exit(1)
	}

	store := jobstore.New(layout)
	metrics := observability.NewMetrics()
	sched := scheduler.New(store, acct, l, logger, metrics, cfg.TickInterval, cfg.KillGrace)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	router := observability.NewRouter(store, acct, metrics)
	httpServer := &http.Server{Addr: cfg.MetricsAddr, Handler: router.Handler()}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("introspection server stopped", "error", err)
		}
	}()

	logger.Info("jqsd started", "root", cfg.Root, "tick_interval", cfg.TickInterval, "launcher", cfg.Launcher, "metrics_addr", cfg.MetricsAddr)

	err = sched.Run(ctx)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)

	if err != nil && err != context.Canceled {
		logger.Error("scheduler stopped", "error", err)
	}
	logger.Info("jqsd stopped")
}
