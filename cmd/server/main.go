package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"selfsignup/internal/platform/config"
	"selfsignup/internal/platform/httpserver"
	"selfsignup/internal/platform/logger"
	"selfsignup/internal/ratelimit/store/bucket"
	"selfsignup/internal/signup/worker"
	httptransport "selfsignup/internal/transport/http"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("selfsignup stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("selfsignup stopped")
}

// run serves until ctx is cancelled, then drains the server and the purge
// worker before closing backing clients.
func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app, err := build(ctx, cfg, log, reg)
	if err != nil {
		return err
	}
	defer app.close()

	router := httptransport.NewRouter(
		[]httptransport.RouteRegistrar{app.handler},
		httptransport.WithMetrics(reg),
		httptransport.WithLogger(log),
		httptransport.WithReadinessCheck("redis", app.redisCheck),
		httptransport.WithReadinessCheck("postgres", app.postgresCheck),
	)
	srv := httpserver.New(cfg.Server.Addr, router)

	purger := worker.NewPurgeWorker(app.service,
		worker.WithInterval(cfg.Signup.PurgeInterval),
		worker.WithRetention(cfg.Signup.PurgeRetention),
		worker.WithLogger(log),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting selfsignup", "addr", cfg.Server.Addr, "store", cfg.Signup.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return purger.Run(gctx)
	})
	if app.buckets != nil {
		g.Go(func() error {
			sweepBuckets(gctx, app.buckets, cfg.Limits.Window)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// sweepBuckets drops idle rate limit windows once per window.
func sweepBuckets(ctx context.Context, buckets *bucket.InMemoryBucketStore, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			buckets.Sweep()
		}
	}
}
