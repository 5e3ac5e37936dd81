// Command kvauth-server runs the sign-in pages backed by kvauth.
//
// Configuration comes from KVAUTH_* environment variables. Without
// KVAUTH_REDIS_ADDR an in-process miniredis is started, which is only
// allowed outside production.
//
// Run:
//
//	KVAUTH_SESSION_SECRET=change-me go run ./cmd/kvauth-server
//
// Then open http://localhost:8080/auth/login. Without a Resend key the
// one-time code is written to the log.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/kvauth"
	otelexport "github.com/MrEthical07/kvauth/metrics/export/otel"
	"github.com/MrEthical07/kvauth/metrics/export/prometheus"
	"github.com/MrEthical07/kvauth/userstore/sqlite"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func main() {
	var (
		addr   = flag.String("addr", ":8080", "listen address")
		dbPath = flag.String("db", "kvauth.db", "sqlite user database, or :memory:")
	)
	flag.Parse()

	if err := run(*addr, *dbPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(addr, dbPath string) error {
	cfg, err := kvauth.LoadConfig()
	if err != nil {
		return err
	}
	logger, err := kvauth.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	for _, w := range cfg.Lint() {
		logger.Warn("config", zap.String("code", w.Code), zap.String("detail", w.Message))
	}

	rdb, cleanup, err := openRedis(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	users, err := sqlite.Open(dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = users.Close() }()

	svc, err := kvauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserDirectory(users).
		WithLogger(logger).
		Build()
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}
	defer svc.Close()

	// Observable instruments report through whatever meter provider the
	// process installs globally; the default provider discards them.
	otelMetrics, err := otelexport.NewExporter(otel.Meter("github.com/MrEthical07/kvauth"), svc)
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}
	defer func() { _ = otelMetrics.Close() }()

	srv := &http.Server{
		Addr:              addr,
		Handler:           newServer(svc, prometheus.NewExporter(svc)).routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func openRedis(cfg kvauth.Config, logger *zap.Logger) (redis.UniversalClient, func(), error) {
	if cfg.Redis.Addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return client, func() { _ = client.Close() }, nil
	}
	if cfg.IsProduction() {
		return nil, nil, errors.New("KVAUTH_REDIS_ADDR is required in production")
	}
	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	logger.Warn("using in-process miniredis", zap.String("addr", mr.Addr()))
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}
