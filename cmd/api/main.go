package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/bryanwahyu/automaton-a11y/internal/application"
	appaudits "github.com/bryanwahyu/automaton-a11y/internal/application/audits"
	"github.com/bryanwahyu/automaton-a11y/internal/bootstrap"
	"github.com/bryanwahyu/automaton-a11y/internal/config"
	"github.com/bryanwahyu/automaton-a11y/internal/infra/httpserver"
	"github.com/bryanwahyu/automaton-a11y/internal/middleware"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// load config
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}

	logger := middleware.NewLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// database + repositories
	stores, err := bootstrap.OpenStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer stores.DB.Close()

	scanner, err := bootstrap.Scanner(cfg)
	if err != nil {
		return fmt.Errorf("scanner: %w", err)
	}

	artifacts, err := bootstrap.Artifacts(ctx, cfg)
	if err != nil {
		return fmt.Errorf("minio init: %w", err)
	}

	trials, redisClient := bootstrap.Trials(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	auth, err := middleware.NewAuthenticator(middleware.AuthConfig{
		HMACSecret:   cfg.Auth.JWTSecret,
		PublicKeyPEM: cfg.Auth.JWTPublicKey,
		Issuer:       cfg.Auth.Issuer,
		ServiceKeys:  cfg.Auth.ServiceKeys,
	})
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := middleware.NewMetrics()
	if err := metrics.Register(reg); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	svc := &appaudits.Service{
		Repo:                stores.Audits,
		Accounts:            stores.Accounts,
		Scanner:             scanner,
		Summarizer:          bootstrap.Summarizer(cfg),
		Trials:              trials,
		Artifacts:           artifacts,
		Failures:            stores.Failures,
		Metrics:             metrics,
		Clock:               application.SystemClock{},
		Log:                 logger.With("component", "audits"),
		Cost:                cfg.Billing.AuditCost,
		AllowPrivateTargets: cfg.Scanner.AllowPrivateTargets,
	}

	checkers := middleware.HealthChecks{
		"database": &middleware.DatabaseHealthChecker{DB: stores.DB},
	}
	if redisClient != nil {
		checkers["redis"] = &middleware.RedisHealthChecker{Client: redisClient}
	}

	proxies, err := middleware.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("server.trustedProxies: %w", err)
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)
	go limiter.RunCleanup(ctx, 5*time.Minute)

	handler := httpserver.NewRouter(httpserver.Options{
		Audits:         svc,
		Auth:           auth,
		Log:            logger,
		Metrics:        metrics,
		Gatherer:       reg,
		RateLimiter:    limiter,
		HealthCheckers: checkers,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		TrustedProxies: proxies,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr, "driver", stores.Driver, "ai_enabled", svc.Summarizer != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	// graceful shutdown, audit yang sedang jalan dibiarkan selesai
	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
