// phoneauth serves the phone-number auth HTTP API. Configuration comes from
// the environment and an optional .env file.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/phoneauth"
	"github.com/MrEthical07/phoneauth/credential"
	"github.com/MrEthical07/phoneauth/credential/memory"
	"github.com/MrEthical07/phoneauth/credential/postgres"
	"github.com/MrEthical07/phoneauth/httpapi"
	"github.com/MrEthical07/phoneauth/internal/config"
	"github.com/MrEthical07/phoneauth/internal/telemetry"
	otelexport "github.com/MrEthical07/phoneauth/metrics/export/otel"
	promexport "github.com/MrEthical07/phoneauth/metrics/export/prometheus"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	engineCfg, err := cfg.ToEngineConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	var users credential.Repository
	if cfg.DatabaseURL == "" {
		log.Println("DATABASE_URL not set; using in-memory user store")
		users = memory.New()
	} else {
		if err := postgres.Migrate(cfg.DatabaseURL, "up"); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		users = postgres.New(pool)
	}

	builder := phoneauth.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithUserRepository(users)
	if cfg.AuditEnabled {
		builder = builder.WithAuditSink(phoneauth.NewLogSink(log.Default()))
	}
	engine, err := builder.Build()
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	defer engine.Close()

	if _, err := engine.Ping(ctx); err != nil {
		log.Printf("redis not reachable at %s: %v", cfg.RedisAddr, err)
	}

	opts := httpapi.Options{
		Cookies: httpapi.CookieConfig{
			Secure: cfg.CookieSecure,
			Domain: cfg.CookieDomain,
		},
		RequestLogging: !cfg.Production(),
	}
	if cfg.MetricsEnabled {
		opts.Metrics = promexport.NewExporter(engine).Handler()
	}

	if cfg.OTLPEndpoint != "" {
		provider, err := telemetry.NewProvider(ctx, cfg.OTLPEndpoint, "phoneauth")
		if err != nil {
			log.Fatalf("telemetry: %v", err)
		}
		exporter, err := otelexport.NewExporter(provider.MeterProvider.Meter("phoneauth"), engine)
		if err != nil {
			log.Fatalf("telemetry: %v", err)
		}
		defer func() {
			_ = exporter.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				log.Printf("telemetry shutdown: %v", err)
			}
		}()
	}

	go engine.RunReaper(ctx)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(httpapi.NewHandler(engine, opts)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("phoneauth listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("stopped")
}
