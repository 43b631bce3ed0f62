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

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/MrJamesThe3rd/factura/internal/authority"
	"github.com/MrJamesThe3rd/factura/internal/config"
	"github.com/MrJamesThe3rd/factura/internal/credential"
	credentialStore "github.com/MrJamesThe3rd/factura/internal/credential/store"
	"github.com/MrJamesThe3rd/factura/internal/database"
	"github.com/MrJamesThe3rd/factura/internal/einvoice"
	"github.com/MrJamesThe3rd/factura/internal/export"
	facturaHttp "github.com/MrJamesThe3rd/factura/internal/http"
	"github.com/MrJamesThe3rd/factura/internal/http/auth"
	credentialHandler "github.com/MrJamesThe3rd/factura/internal/http/credential"
	exportHandler "github.com/MrJamesThe3rd/factura/internal/http/export"
	invoiceHandler "github.com/MrJamesThe3rd/factura/internal/http/invoice"
	"github.com/MrJamesThe3rd/factura/internal/invoice"
	invoiceStore "github.com/MrJamesThe3rd/factura/internal/invoice/store"
	"github.com/MrJamesThe3rd/factura/internal/metrics"
	"github.com/MrJamesThe3rd/factura/internal/render"
	"github.com/MrJamesThe3rd/factura/internal/signer"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := database.New(ctx, cfg.ConnectionString(), database.Pool{
		MaxOpenConns: cfg.DB.MaxOpenConns,
		MaxIdleConns: cfg.DB.MaxIdleConns,
		ConnLifetime: cfg.DB.ConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	catalog, err := authority.LoadCatalog(cfg.Authority.Catalog)
	if err != nil {
		return fmt.Errorf("loading rejection catalog: %w", err)
	}

	dedupe, closeDedupe, err := newDedupe(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDedupe()

	limits, err := cfg.Limits()
	if err != nil {
		return err
	}

	var (
		collector   = metrics.NewCollector("factura")
		invoices    = invoiceStore.New(db)
		credentials = credentialStore.New(db)
		cache       = credential.NewCache(credentials)
		sign        = signer.New()
	)

	client := authority.NewClient(authority.ClientConfig{
		URL:              cfg.AuthorityURL(),
		RateLimit:        cfg.Authority.RateLimit,
		Burst:            cfg.Authority.Burst,
		BreakerFailures:  cfg.Authority.BreakerFailures,
		BreakerOpenFor:   cfg.Authority.BreakerOpenFor,
		TestPollInterval: cfg.Authority.PollInterval,
	}, catalog,
		authority.WithHTTPClient(&http.Client{Timeout: cfg.Authority.RequestTimeout}),
		authority.WithClientMetrics(collector),
	)

	submitter := authority.NewSubmitter(client, invoices, dedupe, cfg.RetryPolicy(),
		authority.WithSubmitterMetrics(collector),
	)

	opts := []einvoice.Option{
		einvoice.WithMetrics(collector),
		einvoice.WithLimits(limits),
		einvoice.WithSigner(sign),
		einvoice.WithLocker(einvoice.Chain(einvoice.NewKeyedLocker(), einvoice.LockerFunc(invoices.LockInvoice))),
	}

	var renderer export.Renderer
	if cfg.Render.Enabled {
		r := render.New()
		renderer = r
		opts = append(opts, einvoice.WithRenderer(r))
	}

	var (
		pipeline       = einvoice.NewService(invoices, cache, submitter, client, opts...)
		invoiceService = invoice.NewService(invoices)
		exportService  = export.NewService(invoiceService, renderer)
	)

	var (
		invoiceH    = invoiceHandler.NewHandler(invoiceService, pipeline)
		credentialH = credentialHandler.NewHandler(credentials, cache, sign)
		exportH     = exportHandler.NewHandler(exportService)
	)

	router := facturaHttp.New(facturaHttp.Config{
		AllowedOrigins: cfg.CORS.Origins,
		Auth:           auth.New(cfg.Auth.Secret, cfg.Auth.Issuer),
		Metrics:        collector,
		Ping:           db.PingContext,
	}, invoiceH, credentialH, exportH)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)

	go func() {
		slog.Info("starting server", "port", srv.Addr, "dian_url", cfg.AuthorityURL())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shut down server", "error", err)
	}

	// Renders started by accepted invoices finish before the database closes.
	pipeline.Wait()

	return nil
}

func newDedupe(ctx context.Context, cfg *config.Config) (authority.Dedupe, func(), error) {
	if cfg.Redis.Addr == "" {
		return authority.NewMemoryDedupe(cfg.Redis.TTL), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}

	closeFn := func() {
		if err := rdb.Close(); err != nil {
			slog.Error("failed to close redis", "error", err)
		}
	}

	return authority.NewRedisDedupe(rdb, "factura:dedupe:", cfg.Redis.TTL), closeFn, nil
}
