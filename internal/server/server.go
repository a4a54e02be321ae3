package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voyatech/ticketcheck/config"
	"github.com/voyatech/ticketcheck/internal/cache"
	"github.com/voyatech/ticketcheck/internal/extract"
	"github.com/voyatech/ticketcheck/internal/pipeline"
	"github.com/voyatech/ticketcheck/internal/store"
	"github.com/voyatech/ticketcheck/internal/telemetry"
	"github.com/voyatech/ticketcheck/internal/validate"
	"github.com/voyatech/ticketcheck/internal/verify"
	"github.com/voyatech/ticketcheck/internal/verify/amadeus"
)

func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))
	e.Use(middleware.BodyLimit(bodyLimit(cfg.Server.MaxUploadBytes)))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if cfg.Telemetry.Enabled {
		telemetry.Register()
		e.GET(cfg.Telemetry.MetricsPath, echo.WrapHandler(promhttp.Handler()))
	}

	ctx := context.Background()

	// Extraction cache: shared redis when configured, per-process otherwise.
	var (
		contentCache cache.Cache
		memCache     *cache.Memory
	)
	switch cfg.Cache.Backend {
	case "redis":
		rdb, err := cache.Conn(ctx, cfg.Storage.Redis.Host, cfg.Storage.Redis.Port, cfg.Storage.Redis.Password, cfg.Storage.Redis.DB, cfg.Storage.Redis.Timeout)
		if err != nil {
			return err
		}
		contentCache = cache.NewRedis(rdb, cfg.Cache.TTL)
	default:
		memCache = cache.NewMemory(cfg.Cache.TTL, cfg.Cache.MaxEntries)
		contentCache = memCache
	}

	provider, err := extract.NewProvider(cfg.Provider)
	if err != nil {
		return err
	}
	extractor := extract.NewExtractor(provider, contentCache, log.New(log.Writer(), "[EXTRACT] ", log.LstdFlags))
	engine := validate.NewEngine(validate.WithFutureHorizon(cfg.Validation.FutureHorizon))

	var verifier verify.Verifier
	if cfg.Amadeus.ClientID != "" && cfg.Amadeus.ClientSecret != "" {
		verifier = amadeus.New(amadeus.Config{
			ClientID:      cfg.Amadeus.ClientID,
			ClientSecret:  cfg.Amadeus.ClientSecret,
			BaseURL:       cfg.Amadeus.BaseURL,
			MaxRetries:    cfg.Amadeus.MaxRetries,
			Backoff:       cfg.Amadeus.Backoff,
			Timeout:       cfg.Amadeus.Timeout,
			RatePerSecond: cfg.Amadeus.RatePerSecond,
			RateBurst:     cfg.Amadeus.RateBurst,
		}, log.New(log.Writer(), "[VERIFY] ", log.LstdFlags))
	} else {
		baseLogger.Printf("amadeus credentials not configured; flight verification disabled")
	}

	pipe := pipeline.New(extractor, engine, verifier, log.New(log.Writer(), "[PIPE] ", log.LstdFlags))

	// Audit store is optional: without postgres the service still validates.
	var st *store.Store
	if dsn, dsnErr := cfg.Storage.Postgres.DSN(); dsnErr == nil {
		st, err = store.NewWithDSN(ctx, dsn)
		if err != nil {
			return fmt.Errorf("connecting postgres: %w", err)
		}
	} else {
		baseLogger.Printf("postgres not configured; audit trail disabled")
	}

	secret := []byte(cfg.Server.JWTSecret)
	vh := &ValidateHandler{
		Pipeline:  pipe,
		Extractor: extractor,
		Cache:     contentCache,
		Store:     st,
		MaxUpload: cfg.Server.MaxUploadBytes,
		Logger:    log.New(log.Writer(), "[VALIDATE] ", log.LstdFlags),
	}
	api := e.Group("/api")
	vh.Register(api, secret)

	// Periodic sweep keeps the in-memory cache from holding expired entries.
	if memCache != nil {
		janitor := &Janitor{
			Cache:  memCache,
			Cron:   cfg.Cache.SweepCron,
			Stop:   make(chan struct{}),
			Logger: log.New(log.Writer(), "[CACHE] ", log.LstdFlags),
		}
		if err := janitor.Start(); err != nil {
			return err
		}
		defer close(janitor.Stop)
	}

	addr := cfg.General.Listen
	if addr != "" && addr[0] != ':' {
		addr = ":" + addr
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// bodyLimit renders the upload bound in plain bytes for the body-limit
// middleware. Rounding down to whole megabytes would turn a sub-MiB limit
// into zero and reject every upload.
func bodyLimit(n int64) string {
	return strconv.FormatInt(n, 10)
}
