package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mcare/mcare/internal/config"
	"github.com/mcare/mcare/internal/domain/child"
	"github.com/mcare/mcare/internal/domain/clinic"
	"github.com/mcare/mcare/internal/domain/identity"
	"github.com/mcare/mcare/internal/domain/mother"
	"github.com/mcare/mcare/internal/domain/vaccination"
	"github.com/mcare/mcare/internal/domain/visit"
	"github.com/mcare/mcare/internal/platform/auth"
	"github.com/mcare/mcare/internal/platform/db"
	"github.com/mcare/mcare/internal/platform/httpx"
	"github.com/mcare/mcare/internal/platform/middleware"
	"github.com/mcare/mcare/internal/platform/outbox"
	"github.com/mcare/mcare/internal/platform/telemetry"
)

const (
	requestTimeout = 30 * time.Second
	bodyLimit      = "1M"
	version        = "0.1.0"
)

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// redisPinger adapts the redis client to db.Pinger.
type redisPinger struct {
	rdb *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

func newRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// jwtSecret returns the configured secret. Development without one gets a
// random per-process secret, so tokens do not survive a restart.
func jwtSecret(cfg *config.Config, logger zerolog.Logger) ([]byte, error) {
	if cfg.JWTSecret != "" {
		return []byte(cfg.JWTSecret), nil
	}
	if !cfg.IsDev() {
		return nil, errors.New("JWT_SECRET is required")
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate dev secret: %w", err)
	}
	logger.Warn().Msg("JWT_SECRET not set, using a random development secret")
	return []byte(hex.EncodeToString(buf)), nil
}

type services struct {
	identity     *identity.Service
	clinics      *clinic.Service
	mothers      *mother.Service
	children     *child.Service
	visits       *visit.Service
	vaccinations *vaccination.Service
}

func buildServices(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, tokens *auth.TokenService, revocations auth.RevocationStore) *services {
	tx := db.NewTxManager(pool)
	engine := newEngine(cfg)
	events := outbox.NewWriter(pool)

	clinicRepo := clinic.NewRepoPG(pool)
	healthWorkers := identity.NewHealthWorkerRepoPG(pool)
	motherRepo := mother.NewRepoPG(pool)
	childRepo := child.NewRepoPG(pool)
	visitRepo := visit.NewRepoPG(pool)

	identitySvc := identity.NewService(identity.Deps{
		Users:         identity.NewUserRepoPG(pool),
		HealthWorkers: healthWorkers,
		Clinics:       clinicRepo,
		Tx:            tx,
		Engine:        engine,
		Tokens:        tokens,
		Revocations:   revocations,
		Events:        events,
		Logger:        logger,
	})

	return &services{
		identity: identitySvc,
		clinics:  clinic.NewService(clinicRepo, tx, engine),
		mothers: mother.NewService(mother.Deps{
			Mothers:       motherRepo,
			Clinics:       clinicRepo,
			Users:         identitySvc,
			Children:      childRepo,
			Visits:        visitRepo,
			Tx:            tx,
			Engine:        engine,
			Events:        events,
			StrictUpdates: cfg.StrictUpdates,
		}),
		children: child.NewService(child.Deps{
			Children:       childRepo,
			MedicalRecords: child.NewMedicalRecordRepoPG(pool),
			Mothers:        motherRepo,
			Tx:             tx,
			Engine:         engine,
			StrictUpdates:  cfg.StrictUpdates,
		}),
		visits: visit.NewService(visit.Deps{
			Visits:        visitRepo,
			Mothers:       motherRepo,
			Children:      childRepo,
			HealthWorkers: healthWorkers,
			Tx:            tx,
			Engine:        engine,
			Events:        events,
			StrictUpdates: cfg.StrictUpdates,
		}),
		vaccinations: vaccination.NewService(vaccination.Deps{
			Vaccinations:         vaccination.NewRepoPG(pool),
			Children:             childRepo,
			Mothers:              motherRepo,
			Visits:               visitRepo,
			HealthWorkers:        healthWorkers,
			Tx:                   tx,
			Engine:               engine,
			Events:               events,
			Logger:               logger,
			StrictUpdates:        cfg.StrictUpdates,
			AlertsUseNextDueDate: cfg.AlertsUseNextDueDate,
		}),
	}
}

func runServer(parent context.Context) error {
	ctx, stop := signalContext(parent)
	defer stop()

	cfg, logger, pool, cleanup, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	secret, err := jwtSecret(cfg, logger)
	if err != nil {
		return err
	}
	tokens := auth.NewTokenService(secret, cfg.TokenTTL())

	revocations, redisPing, closeRevocations, err := revocationStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeRevocations()

	svc := buildServices(cfg, logger, pool, tokens, revocations)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httpx.ErrorHandler(logger, !cfg.IsProduction())

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Metrics())
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
	}))
	e.Use(echomw.BodyLimit(bodyLimit))
	e.Use(middleware.RequestTimeout(requestTimeout))
	e.Use(auth.JWTMiddleware(auth.JWTConfig{
		Tokens:     tokens,
		Revocation: revocations,
		Logger:     logger,
		Skipper:    auth.PublicSkipper,
	}))

	// Operational endpoints
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	extras := map[string]db.Pinger{}
	if redisPing != nil {
		extras["redis"] = redisPing
	}
	e.GET("/health/db", db.HealthHandler(pool, extras))
	e.GET("/metrics", echo.WrapHandler(telemetry.Handler()))

	api := e.Group("/api/v1")
	limiter := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	})
	identity.NewHandler(svc.identity).RegisterRoutes(api, limiter)
	clinic.NewHandler(svc.clinics).RegisterRoutes(api)
	mother.NewHandler(svc.mothers).RegisterRoutes(api)
	child.NewHandler(svc.children).RegisterRoutes(api)
	visit.NewHandler(svc.visits).RegisterRoutes(api)
	vaccination.NewHandler(svc.vaccinations).RegisterRoutes(api)

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
