// Package app assembles the HTTP server: middleware chain, repositories,
// services and routes.
package app

import (
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/account"
	"github.com/clinic/clinic/internal/domain/clinic"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/hipaa"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/platform/telemetry"
	"github.com/clinic/clinic/internal/platform/validation"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Server owns the echo instance and the process-wide state behind it.
type Server struct {
	Echo    *echo.Echo
	Metrics *telemetry.Metrics
	revoked *auth.TokenRevocationStore
}

// Options carries what New needs beyond the loaded config.
type Options struct {
	Config *config.Config
	// Pool may be nil in tests that never reach the database.
	Pool       *pgxpool.Pool
	Logger     zerolog.Logger
	SigningKey []byte
}

// New builds the server. Call Close when done to stop background work.
func New(opts Options) (*Server, error) {
	cfg := opts.Config
	logger := opts.Logger
	if len(opts.SigningKey) == 0 {
		return nil, fmt.Errorf("signing key is required")
	}

	metrics := telemetry.NewMetrics(telemetry.Config{RuntimeMetrics: true})

	encSvc, err := hipaa.NewEncryptionService(cfg.PHIKey(), logger)
	if err != nil {
		return nil, err
	}

	revoked := auth.NewTokenRevocationStore()
	tokens := auth.NewTokenManager(auth.TokenConfig{
		SigningKey: opts.SigningKey,
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}, revoked)
	if err := metrics.RegisterGaugeFunc("revoked_tokens", "Refresh tokens currently on the revocation list.",
		func() float64 { return float64(revoked.Count()) }); err != nil {
		revoked.Close()
		return nil, err
	}
	phiEnabled := 0.0
	if encSvc.IsEnabled() {
		phiEnabled = 1
	}
	if err := metrics.RegisterGaugeFunc("phi_encryption_enabled", "1 when medical history is encrypted at rest.",
		func() float64 { return phiEnabled }); err != nil {
		revoked.Close()
		return nil, err
	}
	if opts.Pool != nil {
		if err := registerPoolGauges(metrics, opts.Pool); err != nil {
			revoked.Close()
			return nil, err
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)

	// Routes are registered with a trailing slash.
	e.Pre(echomw.AddTrailingSlashWithConfig(echomw.TrailingSlashConfig{
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/health" || p == "/health/db" || p == "/metrics"
		},
	}))

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(auth.JWTMiddleware(auth.JWTConfig{Verifier: tokens, Skipper: auth.AuthSkipper}))
	e.Use(middleware.Audit(logger, metrics))

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": Version,
		})
	})
	if opts.Pool != nil {
		e.GET("/health/db", db.HealthHandler(opts.Pool))
	}
	e.GET("/metrics", metrics.Handler())

	// Domains
	users := account.NewUserRepo(opts.Pool)
	accountSvc := account.NewService(users, auth.NewPasswordHasher(cfg.BcryptCost), tokens,
		validation.New(), metrics, logger)
	account.NewHandler(accountSvc).RegisterRoutes(e.Group("/api/auth"))

	patients := clinic.NewPatientRepoWithEncryption(opts.Pool, encSvc.Encryptor())
	doctors := clinic.NewDoctorRepo(opts.Pool)
	mappings := clinic.NewMappingRepo(opts.Pool)
	gate := clinic.NewGate(patients, mappings, metrics, logger)
	clinicSvc := clinic.NewService(patients, doctors, mappings, gate, db.NewTxManager(opts.Pool),
		validation.New(), logger)
	clinic.NewHandler(clinicSvc).RegisterRoutes(e.Group("/api"))

	return &Server{Echo: e, Metrics: metrics, revoked: revoked}, nil
}

// Close stops the revocation store's cleanup loop.
func (s *Server) Close() {
	s.revoked.Close()
}

func registerPoolGauges(m *telemetry.Metrics, pool *pgxpool.Pool) error {
	gauges := []struct {
		name, help string
		fn         func() float64
	}{
		{"db_pool_total_conns", "Connections currently held by the pool.",
			func() float64 { return float64(pool.Stat().TotalConns()) }},
		{"db_pool_idle_conns", "Idle connections in the pool.",
			func() float64 { return float64(pool.Stat().IdleConns()) }},
		{"db_pool_acquired_conns", "Connections currently checked out of the pool.",
			func() float64 { return float64(pool.Stat().AcquiredConns()) }},
	}
	for _, g := range gauges {
		if err := m.RegisterGaugeFunc(g.name, g.help, g.fn); err != nil {
			return err
		}
	}
	return nil
}
