package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/carepoint/opd/internal/config"
	"github.com/carepoint/opd/internal/domain/billing"
	"github.com/carepoint/opd/internal/domain/inventory"
	"github.com/carepoint/opd/internal/domain/outpatient"
	"github.com/carepoint/opd/internal/domain/patient"
	"github.com/carepoint/opd/internal/domain/prescription"
	"github.com/carepoint/opd/internal/domain/reporting"
	"github.com/carepoint/opd/internal/domain/staff"
	"github.com/carepoint/opd/internal/platform/auth"
	"github.com/carepoint/opd/internal/platform/db"
	"github.com/carepoint/opd/internal/platform/middleware"
	"github.com/carepoint/opd/internal/platform/printing"
	"github.com/carepoint/opd/internal/platform/scheduler"
)

const (
	version     = "0.1.0"
	tokenIssuer = "opd-server"
)

// app holds the wired services shared by the HTTP server and the CLI
// commands.
type app struct {
	cfg    *config.Config
	pool   *pgxpool.Pool
	logger zerolog.Logger

	printer   *printing.Printer
	staff     *staff.Service
	patients  *patient.Service
	visits    *outpatient.Service
	rx        *prescription.Service
	inventory *inventory.Service
	billing   *billing.Service
	reports   *reporting.Service
}

func newApp(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) *app {
	tx := db.NewTransactor(pool)
	tokens := auth.NewTokenIssuer(cfg.SigningKey(), cfg.TokenTTL, tokenIssuer)

	a := &app{
		cfg:    cfg,
		pool:   pool,
		logger: logger,
		printer: printing.NewPrinter(printing.Letterhead{
			Name:     cfg.HospitalName,
			Address:  cfg.HospitalAddress,
			Phone:    cfg.HospitalPhone,
			Currency: cfg.Currency,
		}),
	}

	a.staff = staff.NewService(staff.NewUserRepo(pool), tokens)
	a.patients = patient.NewService(patient.NewRepo(pool))
	a.inventory = inventory.NewService(
		inventory.NewMedicineRepo(pool),
		inventory.NewSupplierRepo(pool),
		inventory.NewStockRepo(pool),
		tx,
		logger.With().Str("component", "inventory").Logger(),
	)
	a.billing = billing.NewService(
		billing.NewChargeRepo(pool),
		billing.NewBillRepo(pool),
		tx,
		logger.With().Str("component", "billing").Logger(),
	)
	a.visits = outpatient.NewService(
		outpatient.NewRepo(pool),
		a.patients,
		a.staff,
		a.billing,
		tx,
		logger.With().Str("component", "outpatient").Logger(),
	)
	a.rx = prescription.NewService(
		prescription.NewMedicineRepo(pool),
		prescription.NewTreatmentRepo(pool),
		a.visits,
		a.inventory,
		a.inventory,
		a.billing,
		tx,
		logger.With().Str("component", "prescription").Logger(),
	)
	a.reports = reporting.NewService(
		reporting.NewRepo(pool),
		logger.With().Str("component", "reporting").Logger(),
	)
	return a
}

func (a *app) router() *echo.Echo {
	cfg := a.cfg

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Disposition", "X-Request-ID"},
	}))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	bodyLimit, err := cfg.BodyLimitBytes()
	if err != nil {
		a.logger.Warn().Err(err).Msg("falling back to a 2M body limit")
		bodyLimit = 2 << 20
	}
	e.Use(middleware.BodyLimit(bodyLimit))
	e.Use(middleware.RequestTimeout(middleware.TimeoutConfig{
		Default: cfg.RequestTimeout,
		Slow:    map[string]time.Duration{"/api/reports": cfg.ReportTimeout},
	}))

	jwtCfg := auth.JWTConfig{
		Issuer:     tokenIssuer,
		SigningKey: cfg.SigningKey(),
		Skipper:    auth.AuthSkipper,
	}
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	e.Use(middleware.Audit(a.logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(a.pool))

	api := e.Group("/api")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	api.Use(middleware.RateLimit(rateLimitCfg))

	staff.NewHandler(a.staff).RegisterRoutes(api)
	patient.NewHandler(a.patients).RegisterRoutes(api)
	outpatient.NewHandler(a.visits, a.printer).RegisterRoutes(api)
	prescription.NewHandler(a.rx, a.printer).RegisterRoutes(api)
	inventory.NewHandler(a.inventory).RegisterRoutes(api)
	billing.NewHandler(a.billing, a.printer).RegisterRoutes(api)
	reporting.NewHandler(a.reports).RegisterRoutes(api)

	return e
}

// jobs lists the daily background jobs.
func (a *app) jobs() []scheduler.Job {
	return []scheduler.Job{
		{
			Name: "day-close",
			At:   a.cfg.DayCloseAt,
			Run: func(ctx context.Context) error {
				_, err := a.visits.CloseDay(ctx)
				return err
			},
		},
		{
			Name: "low-stock-scan",
			At:   a.cfg.LowStockScanAt,
			Run: func(ctx context.Context) error {
				_, err := a.inventory.ScanLowStock(ctx)
				return err
			},
		},
	}
}
