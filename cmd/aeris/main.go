package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/aeris-engine/aeris/internal/api/http"
	"github.com/aeris-engine/aeris/internal/config"
	"github.com/aeris-engine/aeris/internal/forecast"
	"github.com/aeris-engine/aeris/internal/fusion"
	"github.com/aeris-engine/aeris/internal/ingest"
	"github.com/aeris-engine/aeris/internal/logging"
	"github.com/aeris-engine/aeris/internal/providers"
	"github.com/aeris-engine/aeris/internal/scheduler"
	"github.com/aeris-engine/aeris/internal/station"
	"github.com/aeris-engine/aeris/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("dev", 0).Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg, log)
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		log.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	registry := station.NewRegistry(db.DB())
	if err := registry.EnsureSeeded(ctx); err != nil {
		log.Error("failed to seed stations", "error", err)
		os.Exit(1)
	}

	resolver := station.NewResolver(station.DefaultMappings(), station.DefaultForceIDs())

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	opener := &ingest.StoreOpener{S: db}

	sched := scheduler.New(log)

	// Weather leads the hour and carries the credential self-repair so the
	// two jobs behind it find a healthy database connection.
	weatherJob := ingest.NewWeatherJob(
		providers.NewOpenWeatherClient(httpClient, cfg.OpenWeatherAPIKey, cfg.RateLimitBackoff),
		opener, cfg.CityLat, cfg.CityLon, log)
	sched.Register("0 * * * *", weatherJob,
		scheduler.WithPreRun(db.RepairCredentials),
		skipUnless(cfg.OpenWeatherAPIKey != "", "OPENWEATHER_API_KEY is not set"))

	pollutantJob := ingest.NewPollutantJob(
		providers.NewWAQIClient(httpClient, cfg.WAQIToken, cfg.RateLimitBackoff),
		providers.NewDataGovClient(httpClient, cfg.DataGovAPIKey, cfg.RateLimitBackoff),
		resolver, opener, cfg.WAQIBounds, cfg.City, log)
	sched.Register("1 * * * *", pollutantJob,
		skipUnless(cfg.WAQIToken != "" || cfg.DataGovAPIKey != "", "neither WAQI_TOKEN nor DATA_GOV_API_KEY is set"))

	trafficJob := ingest.NewTrafficJob(
		providers.NewTomTomClient(httpClient, cfg.TomTomAPIKey, cfg.RateLimitBackoff),
		registry, opener, cfg.TrafficPollDelay, log)
	sched.Register("2 * * * *", trafficJob,
		skipUnless(cfg.TomTomAPIKey != "", "TOMTOM_API_KEY is not set"))

	if err := sched.Start(ctx); err != nil {
		log.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	engine := fusion.NewEngine(db, "PM2.5", log)

	var predictor forecast.Predictor
	if cfg.ModelURL != "" {
		predictor = forecast.NewHTTPPredictor(cfg.ModelURL, httpClient)
	} else {
		log.Warn("MODEL_URL is not set; forecast endpoint disabled")
	}

	api := &httpapi.Server{
		Board:        db,
		Fuser:        engine,
		Jobs:         sched,
		Scaler:       loadOrFitScaler(ctx, engine, cfg, log),
		Predictor:    predictor,
		WindowSize:   cfg.WindowSize,
		LookbackDays: cfg.LookbackDays,
	}

	app := fiber.New(fiber.Config{
		AppName:               "aeris",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": "aeris"})
	})
	api.RegisterRoutes(app)

	go func() {
		log.Info("http server listening", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("fiber server stopped", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("error during shutdown", "error", err)
	}
}

// skipUnless disables a job for the process lifetime when its credential is
// missing; everything else keeps running.
func skipUnless(ok bool, reason string) scheduler.Option {
	if ok {
		return nil
	}
	return scheduler.Skipped(reason)
}

// loadOrFitScaler restores the persisted feature bounds, falling back to
// fitting fresh on whatever fused data exists. Returns nil when the store
// is still empty; the forecast endpoint answers 503 until a restart or the
// next fit finds data.
func loadOrFitScaler(ctx context.Context, engine *fusion.Engine, cfg *config.AppConfig, log *slog.Logger) *fusion.Scaler {
	if s, err := fusion.LoadScaler(cfg.ScalerPath); err == nil {
		log.Info("scaler restored", "path", cfg.ScalerPath)
		return s
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Warn("scaler file unreadable; refitting", "path", cfg.ScalerPath, "error", err)
	}

	records, err := engine.FetchFused(ctx, cfg.LookbackDays)
	if err != nil || len(records) == 0 {
		log.Warn("no fused data to fit scaler; forecasts unavailable", "error", err)
		return nil
	}

	var s fusion.Scaler
	if err := s.Fit(records); err != nil {
		log.Warn("scaler fit failed", "error", err)
		return nil
	}
	if err := s.Save(cfg.ScalerPath); err != nil {
		log.Warn("scaler not persisted", "path", cfg.ScalerPath, "error", err)
	}
	return &s
}
