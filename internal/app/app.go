package app

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"recording-transcription-service/internal/config"
	"recording-transcription-service/internal/observability/logging"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	ready atomic.Bool
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Configuration) *Application {
	a := &Application{
		Cfg: cfg,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("component", "application").
		Str("method", "New").
		Logger()

	appLogger.Info().Msg("Recording transcription service application created")
	return a
}

// setupLogger configures zerolog for the service.
func (a *Application) setupLogger() {
	cfg := logging.DefaultConfig()
	cfg.Level = a.Cfg.Observability.LogLevel
	cfg.Format = a.Cfg.Observability.LogFormat
	if envLevel := os.Getenv("ZEROLOG_LOG_LEVEL"); envLevel != "" {
		cfg.Level = strings.ToLower(envLevel)
	}
	if os.Getenv("ENV") == "dev" {
		cfg.Format = "console"
	}
	logging.Init(cfg)

	log.Logger = logging.Logger().With().
		Str("service", a.Cfg.Service.Principal).
		Logger()
	a.Logger = log.Logger.With().
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("environment", os.Getenv("ENV")).
		Msg("Logger setup completed")
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Recording transcription service starting")

	return nil
}

// MarkReady flips readiness once storage has been prepared.
func (a *Application) MarkReady() {
	a.ready.Store(true)
}

// Ready reports readiness for the /readyz and /v1/readiness checks.
func (a *Application) Ready(ctx context.Context) error {
	if !a.ready.Load() {
		return errors.New("storage not ready")
	}
	return nil
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	a.ready.Store(false)
	shutdownLogger.Info().
		Dur("uptime", time.Since(a.StartupTime)).
		Msg("Recording transcription service shutting down")
}

