package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Maringouin10/foretkeper/libs/mailer"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	trustedProxyLoopbackIPv4 = "127.0.0.1"
	trustedProxyLoopbackIPv6 = "::1"
	minSigningSecretLength   = 16
)

type Config struct {
	Addr              string
	Env               string
	LogLevel          string
	LogFormat         string
	DataRoot          string
	StoreDriver       string
	DatabaseURL       string
	StoreScope        string
	OverlayURL        string
	OverlayTimeout    time.Duration
	AppSigningSecret  string
	DisplayTimezone   string
	ShutdownTimeout   time.Duration
	ResendAPIKey      string
	MailerFromAddress string
	ReportNotifyEmail string
}

type App struct {
	cfg     *Config
	kv      KeyValueStore
	clock   clockwork.Clock
	log     *slog.Logger
	metrics *Metrics

	overlay *OverlayLoader
	gate    *AdminGate
	mailer  *mailer.Mailer
	pages   *pageRenderer

	displayLocation *time.Location
}

type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string { return e.Message }

func main() {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, closeStore, err := openKeyValueStore(ctx, cfg, clock, logger)
	if err != nil {
		logger.Error("failed to open report store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("report store close error", "error", err)
		}
	}()

	var mailProvider mailer.Provider
	if cfg.ResendAPIKey != "" {
		mailProvider = mailer.NewResendProvider(cfg.ResendAPIKey)
	} else {
		mailProvider = mailer.NewLogProvider(logger)
	}
	logger.Info("mailer initialized", "provider", mailProvider.Name(), "notify", cfg.ReportNotifyEmail != "")

	metrics := NewMetrics()
	app := newApp(cfg, kv, clock, logger, metrics, newOverlaySource(cfg))
	app.mailer = mailer.New(mailProvider, cfg.MailerFromAddress)

	logger.Info(
		"runtime configuration",
		"env", cfg.Env,
		"addr", cfg.Addr,
		"store_driver", cfg.StoreDriver,
		"store_scope", cfg.StoreScope,
		"overlay_url", cfg.OverlayURL,
	)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      app.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

func newApp(cfg *Config, kv KeyValueStore, clock clockwork.Clock, logger *slog.Logger, metrics *Metrics, overlay OverlaySource) *App {
	return &App{
		cfg:             cfg,
		kv:              kv,
		clock:           clock,
		log:             logger,
		metrics:         metrics,
		gate:            newAdminGate(),
		pages:           newPageRenderer(cfg.Env),
		overlay:         NewOverlayLoader(overlay, logger, metrics),
		displayLocation: loadDisplayLocation(cfg.DisplayTimezone),
	}
}

func newOverlaySource(cfg *Config) OverlaySource {
	if cfg.OverlayURL != "" {
		return httpOverlaySource{url: cfg.OverlayURL, client: &http.Client{Timeout: cfg.OverlayTimeout}}
	}
	return fsOverlaySource{fsys: staticFileSystemFS(cfg.Env), name: overlayFileName}
}

func (a *App) routes() *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies([]string{trustedProxyLoopbackIPv4, trustedProxyLoopbackIPv6}); err != nil {
		panic(err)
	}
	r.Use(gin.Recovery())
	r.Use(a.loggingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", a.readinessHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.StaticFS("/static", staticFileSystem(a.cfg.Env))

	r.GET("/", a.homePageHandler)
	r.POST("/reports", a.createReportHandler)
	r.GET("/overlay.geojson", a.overlayHandler)
	r.POST("/language", a.languageSubmitHandler)

	api := r.Group("/api/v1")
	{
		api.GET("/reports", a.listReportsHandler)
	}

	a.registerAdminRoutes(r)
	return r
}

func loadConfig() (*Config, error) {
	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "development"
	}

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	driver := strings.ToLower(strings.TrimSpace(os.Getenv("STORE_DRIVER")))
	if driver == "" {
		driver = storeDriverSQLite
		if databaseURL != "" {
			driver = storeDriverPostgres
		}
	}
	switch driver {
	case storeDriverSQLite, storeDriverMemory:
	case storeDriverPostgres:
		if databaseURL == "" {
			return nil, fmt.Errorf("STORE_DRIVER=postgres requires DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be one of sqlite, postgres, memory")
	}

	scope := strings.ToLower(valueOrDefault("STORE_SCOPE", storeScopeDevice))
	if scope != storeScopeDevice && scope != storeScopeShared {
		return nil, fmt.Errorf("STORE_SCOPE must be 'device' or 'shared'")
	}

	overlayTimeout, err := time.ParseDuration(valueOrDefault("OVERLAY_TIMEOUT", "5s"))
	if err != nil || overlayTimeout <= 0 {
		return nil, fmt.Errorf("OVERLAY_TIMEOUT must be a positive duration")
	}
	shutdownTimeout, err := time.ParseDuration(valueOrDefault("SHUTDOWN_TIMEOUT", "10s"))
	if err != nil || shutdownTimeout <= 0 {
		return nil, fmt.Errorf("SHUTDOWN_TIMEOUT must be a positive duration")
	}

	secret := strings.TrimSpace(os.Getenv("APP_SIGNING_SECRET"))
	if secret == "" {
		// Admin gate cookies then only survive until restart.
		secret = uuid.NewString()
	} else if len(secret) < minSigningSecretLength {
		return nil, fmt.Errorf("APP_SIGNING_SECRET must be at least %d characters", minSigningSecretLength)
	}

	logFormat := strings.ToLower(valueOrDefault("LOG_FORMAT", "json"))
	if logFormat != "json" && logFormat != "text" {
		return nil, fmt.Errorf("LOG_FORMAT must be 'json' or 'text'")
	}

	notifyEmail := strings.TrimSpace(os.Getenv("REPORT_NOTIFY_EMAIL"))
	if notifyEmail != "" && !strings.Contains(notifyEmail, "@") {
		return nil, fmt.Errorf("REPORT_NOTIFY_EMAIL must be an email address")
	}

	return &Config{
		Addr:              valueOrDefault("HTTP_ADDR", ":8080"),
		Env:               env,
		LogLevel:          strings.ToLower(valueOrDefault("LOG_LEVEL", "info")),
		LogFormat:         logFormat,
		DataRoot:          valueOrDefault("DATA_ROOT", "./data"),
		StoreDriver:       driver,
		DatabaseURL:       databaseURL,
		StoreScope:        scope,
		OverlayURL:        strings.TrimSpace(os.Getenv("OVERLAY_URL")),
		OverlayTimeout:    overlayTimeout,
		AppSigningSecret:  secret,
		DisplayTimezone:   valueOrDefault("DISPLAY_TIMEZONE", "America/Toronto"),
		ShutdownTimeout:   shutdownTimeout,
		ResendAPIKey:      strings.TrimSpace(os.Getenv("RESEND_API_KEY")),
		MailerFromAddress: valueOrDefault("MAILER_FROM_ADDRESS", "noreply@forestkeeper.local"),
		ReportNotifyEmail: notifyEmail,
	}, nil
}

func valueOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func loadDisplayLocation(name string) *time.Location {
	location, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return location
}

func (a *App) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
		)
	}
}

func (a *App) readinessHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := a.kv.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func writeAPIError(c *gin.Context, err error) {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Code, "message": apiErr.Message})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
}
