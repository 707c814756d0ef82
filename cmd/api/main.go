// Package main is the entrypoint for the CitaFacil API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/citafacil/citafacil/internal/appointment"
	"github.com/citafacil/citafacil/internal/auth"
	"github.com/citafacil/citafacil/internal/config"
	"github.com/citafacil/citafacil/internal/elaboration"
	"github.com/citafacil/citafacil/internal/handler"
	"github.com/citafacil/citafacil/internal/identity"
	"github.com/citafacil/citafacil/internal/metrics"
	"github.com/citafacil/citafacil/internal/middleware"
	"github.com/citafacil/citafacil/internal/model"
	"github.com/citafacil/citafacil/internal/notify"
	"github.com/citafacil/citafacil/internal/reminder"
	"github.com/citafacil/citafacil/internal/server"
	"github.com/citafacil/citafacil/internal/storage"
	"github.com/citafacil/citafacil/internal/webhook"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("invalid timezone", "error", err)
		os.Exit(1)
	}

	store, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		logger.Error("failed to open storage",
			slog.String("backend", cfg.StorageBackend),
			slog.String("error", sanitizeError(err, cfg.DatabaseURL, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	logger.Info("storage ready", "backend", cfg.StorageBackend)

	recorder := metrics.NewInMemory()
	outbox := notify.NewOutbox(notify.DefaultOutboxSize)
	notifier := notify.Multi{notify.NewLogNotifier(logger), outbox}

	var hooks *webhook.Notifier
	if cfg.WebhookEnabled() {
		kinds := make([]notify.Kind, 0, len(cfg.WebhookEvents))
		for _, e := range cfg.WebhookEvents {
			kinds = append(kinds, notify.Kind(strings.TrimSpace(e)))
		}
		hooks, err = webhook.New(webhook.Config{
			URL:           cfg.WebhookURL,
			Secret:        cfg.WebhookSecret,
			Kinds:         kinds,
			AllowInsecure: cfg.WebhookAllowInsecure,
			Metrics:       recorder,
			Logger:        logger,
		})
		if err != nil {
			logger.Error("invalid webhook configuration", "error", err)
			os.Exit(1)
		}
		notifier = append(notifier, hooks)
	}
	keys := storage.NewKeys(cfg.StorageNamespace)

	scheduler := reminder.NewScheduler(reminder.Config{
		Lead:     cfg.ReminderLead,
		Notifier: notifier,
		Metrics:  recorder,
		Logger:   logger,
	})

	appointments := appointment.New(appointment.Config{
		Storage:   store,
		Keys:      keys,
		Scheduler: scheduler,
		Notifier:  notifier,
		Metrics:   recorder,
		Logger:    logger,
		Location:  loc,
	})

	identities := identity.New(identity.Config{
		Storage:   store,
		Keys:      keys,
		Hasher:    auth.NewHasher(auth.DefaultParams()),
		Notifier:  notifier,
		Metrics:   recorder,
		Logger:    logger,
		OnRestore: restoreAppointments(appointments),
	})

	gateway, err := elaboration.New(elaboration.Config{
		BaseURL: cfg.ElaborationBaseURL,
		Model:   cfg.ElaborationModel,
		APIKey:  cfg.ElaborationAPIKey,
		Metrics: recorder,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to configure elaboration", "error", err)
		os.Exit(1)
	}
	if cfg.ElaborationAPIKey == "" {
		logger.Warn("ELABORATION_API_KEY not set; elaboration requests will fail")
	}

	// Restore runs in the background; session and login endpoints answer
	// 503 until it has loaded the restored user's appointments.
	go func() {
		restoreCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		identities.Restore(restoreCtx)
	}()

	tokens := auth.NewTokens(cfg.SessionSecret, cfg.SessionTTL)
	limiter := middleware.NewRateLimiter(cfg.ElaborationRPS, cfg.ElaborationBurst)
	workersCtx, stopWorkers := context.WithCancel(ctx)
	go limiter.Run(workersCtx, middleware.DefaultCleanupInterval, middleware.DefaultClientIdle)
	if hooks != nil {
		go hooks.Run(workersCtx)
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	r := handler.NewRouter(handler.RouterConfig{
		Handler:            handler.New(),
		Health:             handler.NewHealthHandler(store, cfg.StorageBackend, identities),
		Auth:               handler.NewAuthHandler(identities, appointments, tokens, logger),
		Appointments:       handler.NewAppointmentHandler(appointments, logger),
		Elaborate:          handler.NewElaborateHandler(gateway, notifier, logger),
		Notifications:      handler.NewNotificationsHandler(outbox, tokens),
		Metrics:            handler.NewMetricsHandler(recorder),
		Session:            middleware.SessionConfig{Sessions: identities, Tokens: tokens, Logger: logger},
		ElaborationLimiter: limiter,
		CORS:               cors,
		MaxBodySize:        cfg.MaxRequestBodySize,
		Development:        cfg.IsDevelopment(),
		Logger:             logger,
	})

	srv := server.New(r, server.Config{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// LIFO: reminders stop before storage closes.
	srv.OnShutdown("storage", func(ctx context.Context) error {
		return store.Close()
	})
	srv.OnShutdown("workers", func(ctx context.Context) error {
		stopWorkers()
		return nil
	})
	srv.OnShutdown("reminders", scheduler.Shutdown)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"timezone", loc.String(),
		"reminder_lead", scheduler.Lead().String(),
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
// restoreAppointments reloads the restored user's appointments and re-arms
// their reminders.
func restoreAppointments(appts *appointment.Store) func(context.Context, *model.Session) {
	return func(ctx context.Context, sess *model.Session) {
		appts.Load(ctx, sess)
	}
}

func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h).With("service", "citafacil")
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s&]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		if username := parsed.User.Username(); username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	q := parsed.Query()
	if q.Has("password") {
		q.Set("password", "redacted")
		parsed.RawQuery = q.Encode()
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
