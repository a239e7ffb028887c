package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/jimdaga/influencer-crm/internal/auth"
	"github.com/jimdaga/influencer-crm/internal/config"
	"github.com/jimdaga/influencer-crm/internal/database"
	"github.com/jimdaga/influencer-crm/internal/engagements"
	"github.com/jimdaga/influencer-crm/internal/health"
	"github.com/jimdaga/influencer-crm/internal/negotiation"
	"github.com/jimdaga/influencer-crm/internal/outreach"
	"github.com/jimdaga/influencer-crm/internal/streams"
	"github.com/jimdaga/influencer-crm/internal/templates"
	"github.com/jimdaga/influencer-crm/internal/worker"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(worker.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat))

	db, err := database.Init(cfg.DatabaseURL, worker.ParseLevel(cfg.LogLevel))
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close(db)

	if err := database.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// `server worker` runs the background worker alone (WORKER_MODE=standalone).
	if len(os.Args) > 1 && os.Args[1] == "worker" {
		runStandaloneWorker(cfg, db)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := templates.InitTemplates(ctx, db, cfg.TemplateDir)
	if err != nil {
		slog.Warn("Outreach templates unavailable", "dir", cfg.TemplateDir, "error", err)
		registry = templates.NewRegistry()
	}

	var events negotiation.EventPublisher
	publisher, err := streams.NewPublisher(cfg.RedisURL)
	if err != nil {
		slog.Warn("Event publishing disabled", "error", err)
	} else {
		defer publisher.Close()
		events = publisher
	}

	store := engagements.NewStore(db)
	svc := negotiation.NewService(store, auth.ContextIdentity{}, events, negotiation.Options{
		StrictTransitions: cfg.StrictTransitions,
		MaxOfferCents:     cfg.MaxOfferCents,
		DefaultCurrency:   cfg.DefaultCurrency,
	})
	sender := outreach.NewSender(registry, store, svc,
		outreach.NewClient(cfg.OutreachWebhookURL, cfg.OutreachWebhookSecret, cfg.OutreachStubMode))

	if cfg.Env == "development" {
		if err := database.SeedDevData(auth.WithActor(ctx, "system"), db, svc); err != nil {
			slog.Warn("Failed to seed dev data", "error", err)
		}
	}

	auth.InitProviders(cfg)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger("/health", "/ready"))

	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   cfg.Env == "production",
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("influencer_crm_session", sessionStore))

	r.GET("/health", gin.WrapF(health.Handler))
	r.GET("/ready", gin.WrapF(health.ReadyHandler(func(ctx context.Context) error {
		return database.Ping(ctx, db)
	})))

	r.GET("/auth/google", auth.HandleLogin)
	r.GET("/auth/google/callback", auth.HandleCallback(db))
	r.POST("/auth/logout", auth.HandleLogout)

	api := r.Group("/api", auth.RequireAuth())
	engagements.NewHandlers(svc, store).Register(api)
	sender.Register(api)

	stopWorker := startEmbeddedWorker(ctx, cfg, db)
	defer stopWorker()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Starting server", "port", cfg.Port, "env", cfg.Env, "worker_mode", cfg.WorkerMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
}

// startEmbeddedWorker runs the task worker, the follow-up scheduler and the
// activity consumer inside the server process. Failures degrade the
// background features without stopping the API.
func startEmbeddedWorker(ctx context.Context, cfg *config.Config, db *gorm.DB) (stop func()) {
	if cfg.WorkerMode != config.WorkerModeEmbedded {
		slog.Info("Embedded worker disabled", "worker_mode", cfg.WorkerMode)
		return func() {}
	}

	var stops []func()

	if err := worker.InitClient(cfg.RedisURL); err != nil {
		slog.Error("Failed to initialize task client", "error", err)
	} else {
		stops = append(stops, func() { worker.CloseClient() })
	}

	if stopWorker, err := worker.Start(cfg, db); err != nil {
		slog.Error("Failed to start worker", "error", err)
	} else {
		stops = append(stops, stopWorker)
	}

	if stopScheduler, err := worker.StartScheduler(cfg); err != nil {
		slog.Error("Failed to start scheduler", "error", err)
	} else {
		stops = append(stops, stopScheduler)
	}

	if stopConsumer, err := streams.StartEventConsumer(cfg.RedisURL, db); err != nil {
		slog.Error("Failed to start event consumer", "error", err)
	} else {
		stops = append(stops, stopConsumer)
	}

	// Catch up on follow-ups that fell due while the process was down.
	if err := worker.EnqueueFollowUpScan(ctx); err != nil {
		slog.Warn("Failed to enqueue startup follow-up scan", "error", err)
	}

	return func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}
}

func runStandaloneWorker(cfg *config.Config, db *gorm.DB) {
	stopScheduler, err := worker.StartScheduler(cfg)
	if err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer stopScheduler()

	stopConsumer, err := streams.StartEventConsumer(cfg.RedisURL, db)
	if err != nil {
		log.Fatalf("Failed to start event consumer: %v", err)
	}
	defer stopConsumer()

	if err := worker.Run(cfg, db); err != nil {
		log.Fatalf("Worker failed: %v", err)
	}
}

// requestLogger logs one line per request, skipping noisy probe paths.
func requestLogger(prefixesToSkip ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, pre := range prefixesToSkip {
			if strings.HasPrefix(path, pre) {
				c.Next()
				return
			}
		}
		start := time.Now()

		c.Next()

		slog.Info("Request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}
