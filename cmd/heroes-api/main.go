package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/stephenVertex/nova-act/internal/agent"
	"github.com/stephenVertex/nova-act/internal/api"
	"github.com/stephenVertex/nova-act/internal/browser"
	"github.com/stephenVertex/nova-act/internal/config"
	"github.com/stephenVertex/nova-act/internal/database"
	"github.com/stephenVertex/nova-act/internal/events"
	"github.com/stephenVertex/nova-act/internal/output"
	"github.com/stephenVertex/nova-act/internal/ratelimit"
	"github.com/stephenVertex/nova-act/internal/scraper"
	"github.com/stephenVertex/nova-act/internal/state"
	"github.com/stephenVertex/nova-act/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := state.NewStore(cfg.Output.StateFile)
	if err != nil {
		logger.Error("failed to load state file", "file", cfg.Output.StateFile, "error", err)
		os.Exit(1)
	}

	// The scrape trigger endpoint needs agent credentials; without them the
	// server still serves the read-only endpoints.
	var runner api.ScrapeRunner
	if err := cfg.ValidateAgent(); err != nil {
		logger.Warn("scrape trigger disabled", "reason", err)
		runner = api.RunnerFunc(func(ctx context.Context, opts scraper.RunOptions) (*scraper.RunSummary, error) {
			return nil, fmt.Errorf("scraping is not configured: NOVA_ACT_API_KEY is not set")
		})
	} else {
		b, err := browser.New(&browser.Options{
			Headless:       cfg.Browser.Headless,
			Timeout:        cfg.Browser.Timeout,
			UserDataDir:    cfg.Browser.UserDataDir,
			UserAgent:      cfg.Browser.UserAgent,
			ViewportWidth:  cfg.Browser.ViewportWidth,
			ViewportHeight: cfg.Browser.ViewportHeight,
			AcceptLanguage: cfg.Browser.AcceptLanguage,
			TimezoneID:     cfg.Browser.TimezoneID,
			Locale:         cfg.Browser.Locale,
		})
		if err != nil {
			logger.Error("failed to initialize browser", "error", err)
			os.Exit(1)
		}
		defer b.Close()

		agentClient, err := agent.NewClient(cfg.Agent)
		if err != nil {
			logger.Error("failed to initialize agent client", "error", err)
			os.Exit(1)
		}

		driver := scraper.NewPageDriver(b, agentClient, cfg.Scraper.StartURL, cfg.Scraper.NavRetries, logger)
		runner = newScrapeRunner(cfg, driver, store, logger)
	}

	// Database connection for the hero archive and outbox relay
	var relay *database.Relay
	var archive *api.ArchiveHandlers
	if cfg.Database.Enabled {
		db, err := database.New(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Name,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}

		relay = database.NewRelay(db, redisClient, logger, database.RelayConfig{
			PollInterval: 5 * time.Second,
			BatchSize:    100,
		})
		go func() {
			if err := relay.Start(ctx); err != nil && err != context.Canceled {
				logger.Error("relay stopped with error", "error", err)
			}
		}()

		if base, ok := runner.(*scrapeRunner); ok {
			base.sink = events.NewPublisher(db, logger)
		}

		archive = api.NewArchiveHandlers(
			database.NewHeroRepository(db),
			database.NewOutboxRepository(db),
			logger,
		)
	}

	handlers := api.NewHandlers(store, runner, logger)

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		health := map[string]interface{}{
			"status":       "ok",
			"known_heroes": store.Count(),
		}

		status := http.StatusOK
		if relay != nil {
			pendingCount, _ := relay.GetPendingCount(context.Background())
			deadLetterCount, _ := relay.GetDeadLetterCount(context.Background())

			health["outbox"] = map[string]interface{}{
				"pending":     pendingCount,
				"dead_letter": deadLetterCount,
			}

			if pendingCount > 1000 {
				health["status"] = "warning"
				health["message"] = "High number of pending outbox events"
			}
			if deadLetterCount > 100 {
				health["status"] = "error"
				health["message"] = "High number of dead letter events"
				status = http.StatusServiceUnavailable
			}
		}

		w.WriteHeader(status)
		json.NewEncoder(w).Encode(health)
	})

	// API Routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/heroes", handlers.ListHeroes)
		r.Get("/stats", handlers.GetStats)
		r.Post("/scrape", handlers.TriggerScrape)

		if archive != nil {
			r.Get("/archive/heroes", archive.ListArchived)
			r.Get("/archive/stats", archive.GetArchiveStats)
		}
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "port", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// scrapeRunner builds a fresh scrape service per trigger so every run gets
// its own timestamped output files.
type scrapeRunner struct {
	cfg    *config.Config
	driver *scraper.PageDriver
	store  *state.Store
	sink   scraper.EventSink
	logger *slog.Logger
}

func newScrapeRunner(cfg *config.Config, driver *scraper.PageDriver, store *state.Store, logger *slog.Logger) *scrapeRunner {
	return &scrapeRunner{
		cfg:    cfg,
		driver: driver,
		store:  store,
		logger: logger,
	}
}

func (r *scrapeRunner) Run(ctx context.Context, opts scraper.RunOptions) (*scraper.RunSummary, error) {
	out, err := output.NewWriter(r.cfg.Output.Dir, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to open output files: %w", err)
	}
	defer out.Close()

	limiter := ratelimit.NewSimpleRateLimiter(
		r.cfg.Scraper.RateLimitMin,
		r.cfg.Scraper.RateLimitMax,
	)

	service := scraper.NewService(r.driver, r.store, out, limiter, r.logger)
	if r.sink != nil {
		service.SetEventSink(r.sink)
	}

	if opts.MaxPages <= 0 {
		opts.MaxPages = r.cfg.EffectiveMaxPages()
	}

	return service.Run(ctx, opts)
}
