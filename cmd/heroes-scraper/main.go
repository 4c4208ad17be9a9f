package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stephenVertex/nova-act/internal/agent"
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
	var (
		allPages   = flag.Bool("all-pages", false, "Scrape every listing page until the last one (capped)")
		singlePage = flag.Bool("single-page", false, "Scrape only the first listing page")
		maxPages   = flag.Int("max-pages", 0, "Page limit for this run (always capped)")
		headless   = flag.Bool("headless", true, "Run browser in headless mode")
		outputDir  = flag.String("output-dir", "", "Directory for JSONL and debug output (overrides OUTPUT_DIR)")
		stateFile  = flag.String("state-file", "", "Dedup state file (overrides STATE_FILE)")
	)
	flag.Usage = usage
	flag.Parse()

	if *allPages && *singlePage {
		fmt.Fprintln(os.Stderr, "Error: -all-pages and -single-page are mutually exclusive")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *stateFile != "" {
		cfg.Output.StateFile = *stateFile
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// No point opening a browser without agent credentials.
	if err := cfg.ValidateAgent(); err != nil {
		log.Fatalf("Missing agent credentials: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Starting AWS Heroes Scraper")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	store, err := state.NewStore(cfg.Output.StateFile)
	if err != nil {
		logger.Error("Failed to load state file", "file", cfg.Output.StateFile, "error", err)
		os.Exit(1)
	}
	logger.Info("State loaded", "known_heroes", store.Count())

	b, err := browser.New(&browser.Options{
		Headless:       *headless && cfg.Browser.Headless,
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
		logger.Error("Failed to initialize browser", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	agentClient, err := agent.NewClient(cfg.Agent)
	if err != nil {
		logger.Error("Failed to initialize agent client", "error", err)
		os.Exit(1)
	}

	driver := scraper.NewPageDriver(b, agentClient, cfg.Scraper.StartURL, cfg.Scraper.NavRetries, logger)

	out, err := output.NewWriter(cfg.Output.Dir, time.Now())
	if err != nil {
		logger.Error("Failed to open output files", "error", err)
		os.Exit(1)
	}
	defer out.Close()

	rateLimiter := ratelimit.NewAdaptiveRateLimiter(
		cfg.Scraper.RateLimitMin,
		cfg.Scraper.RateLimitMax,
	)

	service := scraper.NewService(driver, store, out, rateLimiter, logger)

	// Optional archive: upserts heroes into Postgres and queues discovery
	// events for the stream relay.
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
			logger.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		service.SetEventSink(events.NewPublisher(db, logger))
		logger.Info("Hero archive enabled")
	}

	opts := scraper.RunOptions{
		SinglePage: *singlePage,
		MaxPages:   cfg.EffectiveMaxPages(),
	}
	if *maxPages > 0 {
		opts.MaxPages = *maxPages
	}

	summary, err := service.Run(ctx, opts)
	if err != nil {
		logger.Error("Scrape run failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Scrape run finished",
		"pages_processed", summary.PagesProcessed,
		"new_heroes", summary.NewHeroes,
		"total_heroes", summary.TotalHeroes)

	fmt.Printf("Processed %d page(s): %d new hero(es), %d total\n",
		summary.PagesProcessed, summary.NewHeroes, summary.TotalHeroes)
	fmt.Printf("Records: %s\n", out.RecordsPath())
	fmt.Printf("Debug log: %s\n", out.DebugPath())
}

func usage() {
	fmt.Fprintf(os.Stderr, `AWS Heroes Scraper

Scrapes the AWS Community Heroes listing, deduplicates against the saved
state file, and appends newly-discovered heroes to a timestamped JSONL file.

Usage:
  heroes-scraper [flags]

Flags:
`)
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Environment:
  NOVA_ACT_API_KEY   agent API key (required)
  HEROES_START_URL   listing URL to start from
  STATE_FILE         dedup state file (default ./state/heroes.json)
  OUTPUT_DIR         directory for JSONL and debug output
`)
}
