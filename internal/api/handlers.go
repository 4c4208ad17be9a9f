package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/stephenVertex/nova-act/internal/scraper"
	"github.com/stephenVertex/nova-act/internal/state"
)

// ScrapeRunner executes a scrape run. Each call is expected to open its own
// output files.
type ScrapeRunner interface {
	Run(ctx context.Context, opts scraper.RunOptions) (*scraper.RunSummary, error)
}

// RunnerFunc adapts a function to the ScrapeRunner interface
type RunnerFunc func(ctx context.Context, opts scraper.RunOptions) (*scraper.RunSummary, error)

func (f RunnerFunc) Run(ctx context.Context, opts scraper.RunOptions) (*scraper.RunSummary, error) {
	return f(ctx, opts)
}

type Handlers struct {
	store   *state.Store
	runner  ScrapeRunner
	running atomic.Bool
	logger  *slog.Logger
}

func NewHandlers(store *state.Store, runner ScrapeRunner, logger *slog.Logger) *Handlers {
	return &Handlers{
		store:  store,
		runner: runner,
		logger: logger.With("component", "api"),
	}
}

// HeroesResponse represents the known-heroes listing
type HeroesResponse struct {
	Heroes      []HeroEntry `json:"heroes"`
	TotalCount  int         `json:"total_count"`
	LastUpdated string      `json:"last_updated,omitempty"`
}

type HeroEntry struct {
	Name       string `json:"name"`
	ProfileURL string `json:"profile_url"`
	Subject    string `json:"subject"`
}

// ListHeroes returns every hero in the state store, sorted by name
func (h *Handlers) ListHeroes(w http.ResponseWriter, r *http.Request) {
	heroes := h.store.Heroes()

	entries := make([]HeroEntry, len(heroes))
	for i, hero := range heroes {
		entries[i] = HeroEntry{
			Name:       hero.Name,
			ProfileURL: hero.ProfileURL,
			Subject:    hero.Subject,
		}
	}

	resp := HeroesResponse{
		Heroes:     entries,
		TotalCount: h.store.Count(),
	}
	if t := h.store.LastUpdated(); !t.IsZero() {
		resp.LastUpdated = t.Format(time.RFC3339)
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// StatsResponse represents aggregate counts over the state store
type StatsResponse struct {
	TotalHeroes int            `json:"total_heroes"`
	ByCategory  map[string]int `json:"by_category"`
	LastUpdated string         `json:"last_updated,omitempty"`
}

// GetStats returns per-category hero counts
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		TotalHeroes: h.store.Count(),
		ByCategory:  h.store.CategoryCounts(),
	}
	if t := h.store.LastUpdated(); !t.IsZero() {
		resp.LastUpdated = t.Format(time.RFC3339)
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// ScrapeRequest represents a scrape trigger request
type ScrapeRequest struct {
	SinglePage bool `json:"single_page"`
	MaxPages   int  `json:"max_pages"`
}

// ScrapeResponse represents the outcome of a scrape run
type ScrapeResponse struct {
	PagesProcessed int    `json:"pages_processed"`
	NewHeroes      int    `json:"new_heroes"`
	TotalHeroes    int    `json:"total_heroes"`
	Error          string `json:"error,omitempty"`
}

// TriggerScrape starts a scrape run. Only one run may be active at a time;
// concurrent triggers get 409.
func (h *Handlers) TriggerScrape(w http.ResponseWriter, r *http.Request) {
	var req ScrapeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if !h.running.CompareAndSwap(false, true) {
		h.respondError(w, http.StatusConflict, "a scrape run is already in progress")
		return
	}
	defer h.running.Store(false)

	summary, err := h.runner.Run(r.Context(), scraper.RunOptions{
		SinglePage: req.SinglePage,
		MaxPages:   req.MaxPages,
	})
	if err != nil {
		h.logger.Error("scrape run failed", "error", err)
		h.respondJSON(w, http.StatusInternalServerError, ScrapeResponse{
			Error: err.Error(),
		})
		return
	}

	h.respondJSON(w, http.StatusOK, ScrapeResponse{
		PagesProcessed: summary.PagesProcessed,
		NewHeroes:      summary.NewHeroes,
		TotalHeroes:    summary.TotalHeroes,
	})
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
