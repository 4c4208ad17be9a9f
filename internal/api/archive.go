package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/stephenVertex/nova-act/internal/database"
)

// HeroArchive interface for archive queries (for testing)
type HeroArchive interface {
	List(ctx context.Context, limit int) ([]*database.ArchivedHero, error)
	Count(ctx context.Context) (int, error)
}

// OutboxCounter interface for outbox status counts (for testing)
type OutboxCounter interface {
	CountByStatus(ctx context.Context, status string) (int, error)
}

// ArchiveHandlers serves the Postgres hero archive. Only mounted when the
// archive is enabled; the JSON state file remains the dedup authority.
type ArchiveHandlers struct {
	heroes HeroArchive
	outbox OutboxCounter
	logger *slog.Logger
}

func NewArchiveHandlers(heroes HeroArchive, outbox OutboxCounter, logger *slog.Logger) *ArchiveHandlers {
	return &ArchiveHandlers{
		heroes: heroes,
		outbox: outbox,
		logger: logger.With("component", "archive_api"),
	}
}

const (
	defaultArchiveLimit = 100
	maxArchiveLimit     = 1000
)

// ArchivedHeroesResponse represents the archive listing
type ArchivedHeroesResponse struct {
	Heroes     []*database.ArchivedHero `json:"heroes"`
	TotalCount int                      `json:"total_count"`
}

// ListArchived returns archived heroes ordered by name, up to ?limit.
func (h *ArchiveHandlers) ListArchived(w http.ResponseWriter, r *http.Request) {
	limit := defaultArchiveLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxArchiveLimit {
		limit = maxArchiveLimit
	}

	heroes, err := h.heroes.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list archived heroes", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list archived heroes")
		return
	}

	total, err := h.heroes.Count(r.Context())
	if err != nil {
		h.logger.Error("failed to count archived heroes", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to count archived heroes")
		return
	}

	if heroes == nil {
		heroes = []*database.ArchivedHero{}
	}
	h.respondJSON(w, http.StatusOK, ArchivedHeroesResponse{
		Heroes:     heroes,
		TotalCount: total,
	})
}

// ArchiveStatsResponse represents archive and outbox totals
type ArchiveStatsResponse struct {
	ArchivedHeroes int            `json:"archived_heroes"`
	Outbox         map[string]int `json:"outbox"`
}

// GetArchiveStats returns the archive size and per-status outbox counts.
func (h *ArchiveHandlers) GetArchiveStats(w http.ResponseWriter, r *http.Request) {
	total, err := h.heroes.Count(r.Context())
	if err != nil {
		h.logger.Error("failed to count archived heroes", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to count archived heroes")
		return
	}

	outbox := make(map[string]int)
	for _, status := range []string{
		database.OutboxStatusPending,
		database.OutboxStatusProcessed,
		database.OutboxStatusFailed,
		database.OutboxStatusDeadLetter,
	} {
		count, err := h.outbox.CountByStatus(r.Context(), status)
		if err != nil {
			h.logger.Error("failed to count outbox events", "status", status, "error", err)
			h.respondError(w, http.StatusInternalServerError, "failed to count outbox events")
			return
		}
		outbox[status] = count
	}

	h.respondJSON(w, http.StatusOK, ArchiveStatsResponse{
		ArchivedHeroes: total,
		Outbox:         outbox,
	})
}

func (h *ArchiveHandlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *ArchiveHandlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
