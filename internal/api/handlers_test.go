package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stephenVertex/nova-act/internal/models"
	"github.com/stephenVertex/nova-act/internal/scraper"
	"github.com/stephenVertex/nova-act/internal/state"
)

func testStore(t *testing.T, records ...models.HeroRecord) *state.Store {
	t.Helper()

	store, err := state.NewStore(filepath.Join(t.TempDir(), "heroes.json"))
	require.NoError(t, err)
	store.Merge(records)
	return store
}

func TestHandlers_ListHeroes(t *testing.T) {
	logger := slog.Default()

	store := testStore(t,
		models.HeroRecord{Name: "Alice Anderson", ProfileURL: "https://aws.amazon.com/developer/community/heroes/alice-anderson/", Subject: "AWS Serverless Hero"},
		models.HeroRecord{Name: "Bob Brown", ProfileURL: "https://aws.amazon.com/developer/community/heroes/bob-brown/", Subject: "AWS Container Hero"},
	)
	handlers := NewHandlers(store, nil, logger)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/heroes", nil)
	rec := httptest.NewRecorder()

	handlers.ListHeroes(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp HeroesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 2, resp.TotalCount)
	require.Len(t, resp.Heroes, 2)
	assert.Equal(t, "Alice Anderson", resp.Heroes[0].Name)
	assert.Equal(t, "Bob Brown", resp.Heroes[1].Name)
}

func TestHandlers_GetStats(t *testing.T) {
	logger := slog.Default()

	store := testStore(t,
		models.HeroRecord{Name: "Alice Anderson", ProfileURL: "https://example.com/a", Subject: "AWS Serverless Hero"},
		models.HeroRecord{Name: "Bob Brown", ProfileURL: "https://example.com/b", Subject: "AWS Serverless Hero"},
		models.HeroRecord{Name: "Carol Clark", ProfileURL: "https://example.com/c", Subject: "AWS Container Hero"},
	)
	handlers := NewHandlers(store, nil, logger)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	rec := httptest.NewRecorder()

	handlers.GetStats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 3, resp.TotalHeroes)
	assert.Equal(t, 2, resp.ByCategory["AWS Serverless Hero"])
	assert.Equal(t, 1, resp.ByCategory["AWS Container Hero"])
}

func TestHandlers_TriggerScrape(t *testing.T) {
	logger := slog.Default()

	t.Run("successful run returns summary", func(t *testing.T) {
		store := testStore(t)
		runner := RunnerFunc(func(ctx context.Context, opts scraper.RunOptions) (*scraper.RunSummary, error) {
			assert.True(t, opts.SinglePage)
			return &scraper.RunSummary{PagesProcessed: 1, NewHeroes: 4, TotalHeroes: 4}, nil
		})
		handlers := NewHandlers(store, runner, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/scrape",
			strings.NewReader(`{"single_page":true}`))
		rec := httptest.NewRecorder()

		handlers.TriggerScrape(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp ScrapeResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, 1, resp.PagesProcessed)
		assert.Equal(t, 4, resp.NewHeroes)
	})

	t.Run("run failure returns 500", func(t *testing.T) {
		store := testStore(t)
		runner := RunnerFunc(func(ctx context.Context, opts scraper.RunOptions) (*scraper.RunSummary, error) {
			return nil, errors.New("browser crashed")
		})
		handlers := NewHandlers(store, runner, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/scrape", nil)
		rec := httptest.NewRecorder()

		handlers.TriggerScrape(rec, req)

		require.Equal(t, http.StatusInternalServerError, rec.Code)

		var resp ScrapeResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "browser crashed", resp.Error)
	})

	t.Run("concurrent trigger gets conflict", func(t *testing.T) {
		store := testStore(t)

		started := make(chan struct{})
		release := make(chan struct{})
		runner := RunnerFunc(func(ctx context.Context, opts scraper.RunOptions) (*scraper.RunSummary, error) {
			close(started)
			<-release
			return &scraper.RunSummary{}, nil
		})
		handlers := NewHandlers(store, runner, logger)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			handlers.TriggerScrape(rec, httptest.NewRequest(http.MethodPost, "/api/v1/scrape", nil))
		}()

		<-started

		rec := httptest.NewRecorder()
		handlers.TriggerScrape(rec, httptest.NewRequest(http.MethodPost, "/api/v1/scrape", nil))
		assert.Equal(t, http.StatusConflict, rec.Code)

		close(release)
		wg.Wait()
	})

	t.Run("invalid body rejected", func(t *testing.T) {
		store := testStore(t)
		handlers := NewHandlers(store, nil, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/scrape",
			strings.NewReader(`{not json`))
		rec := httptest.NewRecorder()

		handlers.TriggerScrape(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
