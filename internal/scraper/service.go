package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stephenVertex/nova-act/internal/config"
	"github.com/stephenVertex/nova-act/internal/models"
	"github.com/stephenVertex/nova-act/internal/output"
	"github.com/stephenVertex/nova-act/internal/ratelimit"
	"github.com/stephenVertex/nova-act/internal/state"
)

// PageSource produces the extraction result for one listing page.
type PageSource interface {
	FetchPage(ctx context.Context, page int) (*models.PageResult, error)
}

// EventSink receives newly-discovered heroes. Sink failures are logged and
// never interrupt a run; the files on disk are the source of truth.
type EventSink interface {
	HeroDiscovered(ctx context.Context, record models.HeroRecord, page int) error
}

// outcomeRecorder is implemented by limiters that adapt their pacing to
// extraction outcomes, like ratelimit.AdaptiveRateLimiter.
type outcomeRecorder interface {
	RecordSuccess()
	RecordError()
}

// Service drives pagination: extract, merge into state, persist, append
// output, until the source reports no next page or the safety cap is hit.
type Service struct {
	source  PageSource
	store   *state.Store
	out     *output.Writer
	limiter ratelimit.RateLimiter
	sink    EventSink
	logger  *slog.Logger
}

type RunOptions struct {
	// SinglePage stops after the first page regardless of pagination.
	SinglePage bool
	// MaxPages limits the run; it is always clamped to config.HardPageCap.
	MaxPages int
}

type RunSummary struct {
	PagesProcessed int
	NewHeroes      int
	TotalHeroes    int
}

func NewService(source PageSource, store *state.Store, out *output.Writer, limiter ratelimit.RateLimiter, logger *slog.Logger) *Service {
	return &Service{
		source:  source,
		store:   store,
		out:     out,
		limiter: limiter,
		logger:  logger.With("component", "scraper"),
	}
}

// SetEventSink attaches an optional sink for newly-discovered heroes.
func (s *Service) SetEventSink(sink EventSink) {
	s.sink = sink
}

// Run processes pages 1..min(MaxPages, HardPageCap). A page whose extraction
// fails is treated as empty and the run advances; state-file or output-file
// write errors abort the run. State is saved after every page so a crash
// loses at most one page of work.
func (s *Service) Run(ctx context.Context, opts RunOptions) (*RunSummary, error) {
	maxPages := opts.MaxPages
	if maxPages <= 0 || maxPages > config.HardPageCap {
		maxPages = config.HardPageCap
	}
	mode := "all pages"
	if opts.SinglePage {
		maxPages = 1
		mode = "single page"
	}

	if err := s.out.WriteHeader(mode, s.store.Count()); err != nil {
		return nil, err
	}

	summary := &RunSummary{}
	newBySubject := make(map[string]int)

	for page := 1; page <= maxPages; page++ {
		select {
		case <-ctx.Done():
			s.logger.Info("run cancelled", "page", page)
			return s.finish(summary, mode, newBySubject)
		default:
		}

		if page > 1 && s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return s.finish(summary, mode, newBySubject)
			}
		}

		s.logger.Info("processing page", "page", page, "heroes_in_state", s.store.Count())

		result, err := s.source.FetchPage(ctx, page)
		if err != nil {
			// Recovered locally: record it, treat the page as empty,
			// and keep going up to the cap.
			s.recordOutcome(false)
			s.logger.Warn("page extraction failed, treating as empty", "page", page, "error", err)
			if werr := s.out.PageError(page, err); werr != nil {
				return summary, werr
			}
			result = &models.PageResult{HasNextPage: true}
		} else {
			s.recordOutcome(true)
		}

		added := s.store.Merge(result.Records)

		if err := s.store.Save(); err != nil {
			return summary, fmt.Errorf("failed to persist state after page %d: %w", page, err)
		}

		if len(added) > 0 {
			if err := s.out.AppendRecords(added); err != nil {
				return summary, fmt.Errorf("failed to write output after page %d: %w", page, err)
			}
		}

		if err := s.out.PageStats(page, len(added), len(result.Records)-len(added), s.store.Count(), result.HasNextPage); err != nil {
			return summary, err
		}

		for _, record := range added {
			newBySubject[record.Subject]++
			s.publish(ctx, record, page)
		}

		summary.PagesProcessed = page
		summary.NewHeroes += len(added)

		s.logger.Info("page done",
			"page", page,
			"new", len(added),
			"duplicates", len(result.Records)-len(added),
			"has_next", result.HasNextPage,
		)

		if !result.HasNextPage {
			s.logger.Info("no more pages reported")
			break
		}

		if page == maxPages {
			s.logger.Info("page limit reached", "limit", maxPages)
		}
	}

	return s.finish(summary, mode, newBySubject)
}

func (s *Service) finish(summary *RunSummary, mode string, newBySubject map[string]int) (*RunSummary, error) {
	summary.TotalHeroes = s.store.Count()

	err := s.out.WriteSummary(output.Summary{
		Mode:           mode,
		PagesProcessed: summary.PagesProcessed,
		NewHeroes:      summary.NewHeroes,
		TotalHeroes:    summary.TotalHeroes,
		NewBySubject:   newBySubject,
		TotalBySubject: s.store.CategoryCounts(),
	})
	if err != nil {
		return summary, err
	}

	return summary, nil
}

// recordOutcome feeds extraction results to an adaptive limiter so repeated
// failures slow the run down.
func (s *Service) recordOutcome(ok bool) {
	rec, adaptive := s.limiter.(outcomeRecorder)
	if !adaptive {
		return
	}
	if ok {
		rec.RecordSuccess()
	} else {
		rec.RecordError()
	}
}

func (s *Service) publish(ctx context.Context, record models.HeroRecord, page int) {
	if s.sink == nil {
		return
	}
	if err := s.sink.HeroDiscovered(ctx, record, page); err != nil {
		s.logger.Error("failed to publish hero event", "profile_url", record.ProfileURL, "error", err)
	}
}
