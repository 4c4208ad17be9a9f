package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/stephenVertex/nova-act/internal/agent"
	"github.com/stephenVertex/nova-act/internal/browser"
	"github.com/stephenVertex/nova-act/internal/models"
	"github.com/stephenVertex/nova-act/internal/parser"
)

// pageParam is the listing's pagination query parameter.
const pageParam = "awsm.page-community-heroes-all"

// PageDriver is the production PageSource: a Playwright page renders the
// listing, the agent API extracts records from the rendered HTML, and the DOM
// parser fills in whenever the agent response is unusable.
type PageDriver struct {
	browser    *browser.Browser
	agent      *agent.Client
	parser     *parser.HeroParser
	startURL   string
	navRetries int
	logger     *slog.Logger
}

func NewPageDriver(b *browser.Browser, a *agent.Client, startURL string, navRetries int, logger *slog.Logger) *PageDriver {
	if navRetries < 1 {
		navRetries = 1
	}
	return &PageDriver{
		browser:    b,
		agent:      a,
		parser:     parser.NewHeroParser(),
		startURL:   startURL,
		navRetries: navRetries,
		logger:     logger.With("component", "page_driver"),
	}
}

// FetchPage renders one listing page and extracts its hero records.
func (d *PageDriver) FetchPage(ctx context.Context, pageNum int) (*models.PageResult, error) {
	page, err := d.browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()

	pageURL, err := PageURL(d.startURL, pageNum)
	if err != nil {
		return nil, err
	}

	if err := d.browser.NavigateWithRetry(page, pageURL, d.navRetries); err != nil {
		return nil, fmt.Errorf("failed to navigate to page %d: %w", pageNum, err)
	}

	// The card grid renders client-side; give it a moment before snapshotting.
	d.browser.WaitForContent(page, "div.m-card", 10*time.Second)

	html, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}

	result, err := d.agent.ExtractHeroes(ctx, html, pageURL)
	if err != nil {
		d.logger.Warn("agent extraction failed, falling back to DOM parser", "page", pageNum, "error", err)
		return d.parser.ParseHeroList(html, pageURL)
	}

	hasNext := result.HasNextPage
	if !result.PaginationKnown {
		// Agent response carried records but no pagination signal.
		if parsed, perr := d.parser.ParseHeroList(html, pageURL); perr == nil {
			hasNext = parsed.HasNextPage
		}
	}

	return &models.PageResult{
		Records:     result.Heroes,
		HasNextPage: hasNext,
	}, nil
}

// PageURL builds the listing URL for the given 1-based page number.
func PageURL(startURL string, pageNum int) (string, error) {
	parsed, err := url.Parse(startURL)
	if err != nil {
		return "", fmt.Errorf("invalid start URL: %w", err)
	}

	query := parsed.Query()
	query.Set(pageParam, strconv.Itoa(pageNum))
	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}
