package browser

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Browser wraps a Playwright Chromium session. When a user data directory is
// configured the session reuses the saved login profile instead of a
// throwaway context.
type Browser struct {
	pw         *playwright.Playwright
	browser    playwright.Browser
	context    playwright.BrowserContext
	persistent bool
	timeout    time.Duration
	logger     *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserDataDir    string
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "en-US,en;q=0.9",
		TimezoneID:     "America/Los_Angeles",
		Locale:         "en-US",
	}
}

func New(opts *Options) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	args := []string{
		"--disable-blink-features=AutomationControlled",
		"--disable-dev-shm-usage",
		"--no-sandbox",
		"--disable-setuid-sandbox",
	}

	b := &Browser{
		pw:      pw,
		timeout: opts.Timeout,
		logger:  slog.Default().With("component", "browser"),
	}

	if opts.UserDataDir != "" {
		// Saved login session from the setup helper.
		context, err := pw.Chromium.LaunchPersistentContext(opts.UserDataDir,
			playwright.BrowserTypeLaunchPersistentContextOptions{
				Headless:   &opts.Headless,
				Args:       args,
				UserAgent:  &opts.UserAgent,
				Locale:     &opts.Locale,
				TimezoneId: &opts.TimezoneID,
				Viewport: &playwright.Size{
					Width:  opts.ViewportWidth,
					Height: opts.ViewportHeight,
				},
			})
		if err != nil {
			pw.Stop()
			return nil, fmt.Errorf("failed to launch persistent context from %s: %w", opts.UserDataDir, err)
		}

		b.context = context
		b.persistent = true
		b.logger.Info("using saved browser profile", "user_data_dir", opts.UserDataDir)
		return b, nil
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args:     args,
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	context, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         &opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		TimezoneId:        &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: map[string]string{
			"Accept-Language": opts.AcceptLanguage,
		},
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	b.browser = browser
	b.context = context
	return b, nil
}

func (b *Browser) NewPage() (playwright.Page, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	page.SetDefaultTimeout(float64(b.timeout.Milliseconds()))

	return page, nil
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	return nil
}

// NavigateWithRetry loads a URL, retrying with linear backoff. The heroes
// listing renders its cards client-side, so the wait is for DOM content and
// the caller should additionally wait for the card grid.
func (b *Browser) NavigateWithRetry(page playwright.Page, url string, maxRetries int) error {
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			b.logger.Info("retrying navigation", "attempt", i+1, "url", url)
			time.Sleep(time.Duration(i+1) * time.Second)
		}

		_, err := page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(b.timeout.Milliseconds())),
		})
		if err == nil {
			b.dismissCookieBanner(page)
			return nil
		}

		lastErr = err
		b.logger.Error("navigation failed", "error", err, "attempt", i+1)
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

// WaitForContent waits until the given selector is attached, returning false
// on timeout instead of an error so callers can fall through to whatever the
// page did render.
func (b *Browser) WaitForContent(page playwright.Page, selector string, timeout time.Duration) bool {
	_, err := page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		b.logger.Warn("content selector not found", "selector", selector, "error", err)
		return false
	}
	return true
}

// dismissCookieBanner clears the aws.amazon.com consent overlay when shown so
// it does not cover the hero cards.
func (b *Browser) dismissCookieBanner(page playwright.Page) {
	selectors := []string{
		`button[data-id="awsccc-cb-btn-accept"]`,
		`#awsccc-cb-btn-accept`,
		`button:has-text("Accept all cookies")`,
	}

	for _, selector := range selectors {
		button := page.Locator(selector).First()
		count, err := button.Count()
		if err != nil || count == 0 {
			continue
		}
		if err := button.Click(); err != nil {
			b.logger.Debug("failed to click cookie banner", "selector", selector, "error", err)
			continue
		}
		b.logger.Debug("cookie banner dismissed", "selector", selector)
		return
	}
}
