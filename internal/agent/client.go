package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/stephenVertex/nova-act/internal/config"
	"github.com/stephenVertex/nova-act/internal/models"
)

// Client talks to the hosted browser-automation agent API. One Act call hands
// the agent a natural-language instruction plus the rendered page document and
// gets back a free-form text response that is expected to contain JSON.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	retryConfig RetryConfig
	logger      *slog.Logger
}

// RetryConfig defines retry behavior for failed agent requests.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// ExtractionResult is the structured outcome of one extraction call.
// PaginationKnown is false when the agent's response had to be recovered
// line-by-line and carried no usable pagination signal; the caller then
// decides pagination from the DOM instead.
type ExtractionResult struct {
	Heroes          []models.HeroRecord
	HasNextPage     bool
	PaginationKnown bool
	RawResponse     string
}

type actRequest struct {
	Instruction string `json:"instruction"`
	Document    string `json:"document"`
	DocumentURL string `json:"document_url,omitempty"`
	Schema      string `json:"schema,omitempty"`
}

type actResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

func NewClient(cfg config.AgentConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("agent API key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		retryConfig: RetryConfig{
			MaxRetries:    maxRetries,
			InitialDelay:  1 * time.Second,
			MaxDelay:      10 * time.Second,
			BackoffFactor: 2.0,
		},
		logger: slog.Default().With("component", "agent"),
	}, nil
}

// ExtractHeroes asks the agent to pull every hero card out of the given page
// document. The document must be the rendered HTML, not the initial payload.
func (c *Client) ExtractHeroes(ctx context.Context, document, pageURL string) (*ExtractionResult, error) {
	if strings.TrimSpace(document) == "" {
		return nil, fmt.Errorf("document cannot be empty")
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.calculateDelay(attempt - 1)
			c.logger.Info("retrying agent request", "attempt", attempt+1, "delay", delay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		response, err := c.act(ctx, actRequest{
			Instruction: extractionInstruction,
			Document:    document,
			DocumentURL: pageURL,
			Schema:      heroSchema,
		})
		if err != nil {
			lastErr = err
			// Client errors will not improve on retry.
			if permanent(err) {
				break
			}
			continue
		}

		result, err := c.parseExtraction(response)
		if err != nil {
			lastErr = err
			continue
		}
		return result, nil
	}

	return nil, fmt.Errorf("agent extraction failed after %d attempts: %w", c.retryConfig.MaxRetries+1, lastErr)
}

// permanentError marks failures that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

func (c *Client) act(ctx context.Context, reqBody actRequest) (string, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal act request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/act", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create act request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("agent request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read agent response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("agent returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return "", &permanentError{err}
		}
		return "", err
	}

	var actResp actResponse
	if err := json.Unmarshal(body, &actResp); err != nil {
		return "", fmt.Errorf("agent response is not valid JSON: %w", err)
	}
	if actResp.Error != "" {
		return "", fmt.Errorf("agent reported error: %s", actResp.Error)
	}

	return actResp.Response, nil
}

// parseExtraction turns the agent's text response into hero records. The
// primary path expects the instructed envelope; when the agent rambles, the
// fallback recovers hero objects line by line.
func (c *Client) parseExtraction(response string) (*ExtractionResult, error) {
	cleaned := cleanJSONResponse(response)

	var envelope struct {
		Heroes      []models.HeroRecord `json:"heroes"`
		HasNextPage bool                `json:"has_next_page"`
	}
	if err := json.Unmarshal([]byte(cleaned), &envelope); err == nil && envelope.Heroes != nil {
		return &ExtractionResult{
			Heroes:          validRecords(envelope.Heroes),
			HasNextPage:     envelope.HasNextPage,
			PaginationKnown: true,
			RawResponse:     response,
		}, nil
	}

	heroes := recoverHeroLines(response)
	if len(heroes) == 0 {
		return nil, fmt.Errorf("no hero records found in agent response (%d chars)", len(response))
	}

	c.logger.Warn("agent response recovered line-wise", "heroes", len(heroes))

	return &ExtractionResult{
		Heroes:          heroes,
		PaginationKnown: false,
		RawResponse:     response,
	}, nil
}

// cleanJSONResponse strips markdown code fences the agent tends to wrap JSON in.
func cleanJSONResponse(response string) string {
	cleaned := strings.TrimSpace(response)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

// recoverHeroLines scans a response line by line for hero-shaped JSON objects,
// tolerating prose around them.
func recoverHeroLines(text string) []models.HeroRecord {
	var heroes []models.HeroRecord
	seen := make(map[string]bool)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || (!strings.HasPrefix(line, "{") && !strings.Contains(line, `"name"`)) {
			continue
		}

		if !strings.HasPrefix(line, "{") {
			start := strings.Index(line, "{")
			end := strings.LastIndex(line, "}")
			if start < 0 || end <= start {
				continue
			}
			line = line[start : end+1]
		}
		line = strings.TrimSuffix(line, ",")

		var hero models.HeroRecord
		if err := json.Unmarshal([]byte(line), &hero); err != nil {
			continue
		}

		hero.Normalize()
		if !hero.IsValid() || seen[hero.Key()] {
			continue
		}

		seen[hero.Key()] = true
		heroes = append(heroes, hero)
	}

	return heroes
}

func validRecords(records []models.HeroRecord) []models.HeroRecord {
	valid := make([]models.HeroRecord, 0, len(records))
	seen := make(map[string]bool)
	for _, record := range records {
		record.Normalize()
		if !record.IsValid() || seen[record.Key()] {
			continue
		}
		seen[record.Key()] = true
		valid = append(valid, record)
	}
	return valid
}

func (c *Client) calculateDelay(attempt int) time.Duration {
	delay := float64(c.retryConfig.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= c.retryConfig.BackoffFactor
	}
	delay += rand.Float64() * 0.1 * float64(c.retryConfig.InitialDelay)

	if delay > float64(c.retryConfig.MaxDelay) {
		delay = float64(c.retryConfig.MaxDelay)
	}

	return time.Duration(delay)
}

const extractionInstruction = `Extract ALL AWS Heroes information from this page. For each hero card visible, provide:
1. name: the person's full name
2. profile_url: the complete URL the hero card links to (look for href attributes, typically starting with https://aws.amazon.com/developer/community/heroes/)
3. subject: the AWS hero category shown on the badge (like "AWS Container Hero", "AWS Serverless Hero", "AWS Machine Learning Hero")

Also look at the pagination controls at the bottom of the page and decide whether a further page of heroes exists.

Respond with a single JSON object in exactly this shape, and no other text:
{"heroes": [{"name": "John Doe", "profile_url": "https://aws.amazon.com/developer/community/heroes/john-doe/", "subject": "AWS Serverless Hero"}], "has_next_page": true}`

const heroSchema = `{"type":"object","properties":{"heroes":{"type":"array","items":{"type":"object","properties":{"name":{"type":"string"},"profile_url":{"type":"string"},"subject":{"type":"string"}},"required":["name","profile_url","subject"]}},"has_next_page":{"type":"boolean"}},"required":["heroes","has_next_page"]}`
