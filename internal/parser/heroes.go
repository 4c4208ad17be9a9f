package parser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/stephenVertex/nova-act/internal/models"
)

// HeroParser extracts hero cards straight from the rendered listing HTML. It
// is the local fallback for pages where the agent response could not be used.
type HeroParser struct {
	cardSelectors []string
}

func NewHeroParser() *HeroParser {
	return &HeroParser{
		// The listing has been through a few redesigns; try the variants
		// seen so far before giving up.
		cardSelectors: []string{
			"div.m-card",
			"li.m-card",
			"div[class*='hero-card']",
			"div[data-rg-n='Card']",
		},
	}
}

// ParseHeroList parses hero records and the pagination signal out of a page.
// Relative profile links are resolved against pageURL.
func (p *HeroParser) ParseHeroList(html, pageURL string) (*models.PageResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var cards *goquery.Selection
	for _, selector := range p.cardSelectors {
		cards = doc.Find(selector)
		if cards.Length() > 0 {
			break
		}
	}

	result := &models.PageResult{
		HasNextPage: p.hasNextPage(doc),
	}

	if cards == nil || cards.Length() == 0 {
		return result, nil
	}

	seen := make(map[string]bool)
	cards.Each(func(_ int, card *goquery.Selection) {
		record := p.parseCard(card, pageURL)
		if record == nil {
			return
		}
		if seen[record.Key()] {
			return
		}
		seen[record.Key()] = true
		result.Records = append(result.Records, *record)
	})

	return result, nil
}

func (p *HeroParser) parseCard(card *goquery.Selection, pageURL string) *models.HeroRecord {
	record := &models.HeroRecord{
		Name:       firstText(card, "div.m-headline", "h3", "h4", "span.m-card-title"),
		Subject:    p.extractSubject(card),
		ProfileURL: p.extractProfileURL(card, pageURL),
	}

	record.Normalize()
	if !record.IsValid() {
		return nil
	}
	return record
}

// extractSubject finds the category badge. The badge text always carries the
// word "Hero" ("AWS Serverless Hero", "AWS Container Hero", ...).
func (p *HeroParser) extractSubject(card *goquery.Selection) string {
	if subject := firstText(card, "div.m-category", "span.m-category", "div.m-card-badge"); subject != "" {
		return subject
	}

	subject := ""
	card.Find("span, div, p").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strings.TrimSpace(sel.Text())
		if strings.HasPrefix(text, "AWS ") && strings.HasSuffix(text, "Hero") && len(text) < 60 {
			subject = text
			return false
		}
		return true
	})

	return subject
}

func (p *HeroParser) extractProfileURL(card *goquery.Selection, pageURL string) string {
	href := ""
	card.Find("a[href]").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		value, _ := link.Attr("href")
		value = strings.TrimSpace(value)
		if value == "" || value == "#" || strings.HasPrefix(value, "javascript:") {
			return true
		}
		href = value
		return false
	})

	if href == "" {
		return ""
	}
	return resolveURL(pageURL, href)
}

// hasNextPage looks for an enabled "next" control in the pagination strip.
func (p *HeroParser) hasNextPage(doc *goquery.Document) bool {
	selectors := []string{
		"a[aria-label='Next']",
		"a.m-icon-angle-right",
		"button[aria-label='Next page']",
		"li.m-pagination-next a",
	}

	for _, selector := range selectors {
		found := false
		doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			if disabled, _ := sel.Attr("aria-disabled"); disabled == "true" {
				return true
			}
			if sel.HasClass("disabled") || sel.HasClass("m-disabled") {
				return true
			}
			found = true
			return false
		})
		if found {
			return true
		}
	}

	return false
}

func resolveURL(pageURL, href string) string {
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if parsed.IsAbs() {
		return parsed.String()
	}

	base, err := url.Parse(pageURL)
	if err != nil || !base.IsAbs() {
		return href
	}
	return base.ResolveReference(parsed).String()
}

func firstText(sel *goquery.Selection, selectors ...string) string {
	for _, selector := range selectors {
		if text := strings.TrimSpace(sel.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}
