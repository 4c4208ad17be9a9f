package models

import (
	"strings"
)

// HeroRecord is a single AWS Community Heroes listing entry. Identity is the
// profile URL; records are immutable once written.
type HeroRecord struct {
	Name       string `json:"name"`
	ProfileURL string `json:"profile_url"`
	Subject    string `json:"subject"`
}

// PageResult holds what one listing page yielded. It is produced per page and
// consumed immediately.
type PageResult struct {
	Records     []HeroRecord `json:"records"`
	HasNextPage bool         `json:"has_next_page"`
}

// Key returns the dedup key for the record.
func (h *HeroRecord) Key() string {
	return h.ProfileURL
}

// Normalize trims surrounding whitespace from all fields.
func (h *HeroRecord) Normalize() {
	h.Name = strings.TrimSpace(h.Name)
	h.ProfileURL = strings.TrimSpace(h.ProfileURL)
	h.Subject = strings.TrimSpace(h.Subject)
}

func (h *HeroRecord) Validate() []string {
	var errors []string

	if h.Name == "" {
		errors = append(errors, "name is required")
	}

	if h.ProfileURL == "" {
		errors = append(errors, "profile_url is required")
	} else if !strings.HasPrefix(h.ProfileURL, "http://") && !strings.HasPrefix(h.ProfileURL, "https://") {
		errors = append(errors, "profile_url must be an absolute URL")
	}

	if h.Subject == "" {
		errors = append(errors, "subject is required")
	}

	return errors
}

// IsValid reports whether the record carries the three required fields.
func (h *HeroRecord) IsValid() bool {
	return len(h.Validate()) == 0
}
