package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/stephenVertex/nova-act/internal/models"
)

// Store is the persisted dedup ledger of all heroes seen across runs. It is
// keyed by profile URL; total_count always equals the number of entries.
type Store struct {
	mu          sync.RWMutex
	heroes      map[string]models.HeroRecord
	filename    string
	lastUpdated time.Time
}

// stateFile is the on-disk schema of state/heroes.json.
type stateFile struct {
	Heroes      map[string]models.HeroRecord `json:"heroes"`
	LastUpdated time.Time                    `json:"last_updated"`
	TotalCount  int                          `json:"total_count"`
}

// NewStore loads the state file if present; a missing file starts an empty
// ledger.
func NewStore(filename string) (*Store, error) {
	s := &Store{
		heroes:   make(map[string]models.HeroRecord),
		filename: filename,
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load state from %s: %w", filename, err)
	}

	return s, nil
}

// Merge adds every record whose profile URL is not yet in the ledger and
// returns the newly-added records in input order. Records missing required
// fields are skipped. Merging the same page twice is a no-op the second time.
func (s *Store) Merge(records []models.HeroRecord) []models.HeroRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added []models.HeroRecord
	for _, record := range records {
		record.Normalize()
		if !record.IsValid() {
			continue
		}
		if _, exists := s.heroes[record.Key()]; exists {
			continue
		}
		s.heroes[record.Key()] = record
		added = append(added, record)
	}

	if len(added) > 0 {
		s.lastUpdated = time.Now()
	}

	return added
}

// Contains reports whether a hero with the given profile URL is recorded.
func (s *Store) Contains(profileURL string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.heroes[profileURL]
	return exists
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.heroes)
}

func (s *Store) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}

// Heroes returns all recorded heroes sorted by name.
func (s *Store) Heroes() []models.HeroRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	heroes := make([]models.HeroRecord, 0, len(s.heroes))
	for _, hero := range s.heroes {
		heroes = append(heroes, hero)
	}
	sort.Slice(heroes, func(i, j int) bool {
		if heroes[i].Name == heroes[j].Name {
			return heroes[i].ProfileURL < heroes[j].ProfileURL
		}
		return heroes[i].Name < heroes[j].Name
	})

	return heroes
}

// CategoryCounts returns the number of heroes per subject.
func (s *Store) CategoryCounts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, hero := range s.heroes {
		counts[hero.Subject]++
	}
	return counts
}

// Save persists the ledger. The write goes through a temp file and rename so a
// crash mid-save never leaves a truncated state file.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastUpdated.IsZero() {
		s.lastUpdated = time.Now()
	}

	doc := stateFile{
		Heroes:      s.heroes,
		LastUpdated: s.lastUpdated,
		TotalCount:  len(s.heroes),
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if dir := filepath.Dir(s.filename); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	tmpFile := s.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	if err := os.Rename(tmpFile, s.filename); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.filename)
	if err != nil {
		return err
	}

	var doc stateFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("state file is not valid JSON: %w", err)
	}

	if doc.Heroes != nil {
		s.heroes = doc.Heroes
	}
	s.lastUpdated = doc.LastUpdated

	return nil
}
