package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/stephenVertex/nova-act/internal/models"
)

// Writer owns the two run-scoped files: the JSONL stream of newly-discovered
// heroes and the human-readable debug summary. Records are appended page by
// page and synced so a crash keeps everything written so far.
type Writer struct {
	recordsPath string
	debugPath   string
	records     *os.File
	debug       *os.File
}

// Summary is the end-of-run statistics block for the debug file.
type Summary struct {
	Mode           string
	PagesProcessed int
	NewHeroes      int
	TotalHeroes    int
	NewBySubject   map[string]int
	TotalBySubject map[string]int
}

// NewWriter creates the output directory and opens the run files, named after
// the run's start time (hero-{HHMMSS}.jsonl and hero-{HHMMSS}_debug.txt).
func NewWriter(dir string, start time.Time) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	stamp := start.Format("150405")
	w := &Writer{
		recordsPath: filepath.Join(dir, fmt.Sprintf("hero-%s.jsonl", stamp)),
		debugPath:   filepath.Join(dir, fmt.Sprintf("hero-%s_debug.txt", stamp)),
	}

	records, err := os.OpenFile(w.recordsPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}

	debug, err := os.OpenFile(w.debugPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		records.Close()
		return nil, fmt.Errorf("failed to open debug file: %w", err)
	}

	w.records = records
	w.debug = debug
	return w, nil
}

// WriteHeader writes the debug file preamble.
func (w *Writer) WriteHeader(mode string, knownHeroes int) error {
	header := fmt.Sprintf("AWS Heroes Scraping Debug Info\nTimestamp: %s\nMode: %s\nHeroes in state at start: %d\n\n",
		time.Now().Format(time.RFC3339), mode, knownHeroes)
	return w.writeDebug(header)
}

// AppendRecords writes one JSON object per newly-added hero.
func (w *Writer) AppendRecords(records []models.HeroRecord) error {
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal hero record: %w", err)
		}
		if _, err := w.records.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("failed to append to output file: %w", err)
		}
	}

	if err := w.records.Sync(); err != nil {
		return fmt.Errorf("failed to sync output file: %w", err)
	}
	return nil
}

// PageStats records one page's outcome in the debug file.
func (w *Writer) PageStats(page, newCount, duplicateCount, totalInState int, hasNext bool) error {
	line := fmt.Sprintf("Page %d: %d new, %d duplicate, total in state: %d, next page: %t\n",
		page, newCount, duplicateCount, totalInState, hasNext)
	return w.writeDebug(line)
}

// PageError records a recovered per-page failure in the debug file.
func (w *Writer) PageError(page int, err error) error {
	return w.writeDebug(fmt.Sprintf("Page %d: extraction failed, treated as empty: %v\n", page, err))
}

// WriteSummary appends the end-of-run totals and the per-category breakdown.
func (w *Writer) WriteSummary(s Summary) error {
	text := fmt.Sprintf("\n=== Scraping Complete ===\nMode: %s\nPages processed: %d\nNew heroes this session: %d\nTotal heroes in state: %d\n",
		s.Mode, s.PagesProcessed, s.NewHeroes, s.TotalHeroes)

	text += "\nHero categories in state:\n"
	text += formatCounts(s.TotalBySubject)

	text += "\nNew hero categories this session:\n"
	text += formatCounts(s.NewBySubject)

	return w.writeDebug(text)
}

func (w *Writer) RecordsPath() string { return w.recordsPath }
func (w *Writer) DebugPath() string   { return w.debugPath }

func (w *Writer) Close() error {
	var errs []error

	if w.records != nil {
		if err := w.records.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close output file: %w", err))
		}
	}
	if w.debug != nil {
		if err := w.debug.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close debug file: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}

func (w *Writer) writeDebug(text string) error {
	if _, err := w.debug.WriteString(text); err != nil {
		return fmt.Errorf("failed to write debug file: %w", err)
	}
	if err := w.debug.Sync(); err != nil {
		return fmt.Errorf("failed to sync debug file: %w", err)
	}
	return nil
}

func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "  (none)\n"
	}

	subjects := make([]string, 0, len(counts))
	for subject := range counts {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)

	text := ""
	for _, subject := range subjects {
		text += fmt.Sprintf("  %s: %d\n", subject, counts[subject])
	}
	return text
}
