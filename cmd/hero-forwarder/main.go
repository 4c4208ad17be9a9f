package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/stephenVertex/nova-act/internal/config"
	"github.com/stephenVertex/nova-act/internal/models"
	"github.com/stephenVertex/nova-act/internal/queue"
	"github.com/stephenVertex/nova-act/internal/state"
	"github.com/stephenVertex/nova-act/pkg/logger"
)

// Forwards scraped heroes to a downstream webhook, one POST per hero, with
// its own processed-set state so interrupted runs resume where they left off.

const (
	singleModeDelay   = 500 * time.Millisecond
	allModeDelayMin   = 90 * time.Second
	allModeDelayMax   = 120 * time.Second
	maxForwardRetries = 2
)

func main() {
	var (
		all       = flag.Bool("all", false, "Forward every unprocessed hero (long delays between requests)")
		input     = flag.String("input", "./state/heroes.json", "Scraped heroes state file")
		jsonlFile = flag.String("jsonl", "", "Read heroes from a JSONL records file instead of the state file")
		stateFile = flag.String("state", "./state/process_heroes.json", "Processed-set state file")
		endpoint  = flag.String("endpoint", os.Getenv("FORWARD_ENDPOINT"), "Webhook URL to POST heroes to")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	if *endpoint == "" {
		fmt.Fprintln(os.Stderr, "Error: no endpoint configured. Use -endpoint or set FORWARD_ENDPOINT.")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, progress is saved")
		cancel()
	}()

	heroes, err := loadHeroes(*input, *jsonlFile)
	if err != nil {
		logger.Error("Failed to load heroes", "error", err)
		os.Exit(1)
	}

	processed, err := loadProcessed(*stateFile)
	if err != nil {
		logger.Warn("Could not load processed state, starting fresh", "error", err)
		processed = make(map[string]bool)
	}

	taskQueue := queue.NewInMemoryQueue()
	defer taskQueue.Close()

	queued := 0
	for i, hero := range heroes {
		if processed[heroID(hero)] {
			continue
		}
		taskQueue.Push(&queue.Task{
			ID:         fmt.Sprintf("task-%d", i),
			Name:       hero.Name,
			ProfileURL: hero.ProfileURL,
			Subject:    hero.Subject,
			CreatedAt:  time.Now(),
		})
		queued++
	}

	logger.Info("Starting hero forwarder",
		"total", len(heroes),
		"already_processed", len(processed),
		"remaining", queued,
		"all_mode", *all)

	if queued == 0 {
		fmt.Println("All heroes have already been forwarded.")
		return
	}

	client := &http.Client{Timeout: 30 * time.Second}

	successful, failed := 0, 0
	first := true

	for {
		select {
		case <-ctx.Done():
			logger.Info("Context cancelled, exiting")
			printSummary(*all, successful, failed)
			return
		default:
		}

		if taskQueue.Size() == 0 {
			break
		}

		task, err := taskQueue.Pop(ctx)
		if err != nil {
			if err == queue.ErrQueueEmpty || err == queue.ErrQueueClosed {
				break
			}
			logger.Error("Failed to get task from queue", "error", err)
			continue
		}

		if !first {
			if err := sleepBetween(ctx, *all); err != nil {
				printSummary(*all, successful, failed)
				return
			}
		}
		first = false

		logger.Info("Forwarding hero", "name", task.Name)

		if err := forwardHero(ctx, client, *endpoint, task); err != nil {
			logger.Error("Failed to forward hero", "name", task.Name, "error", err)
			failed++

			if !*all {
				printSummary(*all, successful, failed)
				os.Exit(1)
			}
			if task.Retries < maxForwardRetries {
				task.Retries++
				taskQueue.Push(task)
				logger.Info("Retrying hero later", "name", task.Name, "retry", task.Retries)
			}
			continue
		}

		successful++
		processed[heroID(models.HeroRecord{Name: task.Name, ProfileURL: task.ProfileURL})] = true
		if err := saveProcessed(*stateFile, processed); err != nil {
			logger.Error("Failed to save processed state", "error", err)
			os.Exit(1)
		}

		if !*all {
			fmt.Println("Successfully forwarded one hero.")
			break
		}
	}

	printSummary(*all, successful, failed)
}

// loadHeroes reads the scraped hero set either from the scraper state file
// or, when jsonlFile is set, from a records file produced by a run.
func loadHeroes(stateFile, jsonlFile string) ([]models.HeroRecord, error) {
	if jsonlFile == "" {
		store, err := state.NewStore(stateFile)
		if err != nil {
			return nil, err
		}
		return store.Heroes(), nil
	}

	f, err := os.Open(jsonlFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open records file: %w", err)
	}
	defer f.Close()

	var heroes []models.HeroRecord
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record models.HeroRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, fmt.Errorf("invalid record line: %w", err)
		}
		record.Normalize()
		if !record.IsValid() || seen[record.Key()] {
			continue
		}
		seen[record.Key()] = true
		heroes = append(heroes, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read records file: %w", err)
	}

	return heroes, nil
}

// heroID keys the processed set by name, the identity the downstream
// webhook cares about.
func heroID(hero models.HeroRecord) string {
	first, last := splitName(hero.Name)
	return first + "|" + last
}

// splitName splits a display name into first and last name; everything after
// the first word counts as the last name.
func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

type forwardPayload struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	CompanyName string `json:"company_name"`
}

func forwardHero(ctx context.Context, client *http.Client, endpoint string, task *queue.Task) error {
	first, last := splitName(task.Name)
	if first == "" {
		return fmt.Errorf("hero has no usable name: %q", task.Name)
	}

	body, err := json.Marshal(forwardPayload{
		FirstName:   first,
		LastName:    last,
		CompanyName: "AWS Hero",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return nil
}

type processedState struct {
	ProcessedHeroes []string `json:"processed_heroes"`
	LastUpdated     string   `json:"last_updated"`
}

func loadProcessed(path string) (map[string]bool, error) {
	processed := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return processed, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var st processedState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}

	for _, id := range st.ProcessedHeroes {
		processed[id] = true
	}
	return processed, nil
}

// saveProcessed writes the processed set atomically so an interrupt never
// leaves a half-written state file.
func saveProcessed(path string, processed map[string]bool) error {
	ids := make([]string, 0, len(processed))
	for id := range processed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	data, err := json.MarshalIndent(processedState{
		ProcessedHeroes: ids,
		LastUpdated:     time.Now().Format("2006-01-02 15:04:05"),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}

// sleepBetween pauses between requests: short in single mode, 90-120s random
// in all mode to stay polite to the webhook.
func sleepBetween(ctx context.Context, all bool) error {
	delay := singleModeDelay
	if all {
		delay = allModeDelayMin + time.Duration(rand.Int63n(int64(allModeDelayMax-allModeDelayMin)))
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func printSummary(all bool, successful, failed int) {
	mode := "Single Hero"
	if all {
		mode = "All Heroes"
	}
	fmt.Printf("%s Run Summary:\n", mode)
	fmt.Printf("  Successful requests: %d\n", successful)
	fmt.Printf("  Failed requests: %d\n", failed)
}
