package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stephenVertex/nova-act/internal/database"
	"github.com/stephenVertex/nova-act/internal/models"
)

// EventTypeHeroDiscovered is emitted once per hero, the first time the
// scraper sees their profile URL.
const EventTypeHeroDiscovered = "HERO_DISCOVERED"

// HeroDiscoveredPayload is the event body written to the outbox and relayed
// to the Redis stream.
type HeroDiscoveredPayload struct {
	EventID    uuid.UUID `json:"event_id"`
	EventType  string    `json:"event_type"`
	Timestamp  time.Time `json:"timestamp"`
	Name       string    `json:"name"`
	ProfileURL string    `json:"profile_url"`
	Subject    string    `json:"subject"`
	Page       int       `json:"page"`
	Source     string    `json:"source"`
}

// Publisher archives newly-discovered heroes and records a discovery event
// in the same transaction, so the archive row and the outbox entry are
// committed or rolled back together.
type Publisher struct {
	db     *database.DB
	heroes *database.HeroRepository
	outbox *database.OutboxRepository
	logger *slog.Logger
}

func NewPublisher(db *database.DB, logger *slog.Logger) *Publisher {
	return &Publisher{
		db:     db,
		heroes: database.NewHeroRepository(db),
		outbox: database.NewOutboxRepository(db),
		logger: logger.With("component", "events"),
	}
}

// HeroDiscovered upserts the hero into the archive and enqueues a
// HERO_DISCOVERED outbox event within one transaction.
func (p *Publisher) HeroDiscovered(ctx context.Context, record models.HeroRecord, page int) error {
	payload := HeroDiscoveredPayload{
		EventID:    uuid.New(),
		EventType:  EventTypeHeroDiscovered,
		Timestamp:  time.Now().UTC(),
		Name:       record.Name,
		ProfileURL: record.ProfileURL,
		Subject:    record.Subject,
		Page:       page,
		Source:     "heroes-scraper",
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	err = p.db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := p.heroes.UpsertWithTx(ctx, tx, record); err != nil {
			return err
		}

		event := &database.OutboxEvent{
			ID:            payload.EventID,
			AggregateType: "hero",
			AggregateID:   record.ProfileURL,
			EventType:     EventTypeHeroDiscovered,
			Payload:       payloadJSON,
		}
		return p.outbox.InsertWithTx(ctx, tx, event)
	})
	if err != nil {
		return fmt.Errorf("failed to publish hero discovery: %w", err)
	}

	p.logger.Debug("hero discovery published",
		"name", record.Name,
		"profile_url", record.ProfileURL,
		"page", page)

	return nil
}
