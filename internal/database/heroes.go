package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/stephenVertex/nova-act/internal/models"
)

// HeroRepository is the optional Postgres archive of discovered heroes. The
// JSON state file stays authoritative for dedup; the archive exists for
// downstream queries and the event outbox.
type HeroRepository struct {
	db *DB
}

func NewHeroRepository(db *DB) *HeroRepository {
	return &HeroRepository{db: db}
}

// ArchivedHero is a hero row with archive metadata.
type ArchivedHero struct {
	models.HeroRecord
	FirstSeenAt time.Time `json:"first_seen_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UpsertWithTx inserts or refreshes a hero row inside an existing transaction,
// keyed by profile URL.
func (r *HeroRepository) UpsertWithTx(ctx context.Context, tx pgx.Tx, record models.HeroRecord) error {
	query := `
		INSERT INTO hero (profile_url, name, subject, first_seen_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (profile_url) DO UPDATE
		SET name = EXCLUDED.name,
		    subject = EXCLUDED.subject,
		    updated_at = EXCLUDED.updated_at
	`

	if _, err := tx.Exec(ctx, query, record.ProfileURL, record.Name, record.Subject, time.Now()); err != nil {
		return fmt.Errorf("failed to upsert hero %s: %w", record.ProfileURL, err)
	}

	return nil
}

// List returns archived heroes ordered by name.
func (r *HeroRepository) List(ctx context.Context, limit int) ([]*ArchivedHero, error) {
	query := `
		SELECT profile_url, name, subject, first_seen_at, updated_at
		FROM hero
		ORDER BY name ASC
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list heroes: %w", err)
	}
	defer rows.Close()

	var heroes []*ArchivedHero
	for rows.Next() {
		hero := &ArchivedHero{}
		if err := rows.Scan(&hero.ProfileURL, &hero.Name, &hero.Subject, &hero.FirstSeenAt, &hero.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan hero row: %w", err)
		}
		heroes = append(heroes, hero)
	}

	return heroes, rows.Err()
}

// Count returns the number of archived heroes.
func (r *HeroRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM hero`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count heroes: %w", err)
	}
	return count, nil
}
