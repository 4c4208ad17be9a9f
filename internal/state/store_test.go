package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stephenVertex/nova-act/internal/models"
)

func hero(name, slug, subject string) models.HeroRecord {
	return models.HeroRecord{
		Name:       name,
		ProfileURL: "https://aws.amazon.com/developer/community/heroes/" + slug + "/",
		Subject:    subject,
	}
}

func TestMergeAddsOnlyNewRecords(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "heroes.json"))
	require.NoError(t, err)

	a := hero("Alice", "alice", "AWS Serverless Hero")
	b := hero("Bob", "bob", "AWS Container Hero")
	c := hero("Carol", "carol", "AWS Machine Learning Hero")

	added := store.Merge([]models.HeroRecord{a, b})
	assert.Len(t, added, 2)
	assert.Equal(t, 2, store.Count())

	// Page overlap: prior state {A, B}, page {B, C} yields only C.
	added = store.Merge([]models.HeroRecord{b, c})
	require.Len(t, added, 1)
	assert.Equal(t, c.ProfileURL, added[0].ProfileURL)
	assert.Equal(t, 3, store.Count())
}

func TestMergeIsIdempotent(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "heroes.json"))
	require.NoError(t, err)

	page := []models.HeroRecord{
		hero("Alice", "alice", "AWS Serverless Hero"),
		hero("Bob", "bob", "AWS Container Hero"),
	}

	first := store.Merge(page)
	second := store.Merge(page)

	assert.Len(t, first, 2)
	assert.Empty(t, second)
	assert.Equal(t, 2, store.Count())
}

func TestMergeDeduplicatesWithinPage(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "heroes.json"))
	require.NoError(t, err)

	a := hero("Alice", "alice", "AWS Serverless Hero")
	added := store.Merge([]models.HeroRecord{a, a, a})

	assert.Len(t, added, 1)
	assert.Equal(t, 1, store.Count())
}

func TestMergeSkipsInvalidRecords(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "heroes.json"))
	require.NoError(t, err)

	added := store.Merge([]models.HeroRecord{
		{Name: "No URL", Subject: "AWS Container Hero"},
		{ProfileURL: "https://aws.amazon.com/developer/community/heroes/anon/", Subject: "AWS Container Hero"},
		hero("Alice", "alice", "AWS Serverless Hero"),
	})

	assert.Len(t, added, 1)
	assert.Equal(t, 1, store.Count())
}

func TestSaveAndReload(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "heroes.json")

	store, err := NewStore(filename)
	require.NoError(t, err)

	store.Merge([]models.HeroRecord{
		hero("Alice", "alice", "AWS Serverless Hero"),
		hero("Bob", "bob", "AWS Container Hero"),
	})
	require.NoError(t, store.Save())

	// A fresh process sees the saved ledger and skips known heroes.
	reloaded, err := NewStore(filename)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Count())
	assert.True(t, reloaded.Contains("https://aws.amazon.com/developer/community/heroes/alice/"))

	added := reloaded.Merge([]models.HeroRecord{
		hero("Alice", "alice", "AWS Serverless Hero"),
		hero("Bob", "bob", "AWS Container Hero"),
		hero("Carol", "carol", "AWS Machine Learning Hero"),
	})
	require.Len(t, added, 1)
	assert.Equal(t, "Carol", added[0].Name)
}

func TestSaveWritesTotalCount(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "heroes.json")

	store, err := NewStore(filename)
	require.NoError(t, err)
	store.Merge([]models.HeroRecord{
		hero("Alice", "alice", "AWS Serverless Hero"),
		hero("Bob", "bob", "AWS Container Hero"),
		hero("Carol", "carol", "AWS Machine Learning Hero"),
	})
	require.NoError(t, store.Save())

	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"total_count": 3`)
}

func TestNewStoreMissingFileStartsEmpty(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, store.Count())
}

func TestNewStoreCorruptFileFails(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "heroes.json")
	require.NoError(t, os.WriteFile(filename, []byte("{not json"), 0644))

	_, err := NewStore(filename)
	assert.Error(t, err)
}

func TestCategoryCounts(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "heroes.json"))
	require.NoError(t, err)

	store.Merge([]models.HeroRecord{
		hero("Alice", "alice", "AWS Serverless Hero"),
		hero("Bob", "bob", "AWS Serverless Hero"),
		hero("Carol", "carol", "AWS Container Hero"),
	})

	counts := store.CategoryCounts()
	assert.Equal(t, 2, counts["AWS Serverless Hero"])
	assert.Equal(t, 1, counts["AWS Container Hero"])
}

func TestHeroesSortedByName(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "heroes.json"))
	require.NoError(t, err)

	store.Merge([]models.HeroRecord{
		hero("Carol", "carol", "AWS Container Hero"),
		hero("Alice", "alice", "AWS Serverless Hero"),
		hero("Bob", "bob", "AWS Container Hero"),
	})

	heroes := store.Heroes()
	require.Len(t, heroes, 3)
	assert.Equal(t, "Alice", heroes[0].Name)
	assert.Equal(t, "Bob", heroes[1].Name)
	assert.Equal(t, "Carol", heroes[2].Name)
}
