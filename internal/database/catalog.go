package database

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/benvon/wte-api/internal/models"
	"github.com/benvon/wte-api/internal/stats"
)

const nameCacheSize = 2048

// NormalizeName trims a food or tag name and enforces the length limit
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > stats.MaxTagNameLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidName, stats.MaxTagNameLength)
	}
	return name, nil
}

// FoodRepository handles food catalog operations
type FoodRepository struct {
	db    *DB
	cache *lru.Cache[string, int32]
}

// NewFoodRepository creates a new food repository
func NewFoodRepository(db *DB) *FoodRepository {
	// lru.New only fails for a non-positive size
	cache, _ := lru.New[string, int32](nameCacheSize)
	return &FoodRepository{db: db, cache: cache}
}

// Upsert returns the id of the named food, creating it when missing
func (r *FoodRepository) Upsert(ctx context.Context, name string) (int32, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return 0, err
	}
	if id, ok := r.cache.Get(name); ok {
		return id, nil
	}

	query := `
		INSERT INTO foods (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING food_id
	`

	var id int32
	if err := r.db.QueryRowContext(ctx, query, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to upsert food: %w", err)
	}
	r.cache.Add(name, id)

	return id, nil
}

// Search lists foods whose name contains the query, for autocompletion
func (r *FoodRepository) Search(ctx context.Context, query string, limit int) ([]models.Food, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT food_id, name FROM foods
		WHERE name ILIKE '%' || $1 || '%'
		ORDER BY name
		LIMIT $2
	`, strings.TrimSpace(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search foods: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var foods []models.Food
	for rows.Next() {
		var f models.Food
		if err := rows.Scan(&f.ID, &f.Name); err != nil {
			return nil, fmt.Errorf("failed to scan food: %w", err)
		}
		foods = append(foods, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating foods: %w", err)
	}

	return foods, nil
}

// List returns the whole food catalog ordered by id
func (r *FoodRepository) List(ctx context.Context) ([]models.Food, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT food_id, name FROM foods ORDER BY food_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list foods: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var foods []models.Food
	for rows.Next() {
		var f models.Food
		if err := rows.Scan(&f.ID, &f.Name); err != nil {
			return nil, fmt.Errorf("failed to scan food: %w", err)
		}
		foods = append(foods, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating foods: %w", err)
	}

	return foods, nil
}

// TagRepository handles tag catalog operations
type TagRepository struct {
	db    *DB
	cache *lru.Cache[string, int32]
}

// NewTagRepository creates a new tag repository
func NewTagRepository(db *DB) *TagRepository {
	cache, _ := lru.New[string, int32](nameCacheSize)
	return &TagRepository{db: db, cache: cache}
}

// Upsert returns the id of the named tag, creating it when missing
func (r *TagRepository) Upsert(ctx context.Context, name string) (int32, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return 0, err
	}
	if id, ok := r.cache.Get(name); ok {
		return id, nil
	}

	query := `
		INSERT INTO tags (tag_name) VALUES ($1)
		ON CONFLICT (tag_name) DO UPDATE SET tag_name = EXCLUDED.tag_name
		RETURNING tag_id
	`

	var id int32
	if err := r.db.QueryRowContext(ctx, query, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to upsert tag: %w", err)
	}
	r.cache.Add(name, id)

	return id, nil
}

// List returns every known tag ordered by name
func (r *TagRepository) List(ctx context.Context) ([]models.Tag, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT tag_id, tag_name FROM tags ORDER BY tag_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tags []models.Tag
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tags: %w", err)
	}

	return tags, nil
}
