package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
)

// PropertyExists checks the location key used for uniqueness.
func (s *Store) PropertyExists(ctx context.Context, p models.NormalizedProperty) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM properties
			WHERE normalized_address = $1 AND city = $2 AND state = $3 AND zip_code = $4
		)
	`, p.NormalizedAddress, p.City, p.State, p.ZipCode).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check property exists: %w", err)
	}
	return exists, nil
}

// InsertProperty stores a normalized property. It returns ErrPropertyExists
// when the location key is already taken, including under a concurrent insert.
// The record id is kept for reference only; rows are keyed by location.
func (s *Store) InsertProperty(ctx context.Context, p models.NormalizedProperty) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO properties (id, source, normalized_address, city, state, zip_code, property_type,
			listing_price, sqft, price_per_sqft, confidence, duplicate_group)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (normalized_address, city, state, zip_code) DO NOTHING
	`, p.ID, p.Source, p.NormalizedAddress, p.City, p.State, p.ZipCode, p.PropertyType,
		p.ListingPrice, p.Sqft, p.PricePerSqft, p.Confidence, emptyToNil(p.DuplicateGroup))
	if err != nil {
		return fmt.Errorf("insert property: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("insert %s: %w", p.NormalizedAddress, ErrPropertyExists)
	}
	return nil
}

// ListProperties returns stored properties in a market, most recent first.
// An empty propertyType matches every type; limit <= 0 means no limit.
func (s *Store) ListProperties(ctx context.Context, city, state, propertyType string, limit int) ([]models.NormalizedProperty, error) {
	query := `
		SELECT id, source, normalized_address, city, state, zip_code, property_type,
			listing_price, sqft, price_per_sqft, confidence, COALESCE(duplicate_group, '')
		FROM properties
		WHERE LOWER(city) = LOWER($1) AND state = $2 AND ($3 = '' OR property_type = $3)
		ORDER BY created_at DESC, pk DESC`
	args := []any{strings.TrimSpace(city), state, propertyType}
	if limit > 0 {
		query += " LIMIT $4"
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.NormalizedProperty, error) {
		var p models.NormalizedProperty
		err := row.Scan(&p.ID, &p.Source, &p.NormalizedAddress, &p.City, &p.State, &p.ZipCode, &p.PropertyType,
			&p.ListingPrice, &p.Sqft, &p.PricePerSqft, &p.Confidence, &p.DuplicateGroup)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan properties: %w", err)
	}
	return out, nil
}

func emptyToNil(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
