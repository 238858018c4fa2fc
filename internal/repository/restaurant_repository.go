package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/table-reservation/internal/model"
)

// RestaurantRepo provides access to the restaurants table.
type RestaurantRepo struct {
	db *sql.DB
}

// NewRestaurantRepo constructs a RestaurantRepo with the given DB handle.
func NewRestaurantRepo(db *sql.DB) *RestaurantRepo {
	return &RestaurantRepo{db: db}
}

const restaurantColumns = `r.id, r.name, r.opening_time, r.closing_time, r.is_active, r.created_at, r.updated_at,
	(SELECT COUNT(*) FROM restaurant_tables t WHERE t.restaurant_id = r.id)`

func scanRestaurant(s scanner, r *model.Restaurant) error {
	return s.Scan(&r.ID, &r.Name, &r.OpeningTime, &r.ClosingTime, &r.IsActive, &r.CreatedAt, &r.UpdatedAt, &r.TotalTables)
}

// CreateRestaurant inserts a new restaurant.  The caller assigns ID and
// timestamps.
func (r *RestaurantRepo) CreateRestaurant(ctx context.Context, rest *model.Restaurant) error {
	const q = `INSERT INTO restaurants (id, name, opening_time, closing_time, is_active, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, rest.ID, rest.Name, rest.OpeningTime, rest.ClosingTime, rest.IsActive,
		rest.CreatedAt.UTC(), rest.UpdatedAt.UTC())
	return err
}

// GetRestaurant retrieves a restaurant by id together with its derived
// table count.  It returns ErrNotFound when no row matches.
func (r *RestaurantRepo) GetRestaurant(ctx context.Context, id string) (*model.Restaurant, error) {
	q := `SELECT ` + restaurantColumns + ` FROM restaurants r WHERE r.id = ?`
	var rest model.Restaurant
	if err := scanRestaurant(r.db.QueryRowContext(ctx, q, id), &rest); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rest, nil
}

// UpdateRestaurant overwrites the mutable restaurant fields.
func (r *RestaurantRepo) UpdateRestaurant(ctx context.Context, rest *model.Restaurant) error {
	const q = `UPDATE restaurants
	           SET name = ?, opening_time = ?, closing_time = ?, is_active = ?, updated_at = ?
	           WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, rest.Name, rest.OpeningTime, rest.ClosingTime, rest.IsActive, rest.UpdatedAt.UTC(), rest.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRestaurants returns every restaurant ordered by name.
func (r *RestaurantRepo) ListRestaurants(ctx context.Context) ([]model.Restaurant, error) {
	q := `SELECT ` + restaurantColumns + ` FROM restaurants r ORDER BY r.name, r.id`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Restaurant
	for rows.Next() {
		var rest model.Restaurant
		if err := scanRestaurant(rows, &rest); err != nil {
			return nil, err
		}
		out = append(out, rest)
	}
	return out, rows.Err()
}
