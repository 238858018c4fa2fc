package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/table-reservation/internal/model"
)

// TableRepo provides access to the restaurant_tables table.  Rows are
// removed together with their restaurant (ON DELETE CASCADE).
type TableRepo struct {
	db *sql.DB
}

// NewTableRepo constructs a TableRepo with the given DB handle.
func NewTableRepo(db *sql.DB) *TableRepo {
	return &TableRepo{db: db}
}

const tableColumns = `id, restaurant_id, table_number, capacity, min_capacity, location, is_active, created_at, updated_at`

func scanTable(s scanner, t *model.Table) error {
	return s.Scan(&t.ID, &t.RestaurantID, &t.TableNumber, &t.Capacity, &t.MinCapacity, &t.Location, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
}

func (r *TableRepo) queryTables(ctx context.Context, q string, args ...any) ([]model.Table, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Table
	for rows.Next() {
		var t model.Table
		if err := scanTable(rows, &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateTable inserts a table.  A repeated table number within the same
// restaurant yields ErrDuplicate.
func (r *TableRepo) CreateTable(ctx context.Context, t *model.Table) error {
	const q = `INSERT INTO restaurant_tables (id, restaurant_id, table_number, capacity, min_capacity, location, is_active, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, t.ID, t.RestaurantID, t.TableNumber, t.Capacity, t.MinCapacity, t.Location, t.IsActive,
		t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// GetTable retrieves a table by id.
func (r *TableRepo) GetTable(ctx context.Context, id string) (*model.Table, error) {
	const q = `SELECT ` + tableColumns + ` FROM restaurant_tables WHERE id = ?`
	var t model.Table
	if err := scanTable(r.db.QueryRowContext(ctx, q, id), &t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// UpdateTable overwrites the mutable table fields.
func (r *TableRepo) UpdateTable(ctx context.Context, t *model.Table) error {
	const q = `UPDATE restaurant_tables
	           SET table_number = ?, capacity = ?, min_capacity = ?, location = ?, is_active = ?, updated_at = ?
	           WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, t.TableNumber, t.Capacity, t.MinCapacity, t.Location, t.IsActive, t.UpdatedAt.UTC(), t.ID)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTable removes a table.
func (r *TableRepo) DeleteTable(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM restaurant_tables WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTables returns the restaurant's tables ordered by table number.
func (r *TableRepo) ListTables(ctx context.Context, restaurantID string, activeOnly bool) ([]model.Table, error) {
	q := `SELECT ` + tableColumns + ` FROM restaurant_tables WHERE restaurant_id = ?`
	if activeOnly {
		q += ` AND is_active = 1`
	}
	q += ` ORDER BY table_number`
	return r.queryTables(ctx, q, restaurantID)
}

// FindEligibleTables returns the active tables that can seat partySize,
// smallest capacity first.  Equal capacities are ordered by table number
// so the best-fit choice is deterministic.
func (r *TableRepo) FindEligibleTables(ctx context.Context, restaurantID string, partySize int) ([]model.Table, error) {
	const q = `SELECT ` + tableColumns + `
	           FROM restaurant_tables
	           WHERE restaurant_id = ? AND is_active = 1 AND min_capacity <= ? AND capacity >= ?
	           ORDER BY capacity, table_number`
	return r.queryTables(ctx, q, restaurantID, partySize, partySize)
}

// CountTables returns how many tables the restaurant owns.
func (r *TableRepo) CountTables(ctx context.Context, restaurantID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM restaurant_tables WHERE restaurant_id = ?`, restaurantID).Scan(&n)
	return n, err
}
