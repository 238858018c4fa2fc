package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/table-reservation/internal/model"
)

// ReservationRepo provides access to the reservations table.  Every write
// that can create a double booking runs in a transaction that first locks
// the table's restaurant_tables row (SELECT ... FOR UPDATE), then repeats
// the overlap query and only then writes.  Two application instances
// booking the same table therefore serialize on that row lock.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, restaurant_id, table_id, party_size, reservation_date, start_time, end_time,
	start_minute, end_minute, duration_minutes, status, customer_name, customer_email, customer_phone,
	special_requests, series_id, confirmed_at, seated_at, completed_at, cancelled_at, cancellation_reason,
	created_at, updated_at`

// activeStatusList is the SQL literal for model.ActiveReservationStatuses.
const activeStatusList = `('PENDING','CONFIRMED','SEATED')`

func scanReservation(s scanner, r *model.Reservation) error {
	var (
		date, confirmedAt, seatedAt, completedAt, cAt sql.NullTime
		seriesID, reason                              sql.NullString
		status                                        string
	)
	if err := s.Scan(&r.ID, &r.RestaurantID, &r.TableID, &r.PartySize, &date, &r.StartTime, &r.EndTime,
		&r.StartMinute, &r.EndMinute, &r.DurationMinutes, &status, &r.CustomerName, &r.CustomerEmail, &r.CustomerPhone,
		&r.SpecialRequests, &seriesID, &confirmedAt, &seatedAt, &completedAt, &cAt, &reason,
		&r.CreatedAt, &r.UpdatedAt); err != nil {
		return err
	}
	r.Date = dateString(date.Time)
	r.Status = model.ReservationStatus(status)
	r.SeriesID = stringPtr(seriesID)
	r.ConfirmedAt = timePtr(confirmedAt)
	r.SeatedAt = timePtr(seatedAt)
	r.CompletedAt = timePtr(completedAt)
	r.CancelledAt = timePtr(cAt)
	r.CancellationReason = stringPtr(reason)
	return nil
}

func (r *ReservationRepo) queryReservations(ctx context.Context, q string, args ...any) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		var res model.Reservation
		if err := scanReservation(rows, &res); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// lockTableTx takes the row lock that serializes bookings of one table.
func lockTableTx(ctx context.Context, tx *sql.Tx, tableID string) error {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM restaurant_tables WHERE id = ? FOR UPDATE`, tableID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func hasOverlapTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) (bool, error) {
	const q = `SELECT COUNT(*) FROM reservations
	           WHERE table_id = ? AND reservation_date = ? AND status IN ` + activeStatusList + `
	             AND id <> ? AND start_minute < ? AND ? < end_minute`
	var n int
	if err := tx.QueryRowContext(ctx, q, res.TableID, res.Date, res.ID, res.EndMinute, res.StartMinute).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// InsertReservation stores res unless it would overlap an active booking
// of the same table, in which case ErrOverlap is returned.
func (r *ReservationRepo) InsertReservation(ctx context.Context, res *model.Reservation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer rollback(tx, &committed)

	if err := lockTableTx(ctx, tx, res.TableID); err != nil {
		return err
	}
	if res.Status.IsActive() {
		overlap, err := hasOverlapTx(ctx, tx, res)
		if err != nil {
			return err
		}
		if overlap {
			return ErrOverlap
		}
	}
	const q = `INSERT INTO reservations (id, restaurant_id, table_id, party_size, reservation_date, start_time, end_time,
	               start_minute, end_minute, duration_minutes, status, customer_name, customer_email, customer_phone,
	               special_requests, series_id, confirmed_at, seated_at, completed_at, cancelled_at, cancellation_reason,
	               created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q, res.ID, res.RestaurantID, res.TableID, res.PartySize, res.Date, res.StartTime, res.EndTime,
		res.StartMinute, res.EndMinute, res.DurationMinutes, string(res.Status), res.CustomerName, res.CustomerEmail, res.CustomerPhone,
		res.SpecialRequests, nullString(res.SeriesID), nullTime(res.ConfirmedAt), nullTime(res.SeatedAt), nullTime(res.CompletedAt),
		nullTime(res.CancelledAt), nullString(res.CancellationReason), res.CreatedAt.UTC(), res.UpdatedAt.UTC()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// GetReservation retrieves a reservation by id.
func (r *ReservationRepo) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	var res model.Reservation
	if err := scanReservation(r.db.QueryRowContext(ctx, q, id), &res); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &res, nil
}

// UpdateReservation writes res if the stored status is still expected.
// Active reservations are re-checked for overlap against every other
// booking of the (possibly new) table and date inside the same
// transaction.
func (r *ReservationRepo) UpdateReservation(ctx context.Context, res *model.Reservation, expected model.ReservationStatus) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer rollback(tx, &committed)

	if res.Status.IsActive() {
		if err := lockTableTx(ctx, tx, res.TableID); err != nil {
			return err
		}
		overlap, err := hasOverlapTx(ctx, tx, res)
		if err != nil {
			return err
		}
		if overlap {
			return ErrOverlap
		}
	}
	const q = `UPDATE reservations
	           SET table_id = ?, party_size = ?, reservation_date = ?, start_time = ?, end_time = ?, start_minute = ?,
	               end_minute = ?, duration_minutes = ?, status = ?, customer_name = ?, customer_email = ?, customer_phone = ?,
	               special_requests = ?, series_id = ?, confirmed_at = ?, seated_at = ?, completed_at = ?, cancelled_at = ?,
	               cancellation_reason = ?, updated_at = ?
	           WHERE id = ? AND status = ?`
	result, err := tx.ExecContext(ctx, q, res.TableID, res.PartySize, res.Date, res.StartTime, res.EndTime, res.StartMinute,
		res.EndMinute, res.DurationMinutes, string(res.Status), res.CustomerName, res.CustomerEmail, res.CustomerPhone,
		res.SpecialRequests, nullString(res.SeriesID), nullTime(res.ConfirmedAt), nullTime(res.SeatedAt), nullTime(res.CompletedAt),
		nullTime(res.CancelledAt), nullString(res.CancellationReason), res.UpdatedAt.UTC(), res.ID, string(expected))
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrStaleState
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// FindOverlapping returns active bookings of the table on date that
// intersect [startMinute, endMinute), ignoring excludeID.
func (r *ReservationRepo) FindOverlapping(ctx context.Context, tableID, date string, startMinute, endMinute int, excludeID string) ([]model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations
	           WHERE table_id = ? AND reservation_date = ? AND status IN ` + activeStatusList + `
	             AND id <> ? AND start_minute < ? AND ? < end_minute
	           ORDER BY start_minute`
	return r.queryReservations(ctx, q, tableID, date, excludeID, endMinute, startMinute)
}

// ListActiveByRestaurantAndDate returns the bookings that currently hold a
// table on the given service day.
func (r *ReservationRepo) ListActiveByRestaurantAndDate(ctx context.Context, restaurantID, date string) ([]model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations
	           WHERE restaurant_id = ? AND reservation_date = ? AND status IN ` + activeStatusList + `
	           ORDER BY start_minute, id`
	return r.queryReservations(ctx, q, restaurantID, date)
}

// ListByRestaurantAndDate returns every booking of the service day.
func (r *ReservationRepo) ListByRestaurantAndDate(ctx context.Context, restaurantID, date string) ([]model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations
	           WHERE restaurant_id = ? AND reservation_date = ?
	           ORDER BY start_minute, id`
	return r.queryReservations(ctx, q, restaurantID, date)
}

// ListActiveBySeries returns the active bookings a series materialized on
// or after fromDate.
func (r *ReservationRepo) ListActiveBySeries(ctx context.Context, seriesID, fromDate string) ([]model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations
	           WHERE series_id = ? AND reservation_date >= ? AND status IN ` + activeStatusList + `
	           ORDER BY reservation_date, start_minute`
	return r.queryReservations(ctx, q, seriesID, fromDate)
}
