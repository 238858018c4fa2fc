package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/table-reservation/internal/model"
)

// WaitlistRepo provides access to the waitlist_entries table.  The seq
// column is AUTO_INCREMENT and gives entries created in the same
// microsecond a stable FIFO order.
type WaitlistRepo struct {
	db *sql.DB
}

// NewWaitlistRepo returns a new WaitlistRepo bound to the provided database.
func NewWaitlistRepo(db *sql.DB) *WaitlistRepo { return &WaitlistRepo{db: db} }

const waitlistColumns = `seq, id, restaurant_id, party_size, requested_date, preferred_start_time, preferred_end_time,
	duration_minutes, status, customer_name, customer_email, customer_phone, notification_count, notified_at,
	reservation_id, created_at, updated_at`

func scanWaitlistEntry(s scanner, e *model.WaitlistEntry) error {
	var (
		date, notifiedAt sql.NullTime
		reservationID    sql.NullString
		status           string
	)
	if err := s.Scan(&e.Seq, &e.ID, &e.RestaurantID, &e.PartySize, &date, &e.PreferredStartTime, &e.PreferredEndTime,
		&e.DurationMinutes, &status, &e.CustomerName, &e.CustomerEmail, &e.CustomerPhone, &e.NotificationCount, &notifiedAt,
		&reservationID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return err
	}
	e.Date = dateString(date.Time)
	e.Status = model.WaitlistStatus(status)
	e.NotifiedAt = timePtr(notifiedAt)
	e.ReservationID = stringPtr(reservationID)
	return nil
}

func (r *WaitlistRepo) queryEntries(ctx context.Context, q string, args ...any) ([]model.WaitlistEntry, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.WaitlistEntry
	for rows.Next() {
		var e model.WaitlistEntry
		if err := scanWaitlistEntry(rows, &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// InsertWaitlistEntry stores e and fills in its sequence number.
func (r *WaitlistRepo) InsertWaitlistEntry(ctx context.Context, e *model.WaitlistEntry) error {
	const q = `INSERT INTO waitlist_entries (id, restaurant_id, party_size, requested_date, preferred_start_time, preferred_end_time,
	               duration_minutes, status, customer_name, customer_email, customer_phone, notification_count, notified_at,
	               reservation_id, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, e.ID, e.RestaurantID, e.PartySize, e.Date, e.PreferredStartTime, e.PreferredEndTime,
		e.DurationMinutes, string(e.Status), e.CustomerName, e.CustomerEmail, e.CustomerPhone, e.NotificationCount,
		nullTime(e.NotifiedAt), nullString(e.ReservationID), e.CreatedAt.UTC(), e.UpdatedAt.UTC())
	if err != nil {
		return err
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.Seq = seq
	return nil
}

// GetWaitlistEntry retrieves an entry by id.
func (r *WaitlistRepo) GetWaitlistEntry(ctx context.Context, id string) (*model.WaitlistEntry, error) {
	const q = `SELECT ` + waitlistColumns + ` FROM waitlist_entries WHERE id = ?`
	var e model.WaitlistEntry
	if err := scanWaitlistEntry(r.db.QueryRowContext(ctx, q, id), &e); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// UpdateWaitlistEntry writes e only while the stored status is expected.
// The status predicate makes each transition exactly-once even if two
// promotions race for the same entry.
func (r *WaitlistRepo) UpdateWaitlistEntry(ctx context.Context, e *model.WaitlistEntry, expected model.WaitlistStatus) error {
	const q = `UPDATE waitlist_entries
	           SET status = ?, notification_count = ?, notified_at = ?, reservation_id = ?, updated_at = ?
	           WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q, string(e.Status), e.NotificationCount, nullTime(e.NotifiedAt), nullString(e.ReservationID),
		e.UpdatedAt.UTC(), e.ID, string(expected))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStaleState
	}
	return nil
}

// ListWaiting returns WAITING entries for the day, oldest first.
func (r *WaitlistRepo) ListWaiting(ctx context.Context, restaurantID, date string) ([]model.WaitlistEntry, error) {
	const q = `SELECT ` + waitlistColumns + ` FROM waitlist_entries
	           WHERE restaurant_id = ? AND requested_date = ? AND status = 'WAITING'
	           ORDER BY created_at, seq`
	return r.queryEntries(ctx, q, restaurantID, date)
}

// ListWaitlist returns all entries for the day, oldest first.
func (r *WaitlistRepo) ListWaitlist(ctx context.Context, restaurantID, date string) ([]model.WaitlistEntry, error) {
	const q = `SELECT ` + waitlistColumns + ` FROM waitlist_entries
	           WHERE restaurant_id = ? AND requested_date = ?
	           ORDER BY created_at, seq`
	return r.queryEntries(ctx, q, restaurantID, date)
}
