package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/table-reservation/internal/model"
)

// SeriesRepo manages persistence for recurring series.
type SeriesRepo struct {
	db *sql.DB
}

// NewSeriesRepo constructs a SeriesRepo with the given DB handle.
func NewSeriesRepo(db *sql.DB) *SeriesRepo {
	return &SeriesRepo{db: db}
}

const seriesColumns = `id, restaurant_id, table_id, party_size, start_time, duration_minutes, pattern, day_of_week,
	day_of_month, start_date, end_date, max_occurrences, occurrences_created, next_occurrence_date,
	last_occurrence_date, status, customer_name, customer_email, customer_phone, special_requests,
	created_at, updated_at`

func scanSeries(sc scanner, s *model.RecurringSeries) error {
	var (
		tableID                  sql.NullString
		dayOfWeek, dayOfMonth    sql.NullInt64
		maxOccurrences           sql.NullInt64
		startDate                sql.NullTime
		endDate, nextDate, lastD sql.NullTime
		pattern, status          string
	)
	if err := sc.Scan(&s.ID, &s.RestaurantID, &tableID, &s.PartySize, &s.StartTime, &s.DurationMinutes, &pattern, &dayOfWeek,
		&dayOfMonth, &startDate, &endDate, &maxOccurrences, &s.OccurrencesCreated, &nextDate,
		&lastD, &status, &s.CustomerName, &s.CustomerEmail, &s.CustomerPhone, &s.SpecialRequests,
		&s.CreatedAt, &s.UpdatedAt); err != nil {
		return err
	}
	s.TableID = stringPtr(tableID)
	s.Pattern = model.RecurrencePattern(pattern)
	s.DayOfWeek = intPtr(dayOfWeek)
	s.DayOfMonth = intPtr(dayOfMonth)
	s.StartDate = dateString(startDate.Time)
	s.EndDate = nullDatePtr(endDate)
	s.MaxOccurrences = intPtr(maxOccurrences)
	s.NextOccurrenceDate = nullDatePtr(nextDate)
	s.LastOccurrenceDate = nullDatePtr(lastD)
	s.Status = model.SeriesStatus(status)
	return nil
}

// InsertSeries stores a new series.
func (r *SeriesRepo) InsertSeries(ctx context.Context, s *model.RecurringSeries) error {
	const q = `INSERT INTO recurring_series (id, restaurant_id, table_id, party_size, start_time, duration_minutes, pattern,
	               day_of_week, day_of_month, start_date, end_date, max_occurrences, occurrences_created, next_occurrence_date,
	               last_occurrence_date, status, customer_name, customer_email, customer_phone, special_requests, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, s.ID, s.RestaurantID, nullString(s.TableID), s.PartySize, s.StartTime, s.DurationMinutes,
		string(s.Pattern), nullInt(s.DayOfWeek), nullInt(s.DayOfMonth), s.StartDate, nullString(s.EndDate), nullInt(s.MaxOccurrences),
		s.OccurrencesCreated, nullString(s.NextOccurrenceDate), nullString(s.LastOccurrenceDate), string(s.Status),
		s.CustomerName, s.CustomerEmail, s.CustomerPhone, s.SpecialRequests, s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	return err
}

// GetSeries retrieves a series by id.
func (r *SeriesRepo) GetSeries(ctx context.Context, id string) (*model.RecurringSeries, error) {
	const q = `SELECT ` + seriesColumns + ` FROM recurring_series WHERE id = ?`
	var s model.RecurringSeries
	if err := scanSeries(r.db.QueryRowContext(ctx, q, id), &s); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// UpdateSeries writes the series cursor and status if the stored status is
// still expected.
func (r *SeriesRepo) UpdateSeries(ctx context.Context, s *model.RecurringSeries, expected model.SeriesStatus) error {
	const q = `UPDATE recurring_series
	           SET occurrences_created = ?, next_occurrence_date = ?, last_occurrence_date = ?, status = ?, updated_at = ?
	           WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q, s.OccurrencesCreated, nullString(s.NextOccurrenceDate), nullString(s.LastOccurrenceDate),
		string(s.Status), s.UpdatedAt.UTC(), s.ID, string(expected))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStaleState
	}
	return nil
}

// ListDueSeries returns active series with an occurrence on or before through.
func (r *SeriesRepo) ListDueSeries(ctx context.Context, through string) ([]model.RecurringSeries, error) {
	const q = `SELECT ` + seriesColumns + ` FROM recurring_series
	           WHERE status = 'ACTIVE' AND next_occurrence_date IS NOT NULL AND next_occurrence_date <= ?
	           ORDER BY next_occurrence_date, id`
	rows, err := r.db.QueryContext(ctx, q, through)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.RecurringSeries
	for rows.Next() {
		var s model.RecurringSeries
		if err := scanSeries(rows, &s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
