package model

import "time"

// RecurrencePattern selects how a series advances between occurrences.
type RecurrencePattern string

const (
	PatternDaily    RecurrencePattern = "DAILY"
	PatternWeekly   RecurrencePattern = "WEEKLY"
	PatternBiweekly RecurrencePattern = "BIWEEKLY"
	PatternMonthly  RecurrencePattern = "MONTHLY"
)

// Valid reports whether p is a known pattern.
func (p RecurrencePattern) Valid() bool {
	switch p {
	case PatternDaily, PatternWeekly, PatternBiweekly, PatternMonthly:
		return true
	}
	return false
}

// SeriesStatus is the state of a recurring series.
type SeriesStatus string

const (
	SeriesActive    SeriesStatus = "ACTIVE"
	SeriesPaused    SeriesStatus = "PAUSED"
	SeriesCancelled SeriesStatus = "CANCELLED"
	SeriesCompleted SeriesStatus = "COMPLETED"
)

// RecurringSeries is a booking template that is materialized into one
// reservation per occurrence.  Dates are "YYYY-MM-DD" strings.
//
// DayOfWeek (0 = Sunday) anchors WEEKLY and BIWEEKLY series; DayOfMonth
// anchors MONTHLY series and is clamped to the length of each month.
// NextOccurrenceDate is nil once the series can produce nothing more.
type RecurringSeries struct {
	ID                 string            `json:"id"`
	RestaurantID       string            `json:"restaurant_id"`
	TableID            *string           `json:"table_id,omitempty"`
	PartySize          int               `json:"party_size"`
	StartTime          string            `json:"start_time"`
	DurationMinutes    int               `json:"duration_minutes"`
	Pattern            RecurrencePattern `json:"pattern"`
	DayOfWeek          *int              `json:"day_of_week,omitempty"`
	DayOfMonth         *int              `json:"day_of_month,omitempty"`
	StartDate          string            `json:"start_date"`
	EndDate            *string           `json:"end_date,omitempty"`
	MaxOccurrences     *int              `json:"max_occurrences,omitempty"`
	OccurrencesCreated int               `json:"occurrences_created"`
	NextOccurrenceDate *string           `json:"next_occurrence_date,omitempty"`
	LastOccurrenceDate *string           `json:"last_occurrence_date,omitempty"`
	Status             SeriesStatus      `json:"status"`
	CustomerName       string            `json:"customer_name,omitempty"`
	CustomerEmail      string            `json:"customer_email,omitempty"`
	CustomerPhone      string            `json:"customer_phone,omitempty"`
	SpecialRequests    string            `json:"special_requests,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// CapReached reports whether the series has produced MaxOccurrences bookings.
func (s *RecurringSeries) CapReached() bool {
	return s.MaxOccurrences != nil && s.OccurrencesCreated >= *s.MaxOccurrences
}
