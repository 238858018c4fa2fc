package model

import "time"

// WaitlistStatus is the state of a waitlist entry.
type WaitlistStatus string

const (
	WaitlistWaiting   WaitlistStatus = "WAITING"
	WaitlistNotified  WaitlistStatus = "NOTIFIED"
	WaitlistSeated    WaitlistStatus = "SEATED"
	WaitlistExpired   WaitlistStatus = "EXPIRED"
	WaitlistCancelled WaitlistStatus = "CANCELLED"
)

// IsActive reports whether the entry is still waiting for a table.
func (s WaitlistStatus) IsActive() bool {
	return s == WaitlistWaiting || s == WaitlistNotified
}

// WaitlistEntry records unmet demand for a (restaurant, date).  Entries are
// served in FIFO order of CreatedAt, with Seq breaking ties between entries
// created in the same instant.
type WaitlistEntry struct {
	ID                 string         `json:"id"`
	RestaurantID       string         `json:"restaurant_id"`
	PartySize          int            `json:"party_size"`
	Date               string         `json:"date"`
	PreferredStartTime string         `json:"preferred_start_time"`
	PreferredEndTime   string         `json:"preferred_end_time"`
	DurationMinutes    int            `json:"duration_minutes"`
	Status             WaitlistStatus `json:"status"`
	CustomerName       string         `json:"customer_name,omitempty"`
	CustomerEmail      string         `json:"customer_email,omitempty"`
	CustomerPhone      string         `json:"customer_phone,omitempty"`
	NotificationCount  int            `json:"notification_count"`
	NotifiedAt         *time.Time     `json:"notified_at,omitempty"`
	ReservationID      *string        `json:"reservation_id,omitempty"`
	Seq                int64          `json:"-"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Before reports whether e was queued ahead of o.
func (e *WaitlistEntry) Before(o *WaitlistEntry) bool {
	if !e.CreatedAt.Equal(o.CreatedAt) {
		return e.CreatedAt.Before(o.CreatedAt)
	}
	return e.Seq < o.Seq
}
