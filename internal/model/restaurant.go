package model

import "time"

// Restaurant is a venue whose tables can be booked.  Opening and closing
// times are wall-clock "HH:MM" strings; a closing time numerically smaller
// than the opening time means the restaurant closes after midnight.
//
// Fields:
//  ID          – primary key identifier (UUID).
//  Name        – display name.
//  OpeningTime – "HH:MM" the first bookable minute of the service day.
//  ClosingTime – "HH:MM" the end of the service day (may be past midnight).
//  IsActive    – deactivated restaurants accept no bookings or waitlist entries.
//  TotalTables – derived count of tables; not authoritative.
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last update timestamp.
type Restaurant struct {
	ID          string    `json:"id"`           // restaurants.id
	Name        string    `json:"name"`         // restaurants.name
	OpeningTime string    `json:"opening_time"` // restaurants.opening_time
	ClosingTime string    `json:"closing_time"` // restaurants.closing_time
	IsActive    bool      `json:"is_active"`    // restaurants.is_active
	TotalTables int       `json:"total_tables"` // derived from restaurant_tables
	CreatedAt   time.Time `json:"created_at"`   // restaurants.created_at
	UpdatedAt   time.Time `json:"updated_at"`   // restaurants.updated_at
}

// CrossesMidnight reports whether the service day ends on the next calendar day.
func (r *Restaurant) CrossesMidnight() bool {
	return r.ClosingTime < r.OpeningTime
}
