package model

import (
	"math"
	"time"
)

// Table is a bookable resource inside a restaurant.  A table accepts a
// party when MinCapacity <= party size <= Capacity.
//
// Fields:
//  ID           – primary key identifier (UUID).
//  RestaurantID – owning restaurant; tables are deleted with it.
//  TableNumber  – number unique within the restaurant.
//  Capacity     – maximum party size.
//  MinCapacity  – minimum party size (defaults to 1).
//  Location     – free-form label such as "patio" or "window".
//  IsActive     – inactive tables are never offered.
type Table struct {
	ID           string    `json:"id"`            // restaurant_tables.id
	RestaurantID string    `json:"restaurant_id"` // restaurant_tables.restaurant_id
	TableNumber  int       `json:"table_number"`  // restaurant_tables.table_number
	Capacity     int       `json:"capacity"`      // restaurant_tables.capacity
	MinCapacity  int       `json:"min_capacity"`  // restaurant_tables.min_capacity
	Location     string    `json:"location"`      // restaurant_tables.location
	IsActive     bool      `json:"is_active"`     // restaurant_tables.is_active
	CreatedAt    time.Time `json:"created_at"`    // restaurant_tables.created_at
	UpdatedAt    time.Time `json:"updated_at"`    // restaurant_tables.updated_at
}

// NoFit is the fit score of a table that cannot seat the party.
const NoFit = math.MaxInt

// CanAccommodate reports whether the table seats a party of n.
func (t *Table) CanAccommodate(n int) bool {
	return t.MinCapacity <= n && n <= t.Capacity
}

// FitScore returns the number of empty seats left when seating n guests,
// or NoFit when the table cannot take the party.  Zero is a perfect fit.
func (t *Table) FitScore(n int) int {
	if !t.CanAccommodate(n) {
		return NoFit
	}
	return t.Capacity - n
}
