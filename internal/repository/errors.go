// Package repository defines the persistence contracts of the booking
// engine and their MySQL implementation.  Services only talk to the
// interfaces in store.go; the sentinel errors below let them tell
// expected persistence outcomes apart from infrastructure failures.
package repository

import "errors"

// ErrNotFound is returned when a lookup by id matches no row.
var ErrNotFound = errors.New("not found")

// ErrOverlap is returned when a write would place two active
// reservations on the same table with intersecting intervals.  Stores
// re-check this inside the write so a concurrent booking cannot slip in
// between the caller's check and the insert.
var ErrOverlap = errors.New("overlapping reservation")

// ErrStaleState is returned when a conditional update finds the row in a
// different status than the caller expected, i.e. someone else moved it
// first.
var ErrStaleState = errors.New("stale state")

// ErrDuplicate is returned when a unique key would be violated, such as a
// repeated table number inside one restaurant.
var ErrDuplicate = errors.New("duplicate")
