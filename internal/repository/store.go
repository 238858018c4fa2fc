package repository

import (
	"context"

	"github.com/iliyamo/table-reservation/internal/model"
)

// RestaurantStore persists restaurants.
type RestaurantStore interface {
	CreateRestaurant(ctx context.Context, r *model.Restaurant) error
	GetRestaurant(ctx context.Context, id string) (*model.Restaurant, error)
	UpdateRestaurant(ctx context.Context, r *model.Restaurant) error
	ListRestaurants(ctx context.Context) ([]model.Restaurant, error)
}

// TableStore persists the tables of a restaurant.
type TableStore interface {
	CreateTable(ctx context.Context, t *model.Table) error
	GetTable(ctx context.Context, id string) (*model.Table, error)
	UpdateTable(ctx context.Context, t *model.Table) error
	DeleteTable(ctx context.Context, id string) error
	// ListTables returns tables ordered by table number.
	ListTables(ctx context.Context, restaurantID string, activeOnly bool) ([]model.Table, error)
	// FindEligibleTables returns active tables with
	// min_capacity <= partySize <= capacity, ordered by capacity then
	// table number.
	FindEligibleTables(ctx context.Context, restaurantID string, partySize int) ([]model.Table, error)
	CountTables(ctx context.Context, restaurantID string) (int, error)
}

// ReservationStore is the booking ledger's source of truth.
type ReservationStore interface {
	// InsertReservation stores r after re-verifying, atomically with the
	// write, that no active reservation on the same table and date
	// overlaps it.  It returns ErrOverlap otherwise.
	InsertReservation(ctx context.Context, r *model.Reservation) error
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)
	// UpdateReservation writes r if the stored row is still in status
	// expected (ErrStaleState otherwise).  When r is active the overlap
	// check is repeated excluding r itself.
	UpdateReservation(ctx context.Context, r *model.Reservation, expected model.ReservationStatus) error
	// FindOverlapping returns active reservations on the table and date
	// whose [StartMinute, EndMinute) intersects [startMinute, endMinute).
	FindOverlapping(ctx context.Context, tableID, date string, startMinute, endMinute int, excludeID string) ([]model.Reservation, error)
	ListActiveByRestaurantAndDate(ctx context.Context, restaurantID, date string) ([]model.Reservation, error)
	ListByRestaurantAndDate(ctx context.Context, restaurantID, date string) ([]model.Reservation, error)
	// ListActiveBySeries returns active reservations of a series dated on
	// or after fromDate.
	ListActiveBySeries(ctx context.Context, seriesID, fromDate string) ([]model.Reservation, error)
}

// WaitlistStore persists waitlist entries.
type WaitlistStore interface {
	// InsertWaitlistEntry stores e and assigns its FIFO sequence number.
	InsertWaitlistEntry(ctx context.Context, e *model.WaitlistEntry) error
	GetWaitlistEntry(ctx context.Context, id string) (*model.WaitlistEntry, error)
	// UpdateWaitlistEntry writes e only if the stored status is still
	// expected, returning ErrStaleState otherwise.
	UpdateWaitlistEntry(ctx context.Context, e *model.WaitlistEntry, expected model.WaitlistStatus) error
	// ListWaiting returns WAITING entries in FIFO order.
	ListWaiting(ctx context.Context, restaurantID, date string) ([]model.WaitlistEntry, error)
	// ListWaitlist returns entries of every status in FIFO order.
	ListWaitlist(ctx context.Context, restaurantID, date string) ([]model.WaitlistEntry, error)
}

// SeriesStore persists recurring series.
type SeriesStore interface {
	InsertSeries(ctx context.Context, s *model.RecurringSeries) error
	GetSeries(ctx context.Context, id string) (*model.RecurringSeries, error)
	// UpdateSeries writes s only if the stored status is still expected.
	UpdateSeries(ctx context.Context, s *model.RecurringSeries, expected model.SeriesStatus) error
	// ListDueSeries returns ACTIVE series whose next occurrence is on or
	// before through.
	ListDueSeries(ctx context.Context, through string) ([]model.RecurringSeries, error)
}

// Store bundles every persistence contract.
type Store interface {
	RestaurantStore
	TableStore
	ReservationStore
	WaitlistStore
	SeriesStore
}
