// Package ledger is the booking ledger: it creates, modifies and moves
// reservations through their lifecycle, and guarantees that no two active
// reservations on one table overlap.
//
// Every operation returns the events it produced instead of sending
// notifications itself.  The events describe a change that is already
// committed, so delivering them can fail without undoing the booking.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/apperror"
	"github.com/iliyamo/table-reservation/internal/availability"
	"github.com/iliyamo/table-reservation/internal/catalog"
	"github.com/iliyamo/table-reservation/internal/lock"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/queue"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/timeutil"
)

// Store is the persistence the ledger needs.
type Store interface {
	repository.RestaurantStore
	repository.TableStore
	repository.ReservationStore
}

// Ledger is the booking ledger.
type Ledger struct {
	store   Store
	catalog *catalog.Catalog
	policy  availability.Policy
	cache   availability.Cache
	locker  lock.Locker
	log     logrus.FieldLogger
	now     func() time.Time
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

// New wires a Ledger.  A nil cache disables invalidation and a nil locker
// falls back to an in-process KeyedMutex.
func New(store Store, cat *catalog.Catalog, policy availability.Policy, cache availability.Cache, locker lock.Locker, log logrus.FieldLogger, opts ...Option) *Ledger {
	if cache == nil {
		cache = availability.NopCache{}
	}
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	l := &Ledger{store: store, catalog: cat, policy: policy, cache: cache, locker: locker, log: log, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// CreateRequest describes a new booking.  TableID is optional; without it
// the best-fit free table is chosen.
type CreateRequest struct {
	RestaurantID    string  `json:"restaurant_id"`
	TableID         string  `json:"table_id,omitempty"`
	PartySize       int     `json:"party_size"`
	Date            string  `json:"date"`
	StartTime       string  `json:"start_time"`
	DurationMinutes int     `json:"duration_minutes"`
	CustomerName    string  `json:"customer_name"`
	CustomerEmail   string  `json:"customer_email"`
	CustomerPhone   string  `json:"customer_phone"`
	SpecialRequests string  `json:"special_requests"`
	SeriesID        *string `json:"-"`
}

// UpdateRequest changes a booking.  Nil fields are left as they are.
type UpdateRequest struct {
	TableID         *string `json:"table_id"`
	PartySize       *int    `json:"party_size"`
	Date            *string `json:"date"`
	StartTime       *string `json:"start_time"`
	DurationMinutes *int    `json:"duration_minutes"`
	CustomerName    *string `json:"customer_name"`
	CustomerEmail   *string `json:"customer_email"`
	CustomerPhone   *string `json:"customer_phone"`
	SpecialRequests *string `json:"special_requests"`
}

// Get returns a reservation by id.
func (l *Ledger) Get(ctx context.Context, id string) (*model.Reservation, error) {
	r, err := l.store.GetReservation(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.NotFoundError("reservation", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return r, nil
}

// List returns the reservations of a restaurant day by start time.
func (l *Ledger) List(ctx context.Context, restaurantID, date string, activeOnly bool) ([]model.Reservation, error) {
	if _, err := timeutil.ParseDate(date); err != nil {
		return nil, apperror.New(apperror.InvalidDateFormat, "date %q is not YYYY-MM-DD", date)
	}
	if _, err := l.catalog.Restaurant(ctx, restaurantID); err != nil {
		return nil, err
	}
	var (
		rs  []model.Reservation
		err error
	)
	if activeOnly {
		rs, err = l.store.ListActiveByRestaurantAndDate(ctx, restaurantID, date)
	} else {
		rs, err = l.store.ListByRestaurantAndDate(ctx, restaurantID, date)
	}
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return rs, nil
}

// IsResourceFree reports whether no active reservation other than
// excludeID holds the table on date within [startMinute, endMinute).
// Minutes are service-day offsets.
func (l *Ledger) IsResourceFree(ctx context.Context, tableID, date string, startMinute, endMinute int, excludeID string) (bool, error) {
	hits, err := l.store.FindOverlapping(ctx, tableID, date, startMinute, endMinute, excludeID)
	if err != nil {
		return false, fmt.Errorf("find overlapping: %w", err)
	}
	return len(hits) == 0, nil
}

// FindFreeResource returns the first table in best-fit order that seats
// partySize and is free for the window, or nil.  The answer is advisory:
// Create re-checks under the table lock before writing.
func (l *Ledger) FindFreeResource(ctx context.Context, restaurantID, date string, startMinute, endMinute, partySize int) (*model.Table, error) {
	tables, err := l.catalog.FindEligible(ctx, restaurantID, partySize)
	if err != nil {
		return nil, err
	}
	for i := range tables {
		free, err := l.IsResourceFree(ctx, tables[i].ID, date, startMinute, endMinute, "")
		if err != nil {
			return nil, err
		}
		if free {
			return &tables[i], nil
		}
	}
	return nil, nil
}

// Create books a table.
func (l *Ledger) Create(ctx context.Context, req CreateRequest) (*model.Reservation, []queue.Event, error) {
	if req.DurationMinutes == 0 {
		req.DurationMinutes = availability.DefaultDuration
	}
	if err := validateShape(req.PartySize, req.DurationMinutes, req.Date); err != nil {
		return nil, nil, err
	}
	rest, err := l.activeRestaurant(ctx, req.RestaurantID)
	if err != nil {
		return nil, nil, err
	}
	w, err := l.policy.CheckWindow(rest, req.StartTime, req.DurationMinutes)
	if err != nil {
		return nil, nil, err
	}

	now := l.now().UTC()
	r := &model.Reservation{
		ID:              uuid.NewString(),
		RestaurantID:    rest.ID,
		PartySize:       req.PartySize,
		Date:            req.Date,
		DurationMinutes: req.DurationMinutes,
		Status:          model.StatusPending,
		CustomerName:    strings.TrimSpace(req.CustomerName),
		CustomerEmail:   strings.TrimSpace(req.CustomerEmail),
		CustomerPhone:   strings.TrimSpace(req.CustomerPhone),
		SpecialRequests: strings.TrimSpace(req.SpecialRequests),
		SeriesID:        req.SeriesID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	setWindow(r, w)

	log := l.log.WithFields(logrus.Fields{"restaurant_id": rest.ID, "date": r.Date, "start_time": r.StartTime, "party_size": r.PartySize})
	if req.TableID != "" {
		t, err := l.explicitTable(ctx, rest.ID, req.TableID, req.PartySize)
		if err != nil {
			return nil, nil, err
		}
		ok, err := l.place(ctx, r, t, func() error { return l.store.InsertReservation(ctx, r) })
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, nil, tableConflict(t, r)
		}
	} else {
		placed, err := l.placeBestFit(ctx, r, func() error { return l.store.InsertReservation(ctx, r) })
		if err != nil {
			return nil, nil, err
		}
		if !placed {
			log.Info("no table free for request")
			return nil, nil, apperror.NoCapacityError(r.PartySize, r.Date, r.StartTime)
		}
	}

	l.invalidate(ctx, r.RestaurantID, r.Date)
	log.WithFields(logrus.Fields{"reservation_id": r.ID, "table_id": r.TableID}).Info("reservation created")
	return r, []queue.Event{{Type: queue.ReservationCreated, Reservation: r}}, nil
}

// Update changes a PENDING or CONFIRMED booking.  Freedom is re-checked
// for the new window excluding the booking itself.  Without an explicit
// table the booking stays on its table when that still fits and is free,
// and otherwise moves to the best-fit free table.
func (l *Ledger) Update(ctx context.Context, id string, req UpdateRequest) (*model.Reservation, []queue.Event, error) {
	cur, err := l.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !cur.CanBeModified() {
		return nil, nil, apperror.TransitionError("reservation", string(cur.Status), "update")
	}

	r := *cur
	start := cur.StartTime
	if req.PartySize != nil {
		r.PartySize = *req.PartySize
	}
	if req.Date != nil {
		r.Date = *req.Date
	}
	if req.StartTime != nil {
		start = *req.StartTime
	}
	if req.DurationMinutes != nil {
		r.DurationMinutes = *req.DurationMinutes
	}
	if req.CustomerName != nil {
		r.CustomerName = strings.TrimSpace(*req.CustomerName)
	}
	if req.CustomerEmail != nil {
		r.CustomerEmail = strings.TrimSpace(*req.CustomerEmail)
	}
	if req.CustomerPhone != nil {
		r.CustomerPhone = strings.TrimSpace(*req.CustomerPhone)
	}
	if req.SpecialRequests != nil {
		r.SpecialRequests = strings.TrimSpace(*req.SpecialRequests)
	}
	if err := validateShape(r.PartySize, r.DurationMinutes, r.Date); err != nil {
		return nil, nil, err
	}
	rest, err := l.activeRestaurant(ctx, r.RestaurantID)
	if err != nil {
		return nil, nil, err
	}
	w, err := l.policy.CheckWindow(rest, start, r.DurationMinutes)
	if err != nil {
		return nil, nil, err
	}
	setWindow(&r, w)
	r.UpdatedAt = l.now().UTC()

	write := func() error { return l.store.UpdateReservation(ctx, &r, cur.Status) }
	if req.TableID != nil {
		t, err := l.explicitTable(ctx, rest.ID, *req.TableID, r.PartySize)
		if err != nil {
			return nil, nil, err
		}
		ok, err := l.place(ctx, &r, t, write)
		if err != nil {
			return nil, nil, l.staleAsTransition(ctx, err, id, "update")
		}
		if !ok {
			return nil, nil, tableConflict(t, &r)
		}
	} else {
		placed := false
		t, err := l.store.GetTable(ctx, cur.TableID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, nil, fmt.Errorf("get table: %w", err)
		}
		if t != nil && t.IsActive && t.CanAccommodate(r.PartySize) {
			if placed, err = l.place(ctx, &r, t, write); err != nil {
				return nil, nil, l.staleAsTransition(ctx, err, id, "update")
			}
		}
		if !placed {
			if placed, err = l.placeBestFit(ctx, &r, write); err != nil {
				return nil, nil, l.staleAsTransition(ctx, err, id, "update")
			}
		}
		if !placed {
			return nil, nil, apperror.NoCapacityError(r.PartySize, r.Date, r.StartTime)
		}
	}

	l.invalidate(ctx, r.RestaurantID, cur.Date)
	if r.Date != cur.Date {
		l.invalidate(ctx, r.RestaurantID, r.Date)
	}
	l.log.WithFields(logrus.Fields{"reservation_id": r.ID, "table_id": r.TableID, "date": r.Date, "start_time": r.StartTime}).Info("reservation updated")
	return &r, nil, nil
}

// place writes r on table t while holding the (table, date) lock, after
// checking that t is free.  It reports false when the table is taken.
func (l *Ledger) place(ctx context.Context, r *model.Reservation, t *model.Table, write func() error) (bool, error) {
	unlock, err := l.locker.Lock(ctx, lock.TableKey(t.ID, r.Date))
	if err != nil {
		return false, fmt.Errorf("lock table %s: %w", t.ID, err)
	}
	defer unlock()

	free, err := l.IsResourceFree(ctx, t.ID, r.Date, r.StartMinute, r.EndMinute, r.ID)
	if err != nil {
		return false, err
	}
	if !free {
		return false, nil
	}
	prev := r.TableID
	r.TableID = t.ID
	err = write()
	if errors.Is(err, repository.ErrOverlap) {
		r.TableID = prev
		return false, nil
	}
	if err != nil {
		r.TableID = prev
		return false, err
	}
	return true, nil
}

// placeBestFit tries every eligible table in best-fit order.
func (l *Ledger) placeBestFit(ctx context.Context, r *model.Reservation, write func() error) (bool, error) {
	tables, err := l.catalog.FindEligible(ctx, r.RestaurantID, r.PartySize)
	if err != nil {
		return false, err
	}
	for i := range tables {
		ok, err := l.place(ctx, r, &tables[i], write)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (l *Ledger) explicitTable(ctx context.Context, restaurantID, tableID string, partySize int) (*model.Table, error) {
	t, err := l.store.GetTable(ctx, tableID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && t.RestaurantID != restaurantID) {
		return nil, apperror.NotFoundError("table", tableID)
	}
	if err != nil {
		return nil, fmt.Errorf("get table: %w", err)
	}
	if !t.IsActive {
		return nil, apperror.New(apperror.TableConflict, "table %d is not in service", t.TableNumber)
	}
	if !t.CanAccommodate(partySize) {
		return nil, apperror.New(apperror.CapacityMismatch,
			"table %d seats %d-%d guests, party is %d", t.TableNumber, t.MinCapacity, t.Capacity, partySize)
	}
	return t, nil
}

func (l *Ledger) activeRestaurant(ctx context.Context, id string) (*model.Restaurant, error) {
	r, err := l.catalog.Restaurant(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.IsActive {
		return nil, apperror.New(apperror.RestaurantInactive, "restaurant %s is not accepting bookings", r.ID)
	}
	return r, nil
}

// staleAsTransition turns a lost race on the reservation's status into the
// transition error the caller would have seen had it arrived second.
func (l *Ledger) staleAsTransition(ctx context.Context, err error, id, attempted string) error {
	if !errors.Is(err, repository.ErrStaleState) {
		return err
	}
	cur, gerr := l.Get(ctx, id)
	if gerr != nil {
		return gerr
	}
	return apperror.TransitionError("reservation", string(cur.Status), attempted)
}

// invalidate drops cached availability for the day.  Failure only means a
// stale read until the TTL expires, so it is logged and swallowed.
func (l *Ledger) invalidate(ctx context.Context, restaurantID, date string) {
	if err := l.cache.InvalidateDate(ctx, restaurantID, date); err != nil {
		l.log.WithError(err).WithFields(logrus.Fields{"restaurant_id": restaurantID, "date": date}).
			Warn("availability cache invalidation failed")
	}
}

func validateShape(partySize, duration int, date string) error {
	if partySize < 1 {
		return apperror.New(apperror.InvalidInput, "party size must be at least 1")
	}
	if duration < availability.MinDuration || duration > availability.MaxDuration {
		return apperror.New(apperror.InvalidInput, "duration must be between %d and %d minutes",
			availability.MinDuration, availability.MaxDuration)
	}
	if _, err := timeutil.ParseDate(date); err != nil {
		return apperror.New(apperror.InvalidDateFormat, "date %q is not YYYY-MM-DD", date)
	}
	return nil
}

func setWindow(r *model.Reservation, w availability.Window) {
	r.StartTime, r.EndTime = w.Start, w.End
	r.StartMinute, r.EndMinute = w.StartMinute, w.EndMinute
}

func tableConflict(t *model.Table, r *model.Reservation) error {
	return apperror.New(apperror.TableConflict, "table %d is already booked on %s between %s and %s",
		t.TableNumber, r.Date, r.StartTime, r.EndTime)
}
