// Package memory is an in-process implementation of repository.Store.  A
// single mutex guards every map, which makes each store call atomic the
// same way a MySQL transaction is; it backs the tests and the
// STORE=memory development mode.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/timeutil"
)

// Store keeps every entity in maps keyed by id.  Values are copied on the
// way in and out so callers never share memory with the store.
type Store struct {
	mu           sync.Mutex
	restaurants  map[string]model.Restaurant
	tables       map[string]model.Table
	reservations map[string]model.Reservation
	waitlist     map[string]model.WaitlistEntry
	series       map[string]model.RecurringSeries
	seq          int64
}

var _ repository.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		restaurants:  make(map[string]model.Restaurant),
		tables:       make(map[string]model.Table),
		reservations: make(map[string]model.Reservation),
		waitlist:     make(map[string]model.WaitlistEntry),
		series:       make(map[string]model.RecurringSeries),
	}
}

// Restaurants

func (s *Store) CreateRestaurant(_ context.Context, r *model.Restaurant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.restaurants[r.ID]; ok {
		return repository.ErrDuplicate
	}
	s.restaurants[r.ID] = *r
	return nil
}

func (s *Store) GetRestaurant(_ context.Context, id string) (*model.Restaurant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.restaurants[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	r.TotalTables = s.countTablesLocked(id)
	return &r, nil
}

func (s *Store) UpdateRestaurant(_ context.Context, r *model.Restaurant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.restaurants[r.ID]; !ok {
		return repository.ErrNotFound
	}
	s.restaurants[r.ID] = *r
	return nil
}

func (s *Store) ListRestaurants(_ context.Context) ([]model.Restaurant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Restaurant, 0, len(s.restaurants))
	for _, r := range s.restaurants {
		r.TotalTables = s.countTablesLocked(r.ID)
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b model.Restaurant) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

// Tables

func (s *Store) countTablesLocked(restaurantID string) int {
	n := 0
	for _, t := range s.tables {
		if t.RestaurantID == restaurantID {
			n++
		}
	}
	return n
}

func (s *Store) numberTakenLocked(t *model.Table) bool {
	for _, o := range s.tables {
		if o.ID != t.ID && o.RestaurantID == t.RestaurantID && o.TableNumber == t.TableNumber {
			return true
		}
	}
	return false
}

func (s *Store) CreateTable(_ context.Context, t *model.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[t.ID]; ok || s.numberTakenLocked(t) {
		return repository.ErrDuplicate
	}
	s.tables[t.ID] = *t
	return nil
}

func (s *Store) GetTable(_ context.Context, id string) (*model.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (s *Store) UpdateTable(_ context.Context, t *model.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[t.ID]; !ok {
		return repository.ErrNotFound
	}
	if s.numberTakenLocked(t) {
		return repository.ErrDuplicate
	}
	s.tables[t.ID] = *t
	return nil
}

func (s *Store) DeleteTable(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.tables, id)
	return nil
}

func (s *Store) ListTables(_ context.Context, restaurantID string, activeOnly bool) ([]model.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Table
	for _, t := range s.tables {
		if t.RestaurantID != restaurantID || (activeOnly && !t.IsActive) {
			continue
		}
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b model.Table) int { return cmp.Compare(a.TableNumber, b.TableNumber) })
	return out, nil
}

func (s *Store) FindEligibleTables(_ context.Context, restaurantID string, partySize int) ([]model.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Table
	for _, t := range s.tables {
		if t.RestaurantID == restaurantID && t.IsActive && t.CanAccommodate(partySize) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b model.Table) int {
		return cmp.Or(cmp.Compare(a.Capacity, b.Capacity), cmp.Compare(a.TableNumber, b.TableNumber))
	})
	return out, nil
}

func (s *Store) CountTables(_ context.Context, restaurantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countTablesLocked(restaurantID), nil
}

// Reservations

func (s *Store) overlapsLocked(r *model.Reservation) bool {
	for _, o := range s.reservations {
		if o.ID == r.ID || o.TableID != r.TableID || o.Date != r.Date || !o.Status.IsActive() {
			continue
		}
		if timeutil.RangesOverlap(r.StartMinute, r.EndMinute, o.StartMinute, o.EndMinute) {
			return true
		}
	}
	return false
}

func (s *Store) InsertReservation(_ context.Context, r *model.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[r.TableID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := s.reservations[r.ID]; ok {
		return repository.ErrDuplicate
	}
	if r.Status.IsActive() && s.overlapsLocked(r) {
		return repository.ErrOverlap
	}
	s.reservations[r.ID] = cloneReservation(*r)
	return nil
}

func (s *Store) GetReservation(_ context.Context, id string) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	r = cloneReservation(r)
	return &r, nil
}

func (s *Store) UpdateReservation(_ context.Context, r *model.Reservation, expected model.ReservationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.reservations[r.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Status != expected {
		return repository.ErrStaleState
	}
	if r.Status.IsActive() && s.overlapsLocked(r) {
		return repository.ErrOverlap
	}
	s.reservations[r.ID] = cloneReservation(*r)
	return nil
}

func (s *Store) collectReservations(keep func(*model.Reservation) bool) []model.Reservation {
	var out []model.Reservation
	for _, r := range s.reservations {
		if keep(&r) {
			out = append(out, cloneReservation(r))
		}
	}
	slices.SortFunc(out, func(a, b model.Reservation) int {
		return cmp.Or(cmp.Compare(a.Date, b.Date), cmp.Compare(a.StartMinute, b.StartMinute), cmp.Compare(a.ID, b.ID))
	})
	return out
}

func (s *Store) FindOverlapping(_ context.Context, tableID, date string, startMinute, endMinute int, excludeID string) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectReservations(func(r *model.Reservation) bool {
		return r.ID != excludeID && r.TableID == tableID && r.Date == date && r.Status.IsActive() &&
			timeutil.RangesOverlap(startMinute, endMinute, r.StartMinute, r.EndMinute)
	}), nil
}

func (s *Store) ListActiveByRestaurantAndDate(_ context.Context, restaurantID, date string) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectReservations(func(r *model.Reservation) bool {
		return r.RestaurantID == restaurantID && r.Date == date && r.Status.IsActive()
	}), nil
}

func (s *Store) ListByRestaurantAndDate(_ context.Context, restaurantID, date string) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectReservations(func(r *model.Reservation) bool {
		return r.RestaurantID == restaurantID && r.Date == date
	}), nil
}

func (s *Store) ListActiveBySeries(_ context.Context, seriesID, fromDate string) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectReservations(func(r *model.Reservation) bool {
		return r.SeriesID != nil && *r.SeriesID == seriesID && r.Date >= fromDate && r.Status.IsActive()
	}), nil
}

// Waitlist

func (s *Store) InsertWaitlistEntry(_ context.Context, e *model.WaitlistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.waitlist[e.ID]; ok {
		return repository.ErrDuplicate
	}
	s.seq++
	e.Seq = s.seq
	s.waitlist[e.ID] = cloneEntry(*e)
	return nil
}

func (s *Store) GetWaitlistEntry(_ context.Context, id string) (*model.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.waitlist[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	e = cloneEntry(e)
	return &e, nil
}

func (s *Store) UpdateWaitlistEntry(_ context.Context, e *model.WaitlistEntry, expected model.WaitlistStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.waitlist[e.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Status != expected {
		return repository.ErrStaleState
	}
	e.Seq = cur.Seq
	s.waitlist[e.ID] = cloneEntry(*e)
	return nil
}

func (s *Store) listEntries(restaurantID, date string, waitingOnly bool) []model.WaitlistEntry {
	var out []model.WaitlistEntry
	for _, e := range s.waitlist {
		if e.RestaurantID != restaurantID || e.Date != date || (waitingOnly && e.Status != model.WaitlistWaiting) {
			continue
		}
		out = append(out, cloneEntry(e))
	}
	slices.SortFunc(out, func(a, b model.WaitlistEntry) int {
		if a.Before(&b) {
			return -1
		}
		if b.Before(&a) {
			return 1
		}
		return 0
	})
	return out
}

func (s *Store) ListWaiting(_ context.Context, restaurantID, date string) ([]model.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listEntries(restaurantID, date, true), nil
}

func (s *Store) ListWaitlist(_ context.Context, restaurantID, date string) ([]model.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listEntries(restaurantID, date, false), nil
}

// Recurring series

func (s *Store) InsertSeries(_ context.Context, rs *model.RecurringSeries) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.series[rs.ID]; ok {
		return repository.ErrDuplicate
	}
	s.series[rs.ID] = cloneSeries(*rs)
	return nil
}

func (s *Store) GetSeries(_ context.Context, id string) (*model.RecurringSeries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.series[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	rs = cloneSeries(rs)
	return &rs, nil
}

func (s *Store) UpdateSeries(_ context.Context, rs *model.RecurringSeries, expected model.SeriesStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.series[rs.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Status != expected {
		return repository.ErrStaleState
	}
	s.series[rs.ID] = cloneSeries(*rs)
	return nil
}

func (s *Store) ListDueSeries(_ context.Context, through string) ([]model.RecurringSeries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.RecurringSeries
	for _, rs := range s.series {
		if rs.Status == model.SeriesActive && rs.NextOccurrenceDate != nil && *rs.NextOccurrenceDate <= through {
			out = append(out, cloneSeries(rs))
		}
	}
	slices.SortFunc(out, func(a, b model.RecurringSeries) int {
		return cmp.Or(cmp.Compare(*a.NextOccurrenceDate, *b.NextOccurrenceDate), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}
