// Package waitlist queues unmet demand per restaurant day and offers freed
// table windows to the longest-waiting compatible party.
package waitlist

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/apperror"
	"github.com/iliyamo/table-reservation/internal/availability"
	"github.com/iliyamo/table-reservation/internal/lock"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/queue"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/timeutil"
)

// MinutesPerPosition is the fixed wait estimate per queue position.
const MinutesPerPosition = 30

// Store is the persistence the waitlist needs.
type Store interface {
	repository.RestaurantStore
	repository.ReservationStore
	repository.WaitlistStore
}

// Service manages waitlist entries.
type Service struct {
	store  Store
	locker lock.Locker
	log    logrus.FieldLogger
	now    func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source.  FIFO order follows it.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// New wires a Service.  A nil locker falls back to an in-process
// KeyedMutex.
func New(store Store, locker lock.Locker, log logrus.FieldLogger, opts ...Option) *Service {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	s := &Service{store: store, locker: locker, log: log, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// EnqueueRequest describes a party waiting for a table.
type EnqueueRequest struct {
	RestaurantID       string `json:"restaurant_id"`
	PartySize          int    `json:"party_size"`
	Date               string `json:"date"`
	PreferredStartTime string `json:"preferred_start_time"`
	PreferredEndTime   string `json:"preferred_end_time"`
	DurationMinutes    int    `json:"duration_minutes"`
	CustomerName       string `json:"customer_name"`
	CustomerEmail      string `json:"customer_email"`
	CustomerPhone      string `json:"customer_phone"`
}

// Enqueue adds a WAITING entry at the back of the restaurant day's queue.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (*model.WaitlistEntry, error) {
	if req.PartySize < 1 {
		return nil, apperror.New(apperror.InvalidInput, "party size must be at least 1")
	}
	if req.DurationMinutes == 0 {
		req.DurationMinutes = availability.DefaultDuration
	}
	if req.DurationMinutes < availability.MinDuration || req.DurationMinutes > availability.MaxDuration {
		return nil, apperror.New(apperror.InvalidInput, "duration must be between %d and %d minutes",
			availability.MinDuration, availability.MaxDuration)
	}
	if _, err := timeutil.ParseDate(req.Date); err != nil {
		return nil, apperror.New(apperror.InvalidDateFormat, "date %q is not YYYY-MM-DD", req.Date)
	}
	rest, err := s.restaurant(ctx, req.RestaurantID)
	if err != nil {
		return nil, err
	}
	if !rest.IsActive {
		return nil, apperror.New(apperror.RestaurantInactive, "restaurant %s is not accepting bookings", rest.ID)
	}
	ps, pe, err := preferredWindow(rest, req.PreferredStartTime, req.PreferredEndTime)
	if err != nil {
		return nil, err
	}
	if pe-ps < req.DurationMinutes {
		return nil, apperror.New(apperror.InvalidInput, "preferred window %s-%s is shorter than %d minutes",
			req.PreferredStartTime, req.PreferredEndTime, req.DurationMinutes)
	}

	now := s.now().UTC()
	e := &model.WaitlistEntry{
		ID:                 uuid.NewString(),
		RestaurantID:       rest.ID,
		PartySize:          req.PartySize,
		Date:               req.Date,
		PreferredStartTime: timeutil.FromMinutes(ps),
		PreferredEndTime:   timeutil.FromMinutes(pe),
		DurationMinutes:    req.DurationMinutes,
		Status:             model.WaitlistWaiting,
		CustomerName:       strings.TrimSpace(req.CustomerName),
		CustomerEmail:      strings.TrimSpace(req.CustomerEmail),
		CustomerPhone:      strings.TrimSpace(req.CustomerPhone),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.InsertWaitlistEntry(ctx, e); err != nil {
		return nil, fmt.Errorf("insert waitlist entry: %w", err)
	}
	s.log.WithFields(logrus.Fields{"waitlist_entry_id": e.ID, "restaurant_id": e.RestaurantID, "date": e.Date, "party_size": e.PartySize}).
		Info("waitlist entry queued")
	return e, nil
}

// Get returns an entry by id.
func (s *Service) Get(ctx context.Context, id string) (*model.WaitlistEntry, error) {
	e, err := s.store.GetWaitlistEntry(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.NotFoundError("waitlist entry", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get waitlist entry: %w", err)
	}
	return e, nil
}

// List returns every entry of a restaurant day in FIFO order.
func (s *Service) List(ctx context.Context, restaurantID, date string) ([]model.WaitlistEntry, error) {
	if _, err := timeutil.ParseDate(date); err != nil {
		return nil, apperror.New(apperror.InvalidDateFormat, "date %q is not YYYY-MM-DD", date)
	}
	es, err := s.store.ListWaitlist(ctx, restaurantID, date)
	if err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	return es, nil
}

// Position returns the 1-based place of a WAITING entry in its queue, or
// -1 when the entry is not waiting.
func (s *Service) Position(ctx context.Context, id string) (int, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if e.Status != model.WaitlistWaiting {
		return -1, nil
	}
	waiting, err := s.store.ListWaiting(ctx, e.RestaurantID, e.Date)
	if err != nil {
		return 0, fmt.Errorf("list waiting: %w", err)
	}
	pos := 1
	for i := range waiting {
		if waiting[i].Before(e) {
			pos++
		}
	}
	return pos, nil
}

// EstimatedWaitMinutes returns position * MinutesPerPosition, or false when
// the entry is not waiting.
func (s *Service) EstimatedWaitMinutes(ctx context.Context, id string) (int, bool, error) {
	pos, err := s.Position(ctx, id)
	if err != nil || pos < 0 {
		return 0, false, err
	}
	return pos * MinutesPerPosition, true, nil
}

// FindCandidatesForSlot returns, in FIFO order, the WAITING entries whose
// preferred window contains [startMinute, endMinute) and whose party is at
// most maxPartySize.  Minutes are service-day offsets.
func (s *Service) FindCandidatesForSlot(ctx context.Context, restaurantID, date string, startMinute, endMinute, maxPartySize int) ([]model.WaitlistEntry, error) {
	rest, err := s.restaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	waiting, err := s.store.ListWaiting(ctx, restaurantID, date)
	if err != nil {
		return nil, fmt.Errorf("list waiting: %w", err)
	}
	out := waiting[:0]
	for _, e := range waiting {
		if e.PartySize > maxPartySize {
			continue
		}
		ps, pe, err := preferredWindow(rest, e.PreferredStartTime, e.PreferredEndTime)
		if err != nil {
			s.log.WithError(err).WithField("waitlist_entry_id", e.ID).Warn("skipping entry with unreadable window")
			continue
		}
		if ps <= startMinute && endMinute <= pe {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b model.WaitlistEntry) int {
		switch {
		case a.Before(&b):
			return -1
		case b.Before(&a):
			return 1
		}
		return 0
	})
	return out, nil
}

// PromoteOnFreedSlot offers a freed window to the first compatible WAITING
// entry, moving it to NOTIFIED.  It returns the notified entry, or nil when
// nobody fits.  The offer does not reserve the table.
//
// Promotions of one restaurant day are serialized, and the claim itself is
// a conditional WAITING -> NOTIFIED write, so an entry is offered at most
// once however many slots free up at the same time.
func (s *Service) PromoteOnFreedSlot(ctx context.Context, slot queue.FreedSlot) (*model.WaitlistEntry, error) {
	unlock, err := s.locker.Lock(ctx, lock.WaitlistKey(slot.RestaurantID, slot.Date))
	if err != nil {
		return nil, fmt.Errorf("lock waitlist: %w", err)
	}
	defer unlock()

	candidates, err := s.FindCandidatesForSlot(ctx, slot.RestaurantID, slot.Date, slot.StartMinute, slot.EndMinute, slot.Capacity)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		e := &candidates[i]
		s.markNotified(e)
		err := s.store.UpdateWaitlistEntry(ctx, e, model.WaitlistWaiting)
		if errors.Is(err, repository.ErrStaleState) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update waitlist entry: %w", err)
		}
		s.log.WithFields(logrus.Fields{
			"waitlist_entry_id": e.ID,
			"restaurant_id":     e.RestaurantID,
			"date":              e.Date,
			"window":            slot.StartTime + "-" + slot.EndTime,
		}).Info("waitlist entry offered freed slot")
		return e, nil
	}
	return nil, nil
}

// Notify sends a manual offer: WAITING or NOTIFIED -> NOTIFIED.
func (s *Service) Notify(ctx context.Context, id string) (*model.WaitlistEntry, error) {
	return s.transition(ctx, id, "notify", model.WaitlistNotified, s.markNotified,
		model.WaitlistWaiting, model.WaitlistNotified)
}

// Expire closes an offer that went unanswered: NOTIFIED -> EXPIRED.
func (s *Service) Expire(ctx context.Context, id string) (*model.WaitlistEntry, error) {
	return s.transition(ctx, id, "expire", model.WaitlistExpired, nil, model.WaitlistNotified)
}

// Cancel removes an active entry: WAITING or NOTIFIED -> CANCELLED.
func (s *Service) Cancel(ctx context.Context, id string) (*model.WaitlistEntry, error) {
	return s.transition(ctx, id, "cancel", model.WaitlistCancelled, nil,
		model.WaitlistWaiting, model.WaitlistNotified)
}

// ConvertToReservation links an active entry to the reservation it turned
// into: WAITING or NOTIFIED -> SEATED.
func (s *Service) ConvertToReservation(ctx context.Context, id, reservationID string) (*model.WaitlistEntry, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r, err := s.store.GetReservation(ctx, reservationID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && r.RestaurantID != e.RestaurantID) {
		return nil, apperror.NotFoundError("reservation", reservationID)
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return s.transition(ctx, id, "convert", model.WaitlistSeated, func(e *model.WaitlistEntry) {
		e.ReservationID = &reservationID
	}, model.WaitlistWaiting, model.WaitlistNotified)
}

func (s *Service) transition(ctx context.Context, id, attempted string, to model.WaitlistStatus, mutate func(*model.WaitlistEntry), from ...model.WaitlistStatus) (*model.WaitlistEntry, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(from, e.Status) {
		return nil, apperror.TransitionError("waitlist entry", string(e.Status), attempted)
	}
	prev := e.Status
	e.Status = to
	e.UpdatedAt = s.now().UTC()
	if mutate != nil {
		mutate(e)
	}
	err = s.store.UpdateWaitlistEntry(ctx, e, prev)
	if errors.Is(err, repository.ErrStaleState) {
		cur, gerr := s.Get(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return nil, apperror.TransitionError("waitlist entry", string(cur.Status), attempted)
	}
	if err != nil {
		return nil, fmt.Errorf("update waitlist entry: %w", err)
	}
	s.log.WithFields(logrus.Fields{"waitlist_entry_id": e.ID, "from": prev, "to": to}).Info("waitlist entry status changed")
	return e, nil
}

func (s *Service) markNotified(e *model.WaitlistEntry) {
	now := s.now().UTC()
	e.Status = model.WaitlistNotified
	e.NotificationCount++
	e.NotifiedAt = &now
	e.UpdatedAt = now
}

func (s *Service) restaurant(ctx context.Context, id string) (*model.Restaurant, error) {
	r, err := s.store.GetRestaurant(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.NotFoundError("restaurant", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get restaurant: %w", err)
	}
	return r, nil
}

// preferredWindow maps an "HH:MM" window onto the restaurant's service day
// and checks that it lies within operating hours.
func preferredWindow(r *model.Restaurant, start, end string) (int, int, error) {
	sc, err := timeutil.ToMinutes(start)
	if err != nil {
		return 0, 0, apperror.New(apperror.InvalidTimeFormat, "preferred start %q is not HH:MM", start)
	}
	ec, err := timeutil.ToMinutes(end)
	if err != nil {
		return 0, 0, apperror.New(apperror.InvalidTimeFormat, "preferred end %q is not HH:MM", end)
	}
	h, err := timeutil.NewHours(r.OpeningTime, r.ClosingTime)
	if err != nil {
		return 0, 0, err
	}
	ps := h.Offset(sc)
	pe := ec
	if h.CrossesMidnight() && ec <= h.Open {
		pe += timeutil.MinutesPerDay
	}
	if !h.Contains(ps, pe) {
		return 0, 0, apperror.New(apperror.OutsideOperatingHours,
			"preferred window %s-%s is outside operating hours %s-%s", start, end, r.OpeningTime, r.ClosingTime)
	}
	return ps, pe, nil
}
