// Package recurring expands recurring series into concrete reservations.
// Date arithmetic lives in pure functions (dates.go); the Service drives
// the booking engine one occurrence at a time.
package recurring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/apperror"
	"github.com/iliyamo/table-reservation/internal/availability"
	"github.com/iliyamo/table-reservation/internal/ledger"
	"github.com/iliyamo/table-reservation/internal/lock"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/timeutil"
)

// DefaultHorizonDays is how far ahead ProcessScheduledOccurrences books.
const DefaultHorizonDays = 14

// Booker creates and cancels reservations.  booking.Service implements it.
type Booker interface {
	Create(ctx context.Context, req ledger.CreateRequest) (*model.Reservation, error)
	Cancel(ctx context.Context, id, reason string) (*model.Reservation, error)
}

// Store is the persistence the expander needs.
type Store interface {
	repository.RestaurantStore
	repository.ReservationStore
	repository.SeriesStore
}

// Service manages recurring series.
type Service struct {
	store   Store
	booker  Booker
	locker  lock.Locker
	log     logrus.FieldLogger
	now     func() time.Time
	horizon int
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source that defines "today".
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithHorizon sets how many days ahead scheduled runs book.
func WithHorizon(days int) Option { return func(s *Service) { s.horizon = days } }

// New wires a Service.
func New(store Store, booker Booker, locker lock.Locker, log logrus.FieldLogger, opts ...Option) *Service {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	s := &Service{store: store, booker: booker, locker: locker, log: log, now: time.Now, horizon: DefaultHorizonDays}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SeriesRequest describes a new series.
type SeriesRequest struct {
	RestaurantID    string                  `json:"restaurant_id"`
	TableID         *string                 `json:"table_id"`
	PartySize       int                     `json:"party_size"`
	StartTime       string                  `json:"start_time"`
	DurationMinutes int                     `json:"duration_minutes"`
	Pattern         model.RecurrencePattern `json:"pattern"`
	DayOfWeek       *int                    `json:"day_of_week"`
	DayOfMonth      *int                    `json:"day_of_month"`
	StartDate       string                  `json:"start_date"`
	EndDate         *string                 `json:"end_date"`
	MaxOccurrences  *int                    `json:"max_occurrences"`
	CustomerName    string                  `json:"customer_name"`
	CustomerEmail   string                  `json:"customer_email"`
	CustomerPhone   string                  `json:"customer_phone"`
	SpecialRequests string                  `json:"special_requests"`
}

// Outcome reports what MaterializeNext did.
type Outcome struct {
	Date        string                 `json:"date"`
	Reservation *model.Reservation     `json:"reservation,omitempty"`
	Skipped     bool                   `json:"skipped"`
	Reason      string                 `json:"reason,omitempty"`
	Series      *model.RecurringSeries `json:"series"`
}

// Report summarizes a scheduled run.
type Report struct {
	SeriesProcessed int `json:"series_processed"`
	Created         int `json:"created"`
	Skipped         int `json:"skipped"`
	Completed       int `json:"completed"`
}

func (s *Service) today() string { return timeutil.FormatDate(s.now().UTC()) }

// CreateSeries validates req and stores an ACTIVE series whose next
// occurrence is the first pattern date on or after the start date.
func (s *Service) CreateSeries(ctx context.Context, req SeriesRequest) (*model.RecurringSeries, error) {
	if err := validateSeries(req); err != nil {
		return nil, err
	}
	r, err := s.store.GetRestaurant(ctx, req.RestaurantID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.NotFoundError("restaurant", req.RestaurantID)
	}
	if err != nil {
		return nil, fmt.Errorf("get restaurant: %w", err)
	}
	if !r.IsActive {
		return nil, apperror.New(apperror.RestaurantInactive, "restaurant %s is not accepting bookings", r.ID)
	}

	now := s.now().UTC()
	series := &model.RecurringSeries{
		ID:              uuid.NewString(),
		RestaurantID:    r.ID,
		TableID:         req.TableID,
		PartySize:       req.PartySize,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		Pattern:         req.Pattern,
		DayOfWeek:       req.DayOfWeek,
		DayOfMonth:      req.DayOfMonth,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		MaxOccurrences:  req.MaxOccurrences,
		Status:          model.SeriesActive,
		CustomerName:    strings.TrimSpace(req.CustomerName),
		CustomerEmail:   strings.TrimSpace(req.CustomerEmail),
		CustomerPhone:   strings.TrimSpace(req.CustomerPhone),
		SpecialRequests: strings.TrimSpace(req.SpecialRequests),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	first, ok := FirstOccurrence(series)
	if !ok {
		return nil, apperror.New(apperror.InvalidInput, "series has no occurrence between %s and its end date", req.StartDate)
	}
	series.NextOccurrenceDate = &first
	if err := s.store.InsertSeries(ctx, series); err != nil {
		return nil, fmt.Errorf("insert series: %w", err)
	}
	s.log.WithFields(logrus.Fields{"series_id": series.ID, "pattern": series.Pattern, "first": first}).Info("recurring series created")
	return series, nil
}

// Get returns a series by id.
func (s *Service) Get(ctx context.Context, id string) (*model.RecurringSeries, error) {
	rs, err := s.store.GetSeries(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.NotFoundError("series", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get series: %w", err)
	}
	return rs, nil
}

// MaterializeNext books the series' next occurrence.  An occurrence the
// engine refuses (table taken, restaurant closed) is skipped: the cursor
// advances and the outcome says why, but no error is returned.  The series
// completes once it reaches its cap or end date.
func (s *Service) MaterializeNext(ctx context.Context, id string) (*Outcome, error) {
	unlock, err := s.locker.Lock(ctx, lock.SeriesKey(id))
	if err != nil {
		return nil, fmt.Errorf("lock series: %w", err)
	}
	defer unlock()

	rs, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rs.Status != model.SeriesActive || rs.NextOccurrenceDate == nil {
		return &Outcome{Skipped: true, Reason: "series is " + string(rs.Status), Series: rs}, nil
	}
	date := *rs.NextOccurrenceDate
	out := &Outcome{Date: date}
	log := s.log.WithFields(logrus.Fields{"series_id": rs.ID, "date": date})

	if date < s.today() {
		out.Skipped, out.Reason = true, "occurrence date has passed"
	} else {
		res, err := s.booker.Create(ctx, s.occurrence(rs, date))
		if ae, ok := apperror.As(err); ok {
			out.Skipped, out.Reason = true, ae.Message
		} else if err != nil {
			return nil, fmt.Errorf("materialize %s: %w", date, err)
		} else {
			out.Reservation = res
			rs.OccurrencesCreated++
			rs.LastOccurrenceDate = &date
		}
	}
	if out.Skipped {
		log.WithField("reason", out.Reason).Info("recurring occurrence skipped")
	}

	if next, ok := NextOccurrenceDate(rs, date); ok {
		rs.NextOccurrenceDate = &next
	} else {
		rs.NextOccurrenceDate = nil
		rs.Status = model.SeriesCompleted
		log.Info("recurring series completed")
	}
	rs.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateSeries(ctx, rs, model.SeriesActive); err != nil {
		return nil, fmt.Errorf("update series: %w", err)
	}
	out.Series = rs
	return out, nil
}

// ProcessScheduledOccurrences materializes every occurrence of every
// ACTIVE series due on or before today plus the horizon.  One series
// failing does not stop the others; all failures are returned together.
func (s *Service) ProcessScheduledOccurrences(ctx context.Context, today string) (Report, error) {
	var rep Report
	t, err := timeutil.ParseDate(today)
	if err != nil {
		return rep, apperror.New(apperror.InvalidDateFormat, "date %q is not YYYY-MM-DD", today)
	}
	through := timeutil.FormatDate(t.AddDate(0, 0, s.horizon))
	due, err := s.store.ListDueSeries(ctx, through)
	if err != nil {
		return rep, fmt.Errorf("list due series: %w", err)
	}

	var errs *multierror.Error
	for _, rs := range due {
		rep.SeriesProcessed++
		for {
			out, err := s.MaterializeNext(ctx, rs.ID)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("series %s: %w", rs.ID, err))
				break
			}
			if out.Date == "" {
				break
			}
			if out.Skipped {
				rep.Skipped++
			} else {
				rep.Created++
			}
			if out.Series.Status == model.SeriesCompleted {
				rep.Completed++
				break
			}
			if out.Series.NextOccurrenceDate == nil || *out.Series.NextOccurrenceDate > through {
				break
			}
		}
	}
	s.log.WithFields(logrus.Fields{
		"through":   through,
		"series":    rep.SeriesProcessed,
		"created":   rep.Created,
		"skipped":   rep.Skipped,
		"completed": rep.Completed,
	}).Info("recurring run finished")
	return rep, errs.ErrorOrNil()
}

// Pause stops an ACTIVE series from producing occurrences.
func (s *Service) Pause(ctx context.Context, id string) (*model.RecurringSeries, error) {
	return s.transition(ctx, id, "pause", model.SeriesPaused, nil, model.SeriesActive)
}

// Resume restarts a PAUSED series.  The next occurrence is recomputed from
// today, not from where the series stopped, but never lands on or before a
// date the series already booked.
func (s *Service) Resume(ctx context.Context, id string) (*model.RecurringSeries, error) {
	today := s.today()
	return s.transition(ctx, id, "resume", model.SeriesActive, func(rs *model.RecurringSeries) {
		rs.Status = model.SeriesActive
		if next, ok := resumeFrom(rs, today); ok {
			rs.NextOccurrenceDate = &next
		} else {
			rs.NextOccurrenceDate = nil
			rs.Status = model.SeriesCompleted
		}
	}, model.SeriesPaused)
}

// resumeFrom returns the first occurrence on or after today that is
// strictly after the last booked occurrence.
func resumeFrom(rs *model.RecurringSeries, today string) (string, bool) {
	if rs.LastOccurrenceDate != nil && *rs.LastOccurrenceDate >= today {
		return NextOccurrenceDate(rs, *rs.LastOccurrenceDate)
	}
	return OccurrenceOnOrAfter(rs, today)
}

// Cancel ends a series.  With cancelFuture it also cancels the series'
// PENDING and CONFIRMED reservations dated today or later; the count of
// those cancelled is returned alongside any per-reservation failures.
func (s *Service) Cancel(ctx context.Context, id string, cancelFuture bool) (*model.RecurringSeries, int, error) {
	rs, err := s.transition(ctx, id, "cancel", model.SeriesCancelled, func(rs *model.RecurringSeries) {
		rs.NextOccurrenceDate = nil
	}, model.SeriesActive, model.SeriesPaused)
	if err != nil || !cancelFuture {
		return rs, 0, err
	}

	future, err := s.store.ListActiveBySeries(ctx, id, s.today())
	if err != nil {
		return rs, 0, fmt.Errorf("list series reservations: %w", err)
	}
	var (
		errs      *multierror.Error
		cancelled int
	)
	for _, r := range future {
		if !r.CanBeCancelled() {
			continue
		}
		if _, err := s.booker.Cancel(ctx, r.ID, "recurring series cancelled"); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("reservation %s: %w", r.ID, err))
			continue
		}
		cancelled++
	}
	return rs, cancelled, errs.ErrorOrNil()
}

func (s *Service) transition(ctx context.Context, id, attempted string, to model.SeriesStatus, mutate func(*model.RecurringSeries), from ...model.SeriesStatus) (*model.RecurringSeries, error) {
	unlock, err := s.locker.Lock(ctx, lock.SeriesKey(id))
	if err != nil {
		return nil, fmt.Errorf("lock series: %w", err)
	}
	defer unlock()

	rs, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := rs.Status
	allowed := false
	for _, f := range from {
		allowed = allowed || prev == f
	}
	if !allowed {
		return nil, apperror.TransitionError("series", string(prev), attempted)
	}
	rs.Status = to
	if mutate != nil {
		mutate(rs)
	}
	rs.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateSeries(ctx, rs, prev); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, apperror.TransitionError("series", "changed concurrently", attempted)
		}
		return nil, fmt.Errorf("update series: %w", err)
	}
	s.log.WithFields(logrus.Fields{"series_id": id, "from": prev, "to": rs.Status}).Info("recurring series status changed")
	return rs, nil
}

func (s *Service) occurrence(rs *model.RecurringSeries, date string) ledger.CreateRequest {
	req := ledger.CreateRequest{
		RestaurantID:    rs.RestaurantID,
		PartySize:       rs.PartySize,
		Date:            date,
		StartTime:       rs.StartTime,
		DurationMinutes: rs.DurationMinutes,
		CustomerName:    rs.CustomerName,
		CustomerEmail:   rs.CustomerEmail,
		CustomerPhone:   rs.CustomerPhone,
		SpecialRequests: rs.SpecialRequests,
		SeriesID:        &rs.ID,
	}
	if rs.TableID != nil {
		req.TableID = *rs.TableID
	}
	return req
}

func validateSeries(req SeriesRequest) error {
	switch {
	case !req.Pattern.Valid():
		return apperror.New(apperror.InvalidInput, "pattern must be DAILY, WEEKLY, BIWEEKLY or MONTHLY")
	case req.PartySize < 1:
		return apperror.New(apperror.InvalidInput, "party size must be at least 1")
	case req.DurationMinutes < availability.MinDuration || req.DurationMinutes > availability.MaxDuration:
		return apperror.New(apperror.InvalidInput, "duration must be between %d and %d minutes",
			availability.MinDuration, availability.MaxDuration)
	case req.DayOfWeek != nil && (*req.DayOfWeek < 0 || *req.DayOfWeek > 6):
		return apperror.New(apperror.InvalidInput, "day_of_week must be 0 (Sunday) to 6")
	case req.DayOfMonth != nil && (*req.DayOfMonth < 1 || *req.DayOfMonth > 31):
		return apperror.New(apperror.InvalidInput, "day_of_month must be 1 to 31")
	case req.MaxOccurrences != nil && *req.MaxOccurrences < 1:
		return apperror.New(apperror.InvalidInput, "max_occurrences must be positive")
	}
	if _, err := timeutil.ToMinutes(req.StartTime); err != nil {
		return apperror.New(apperror.InvalidTimeFormat, "start time %q is not HH:MM", req.StartTime)
	}
	if _, err := timeutil.ParseDate(req.StartDate); err != nil {
		return apperror.New(apperror.InvalidDateFormat, "start date %q is not YYYY-MM-DD", req.StartDate)
	}
	if req.EndDate != nil {
		if _, err := timeutil.ParseDate(*req.EndDate); err != nil {
			return apperror.New(apperror.InvalidDateFormat, "end date %q is not YYYY-MM-DD", *req.EndDate)
		}
		if *req.EndDate < req.StartDate {
			return apperror.New(apperror.InvalidInput, "end date is before start date")
		}
	}
	return nil
}
