// Package booking runs booking-ledger operations and then acts on the
// events they return: customer notifications and waitlist promotion when
// a table window is released.  Side effects happen after the ledger write
// has committed and their failures are logged, never returned.
package booking

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/ledger"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/notify"
	"github.com/iliyamo/table-reservation/internal/queue"
	"github.com/iliyamo/table-reservation/internal/waitlist"
)

// DefaultSendTimeout bounds a single notification send.
const DefaultSendTimeout = 3 * time.Second

// Service is the entry point for booking operations.
type Service struct {
	ledger      *ledger.Ledger
	waitlist    *waitlist.Service
	notifier    notify.Dispatcher
	log         logrus.FieldLogger
	sendTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithSendTimeout overrides DefaultSendTimeout.
func WithSendTimeout(d time.Duration) Option { return func(s *Service) { s.sendTimeout = d } }

// New wires a Service.
func New(l *ledger.Ledger, w *waitlist.Service, n notify.Dispatcher, log logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{ledger: l, waitlist: w, notifier: n, log: log, sendTimeout: DefaultSendTimeout}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ledger exposes the underlying ledger for read operations.
func (s *Service) Ledger() *ledger.Ledger { return s.ledger }

// Create books a table and sends the confirmation.
func (s *Service) Create(ctx context.Context, req ledger.CreateRequest) (*model.Reservation, error) {
	return s.run(ctx)(s.ledger.Create(ctx, req))
}

// Update changes a booking.
func (s *Service) Update(ctx context.Context, id string, req ledger.UpdateRequest) (*model.Reservation, error) {
	return s.run(ctx)(s.ledger.Update(ctx, id, req))
}

// Cancel cancels a booking, notifies the customer and offers the freed
// window to the waitlist.
func (s *Service) Cancel(ctx context.Context, id, reason string) (*model.Reservation, error) {
	return s.run(ctx)(s.ledger.Cancel(ctx, id, reason))
}

// Apply performs a named lifecycle action.
func (s *Service) Apply(ctx context.Context, id string, action model.Action, reason string) (*model.Reservation, error) {
	return s.run(ctx)(s.ledger.Apply(ctx, id, action, reason))
}

// NotifyWaitlist sends a manual offer for the entry's preferred window.
func (s *Service) NotifyWaitlist(ctx context.Context, id string) (*model.WaitlistEntry, error) {
	e, err := s.waitlist.Notify(ctx, id)
	if err != nil {
		return nil, err
	}
	slot := queue.FreedSlot{
		RestaurantID: e.RestaurantID,
		Date:         e.Date,
		StartTime:    e.PreferredStartTime,
		EndTime:      e.PreferredEndTime,
	}
	err = s.send(context.WithoutCancel(ctx), func(ctx context.Context) error {
		return s.notifier.SendWaitlistOffer(ctx, e, slot)
	})
	if err != nil {
		s.log.WithError(err).WithField("waitlist_entry_id", e.ID).Warn("waitlist offer not sent")
	}
	return e, nil
}

// run returns a function that dispatches the events of a successful
// ledger call and passes its result through.
func (s *Service) run(ctx context.Context) func(*model.Reservation, []queue.Event, error) (*model.Reservation, error) {
	return func(r *model.Reservation, events []queue.Event, err error) (*model.Reservation, error) {
		if err != nil {
			return nil, err
		}
		s.Dispatch(ctx, events)
		return r, nil
	}
}

// Dispatch performs the side effects of events.  It detaches from ctx's
// cancellation: the change is committed and a client hanging up must not
// cut its notifications short.  Each send is bounded by the send timeout
// so an unreachable broker delays a request by at most that much.
func (s *Service) Dispatch(ctx context.Context, events []queue.Event) {
	ctx = context.WithoutCancel(ctx)
	for _, ev := range events {
		var err error
		switch ev.Type {
		case queue.ReservationCreated, queue.ReservationConfirmed:
			err = s.send(ctx, func(ctx context.Context) error { return s.notifier.SendConfirmation(ctx, ev.Reservation) })
		case queue.ReservationCancelled:
			err = s.send(ctx, func(ctx context.Context) error { return s.notifier.SendCancellation(ctx, ev.Reservation) })
		case queue.SlotFreed:
			err = s.promote(ctx, *ev.Freed)
		}
		if err != nil {
			log := s.log.WithError(err).WithField("event", ev.Type)
			if ev.Reservation != nil {
				log = log.WithField("reservation_id", ev.Reservation.ID)
			}
			log.Warn("event side effect failed")
		}
	}
}

func (s *Service) promote(ctx context.Context, slot queue.FreedSlot) error {
	e, err := s.waitlist.PromoteOnFreedSlot(ctx, slot)
	if err != nil || e == nil {
		return err
	}
	return s.send(ctx, func(ctx context.Context) error { return s.notifier.SendWaitlistOffer(ctx, e, slot) })
}

// send runs one notification call under the send timeout.  A dispatcher
// that does not return by the deadline is abandoned; its goroutine ends
// when the call does.
func (s *Service) send(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
