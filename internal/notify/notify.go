// Package notify delivers customer notifications.  Delivery is fire and
// forget from the booking engine's point of view: a failed send is logged
// by the caller and never undoes a committed booking change.
package notify

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/queue"
)

// Dispatcher sends customer-facing notifications.
type Dispatcher interface {
	SendConfirmation(ctx context.Context, r *model.Reservation) error
	SendCancellation(ctx context.Context, r *model.Reservation) error
	SendWaitlistOffer(ctx context.Context, e *model.WaitlistEntry, slot queue.FreedSlot) error
}

// Publisher hands a notification to a transport.
type Publisher interface {
	Publish(ctx context.Context, n queue.Notification) error
}

// PublishingDispatcher turns dispatcher calls into notification payloads
// for a Publisher.
type PublishingDispatcher struct {
	pub Publisher
	now func() time.Time
}

// NewDispatcher returns a Dispatcher publishing through pub.
func NewDispatcher(pub Publisher) *PublishingDispatcher {
	return &PublishingDispatcher{pub: pub, now: time.Now}
}

func (d *PublishingDispatcher) SendConfirmation(ctx context.Context, r *model.Reservation) error {
	return d.pub.Publish(ctx, queue.ReservationNotification(queue.KindConfirmation, r, d.now()))
}

func (d *PublishingDispatcher) SendCancellation(ctx context.Context, r *model.Reservation) error {
	return d.pub.Publish(ctx, queue.ReservationNotification(queue.KindCancellation, r, d.now()))
}

func (d *PublishingDispatcher) SendWaitlistOffer(ctx context.Context, e *model.WaitlistEntry, slot queue.FreedSlot) error {
	return d.pub.Publish(ctx, queue.OfferNotification(e, slot, d.now()))
}

// LogPublisher writes notifications to the application log.  It is used
// when no broker is configured.
type LogPublisher struct {
	log logrus.FieldLogger
}

// NewLogPublisher returns a LogPublisher.
func NewLogPublisher(log logrus.FieldLogger) *LogPublisher { return &LogPublisher{log: log} }

func (p *LogPublisher) Publish(_ context.Context, n queue.Notification) error {
	p.log.WithFields(logrus.Fields{
		"kind":              n.Kind,
		"reservation_id":    n.ReservationID,
		"waitlist_entry_id": n.WaitlistEntryID,
		"restaurant_id":     n.RestaurantID,
		"date":              n.Date,
		"start_time":        n.StartTime,
	}).Info("notification")
	return nil
}
