// Package queue defines the events produced by booking operations, the
// notification payload exchanged over the message broker, and the
// consumer that delivers those notifications.
package queue

import (
	"time"

	"github.com/iliyamo/table-reservation/internal/model"
)

// EventType names what happened to a reservation.
type EventType string

const (
	ReservationCreated   EventType = "reservation.created"
	ReservationConfirmed EventType = "reservation.confirmed"
	ReservationCancelled EventType = "reservation.cancelled"
	ReservationNoShow    EventType = "reservation.no_show"
	// SlotFreed is emitted when a cancellation or no-show releases a table
	// window that the waitlist may be offered.
	SlotFreed EventType = "slot.freed"
)

// FreedSlot describes a released table window.
type FreedSlot struct {
	RestaurantID string `json:"restaurant_id"`
	TableID      string `json:"table_id"`
	Date         string `json:"date"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	StartMinute  int    `json:"start_minute"`
	EndMinute    int    `json:"end_minute"`
	Capacity     int    `json:"capacity"`
}

// Event is an outbound side effect of a committed booking operation.  The
// operation that produced it has already been persisted; delivering the
// event is the caller's concern.
type Event struct {
	Type        EventType
	Reservation *model.Reservation
	Freed       *FreedSlot
}

// NotificationKind selects the message a customer receives.
type NotificationKind string

const (
	KindConfirmation  NotificationKind = "confirmation"
	KindCancellation  NotificationKind = "cancellation"
	KindWaitlistOffer NotificationKind = "waitlist_offer"
)

// Notification is the broker payload.  It carries enough for a delivery
// worker to write to the customer without reading the primary database.
type Notification struct {
	Kind            NotificationKind `json:"kind"`
	ReservationID   string           `json:"reservation_id,omitempty"`
	WaitlistEntryID string           `json:"waitlist_entry_id,omitempty"`
	RestaurantID    string           `json:"restaurant_id"`
	Date            string           `json:"date"`
	StartTime       string           `json:"start_time"`
	EndTime         string           `json:"end_time"`
	PartySize       int              `json:"party_size"`
	Status          string           `json:"status,omitempty"`
	CustomerName    string           `json:"customer_name,omitempty"`
	CustomerEmail   string           `json:"customer_email,omitempty"`
	CustomerPhone   string           `json:"customer_phone,omitempty"`
	Reason          string           `json:"reason,omitempty"`
	SentAt          string           `json:"sent_at"`
}

// ReservationNotification builds the payload for a reservation message.
func ReservationNotification(kind NotificationKind, r *model.Reservation, at time.Time) Notification {
	n := Notification{
		Kind:          kind,
		ReservationID: r.ID,
		RestaurantID:  r.RestaurantID,
		Date:          r.Date,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		PartySize:     r.PartySize,
		Status:        string(r.Status),
		CustomerName:  r.CustomerName,
		CustomerEmail: r.CustomerEmail,
		CustomerPhone: r.CustomerPhone,
		SentAt:        at.UTC().Format(time.RFC3339),
	}
	if r.CancellationReason != nil {
		n.Reason = *r.CancellationReason
	}
	return n
}

// OfferNotification builds the payload offering slot to a waitlist entry.
func OfferNotification(e *model.WaitlistEntry, slot FreedSlot, at time.Time) Notification {
	return Notification{
		Kind:            KindWaitlistOffer,
		WaitlistEntryID: e.ID,
		RestaurantID:    e.RestaurantID,
		Date:            e.Date,
		StartTime:       slot.StartTime,
		EndTime:         slot.EndTime,
		PartySize:       e.PartySize,
		Status:          string(e.Status),
		CustomerName:    e.CustomerName,
		CustomerEmail:   e.CustomerEmail,
		CustomerPhone:   e.CustomerPhone,
		SentAt:          at.UTC().Format(time.RFC3339),
	}
}
