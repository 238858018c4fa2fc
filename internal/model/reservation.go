package model

import "time"

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "PENDING"
	StatusConfirmed ReservationStatus = "CONFIRMED"
	StatusSeated    ReservationStatus = "SEATED"
	StatusCompleted ReservationStatus = "COMPLETED"
	StatusCancelled ReservationStatus = "CANCELLED"
	StatusNoShow    ReservationStatus = "NO_SHOW"
)

// AllReservationStatuses lists every lifecycle state.
var AllReservationStatuses = []ReservationStatus{
	StatusPending, StatusConfirmed, StatusSeated, StatusCompleted, StatusCancelled, StatusNoShow,
}

// ActiveReservationStatuses are the states that hold a table.
var ActiveReservationStatuses = []ReservationStatus{StatusPending, StatusConfirmed, StatusSeated}

// Action names a lifecycle transition.
type Action string

const (
	ActionConfirm  Action = "confirm"
	ActionSeat     Action = "seat"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
	ActionNoShow   Action = "no-show"
)

// AllActions lists every lifecycle transition.
var AllActions = []Action{ActionConfirm, ActionSeat, ActionComplete, ActionCancel, ActionNoShow}

var reservationTransitions = map[ReservationStatus]map[Action]ReservationStatus{
	StatusPending: {
		ActionConfirm: StatusConfirmed,
		ActionCancel:  StatusCancelled,
		ActionNoShow:  StatusNoShow,
	},
	StatusConfirmed: {
		ActionSeat:   StatusSeated,
		ActionCancel: StatusCancelled,
		ActionNoShow: StatusNoShow,
	},
	StatusSeated: {
		ActionComplete: StatusCompleted,
	},
}

// Next returns the state reached by applying a to s.  ok is false when the
// transition is not legal from s; terminal states accept no action.
func (s ReservationStatus) Next(a Action) (next ReservationStatus, ok bool) {
	next, ok = reservationTransitions[s][a]
	return next, ok
}

// IsActive reports whether a reservation in this state holds its table.
func (s ReservationStatus) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusSeated
}

// IsTerminal reports whether no further transitions are possible.
func (s ReservationStatus) IsTerminal() bool {
	return len(reservationTransitions[s]) == 0
}

// Valid reports whether s is a known status.
func (s ReservationStatus) Valid() bool {
	for _, v := range AllReservationStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Reservation is a time-bound hold on one table.
//
// Fields:
//  ID                 – primary key identifier (UUID).
//  RestaurantID       – restaurant the booking belongs to.
//  TableID            – table being held.
//  PartySize          – number of guests.
//  Date               – service day "YYYY-MM-DD".
//  StartTime, EndTime – wall-clock "HH:MM"; EndTime wraps past midnight.
//  StartMinute        – minutes from the service day's midnight to the start;
//                       post-midnight starts of a late-closing restaurant are >= 1440.
//  EndMinute          – StartMinute + DurationMinutes.
//  DurationMinutes    – length of the booking.
//  Status             – lifecycle state.
//  SeriesID           – recurring series that materialized this booking, if any.
type Reservation struct {
	ID                 string            `json:"id"`
	RestaurantID       string            `json:"restaurant_id"`
	TableID            string            `json:"table_id"`
	PartySize          int               `json:"party_size"`
	Date               string            `json:"date"`
	StartTime          string            `json:"start_time"`
	EndTime            string            `json:"end_time"`
	StartMinute        int               `json:"-"`
	EndMinute          int               `json:"-"`
	DurationMinutes    int               `json:"duration_minutes"`
	Status             ReservationStatus `json:"status"`
	CustomerName       string            `json:"customer_name,omitempty"`
	CustomerEmail      string            `json:"customer_email,omitempty"`
	CustomerPhone      string            `json:"customer_phone,omitempty"`
	SpecialRequests    string            `json:"special_requests,omitempty"`
	SeriesID           *string           `json:"series_id,omitempty"`
	ConfirmedAt        *time.Time        `json:"confirmed_at,omitempty"`
	SeatedAt           *time.Time        `json:"seated_at,omitempty"`
	CompletedAt        *time.Time        `json:"completed_at,omitempty"`
	CancelledAt        *time.Time        `json:"cancelled_at,omitempty"`
	CancellationReason *string           `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// CanBeModified reports whether the booking's details may still change.
func (r *Reservation) CanBeModified() bool {
	return r.Status == StatusPending || r.Status == StatusConfirmed
}

// CanBeCancelled reports whether the booking may be cancelled.
func (r *Reservation) CanBeCancelled() bool {
	return r.Status == StatusPending || r.Status == StatusConfirmed
}
