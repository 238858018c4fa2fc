// Package apperror defines the operational failures returned by the
// booking engine.  These are expected outcomes (a table is taken, a
// restaurant is closed) rather than crashes; the handler layer maps them
// onto HTTP responses through Status.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an operational failure.
type Kind string

const (
	InvalidTimeFormat        Kind = "INVALID_TIME_FORMAT"
	InvalidDateFormat        Kind = "INVALID_DATE_FORMAT"
	InvalidInput             Kind = "INVALID_INPUT"
	RestaurantInactive       Kind = "RESTAURANT_INACTIVE"
	OutsideOperatingHours    Kind = "OUTSIDE_OPERATING_HOURS"
	PeakHourDurationExceeded Kind = "PEAK_HOUR_DURATION_EXCEEDED"
	CapacityMismatch         Kind = "CAPACITY_MISMATCH"
	TableConflict            Kind = "TABLE_CONFLICT"
	NoCapacity               Kind = "NO_CAPACITY"
	InvalidStateTransition   Kind = "INVALID_STATE_TRANSITION"
	NotFound                 Kind = "NOT_FOUND"
)

// HintJoinWaitlist tells the caller it may offer the waitlist instead.
const HintJoinWaitlist = "join_waitlist"

var statusByKind = map[Kind]int{
	InvalidTimeFormat:        http.StatusBadRequest,
	InvalidDateFormat:        http.StatusBadRequest,
	InvalidInput:             http.StatusBadRequest,
	RestaurantInactive:       http.StatusBadRequest,
	OutsideOperatingHours:    http.StatusBadRequest,
	PeakHourDurationExceeded: http.StatusBadRequest,
	CapacityMismatch:         http.StatusBadRequest,
	TableConflict:            http.StatusConflict,
	NoCapacity:               http.StatusConflict,
	InvalidStateTransition:   http.StatusConflict,
	NotFound:                 http.StatusNotFound,
}

// Error is an operational failure.  From and To are set for
// InvalidStateTransition and carry the current status and the attempted
// target.
type Error struct {
	Kind    Kind   `json:"code"`
	Message string `json:"error"`
	Hint    string `json:"hint,omitempty"`
	From    string `json:"current_status,omitempty"`
	To      string `json:"attempted,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Status returns the HTTP status for the failure.
func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New builds an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NoCapacityError reports that no table can take the party and hints at
// the waitlist.
func NoCapacityError(partySize int, date, start string) *Error {
	return &Error{
		Kind:    NoCapacity,
		Message: fmt.Sprintf("no table available for %d guests on %s at %s", partySize, date, start),
		Hint:    HintJoinWaitlist,
	}
}

// TransitionError reports an illegal lifecycle transition.
func TransitionError(entity, from, to string) *Error {
	return &Error{
		Kind:    InvalidStateTransition,
		Message: fmt.Sprintf("cannot %s %s in status %s", to, entity, from),
		From:    from,
		To:      to,
	}
}

// NotFoundError reports an unknown id.
func NotFoundError(entity, id string) *Error {
	return &Error{Kind: NotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err carries an operational failure of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}
