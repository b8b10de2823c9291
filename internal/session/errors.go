package session

import (
	"errors"
	"fmt"
)

var (
	// ErrDayAlreadyAdvanced is returned when the stored day no longer matches
	// the day the caller expected to advance from.
	ErrDayAlreadyAdvanced = errors.New("day already advanced")
	// ErrUnexpectedPhase is returned when a transition is attempted from a
	// phase it does not start from.
	ErrUnexpectedPhase = errors.New("unexpected phase")
)

// Reason identifies why a command was rejected.
type Reason string

const (
	ReasonRoomNotFound       Reason = "room_not_found"
	ReasonRoomNotWaiting     Reason = "room_not_waiting"
	ReasonRoomNotPlaying     Reason = "room_not_playing"
	ReasonRoomFull           Reason = "room_full"
	ReasonUsernameTaken      Reason = "username_taken"
	ReasonInvalidUsername    Reason = "invalid_username"
	ReasonNotHost            Reason = "not_host"
	ReasonNotEnoughPlayers   Reason = "not_enough_players"
	ReasonPlayerNotFound     Reason = "player_not_found"
	ReasonWrongPhase         Reason = "wrong_phase"
	ReasonResetNotAllowed    Reason = "reset_not_allowed"
	ReasonUnknownVehicle     Reason = "unknown_vehicle"
	ReasonUnknownPart        Reason = "unknown_part"
	ReasonUnknownTrack       Reason = "unknown_track"
	ReasonVehicleLocked      Reason = "vehicle_locked"
	ReasonVehicleNotInGarage Reason = "vehicle_not_in_garage"
	ReasonInsufficientFunds  Reason = "insufficient_funds"
	ReasonAlreadyOwned       Reason = "already_owned"
	ReasonOutOfStock         Reason = "out_of_stock"
	ReasonShopLocked         Reason = "shop_locked"
	ReasonShopVisitLocked    Reason = "shop_visit_locked"
	ReasonEmptyMessage       Reason = "empty_message"
	ReasonMessageTooLong     Reason = "message_too_long"
)

// Rejection is a validation failure the acting user can correct. State is
// unchanged when a command returns one.
type Rejection struct {
	Reason Reason
	Detail string
	Err    error
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

func reject(reason Reason, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// IsRejection reports whether err carries a Rejection and returns it.
func IsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
