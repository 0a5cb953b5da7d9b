package room

import (
	"context"
	"errors"

	"github.com/riffluv/ito-sub004/internal/store"
)

var (
	ErrRoomIDRequired = errors.New("room_id_required")
	ErrRoomNotFound   = errors.New("room_not_found")
	ErrForbidden      = errors.New("forbidden")
	ErrNotWaiting     = errors.New("not_waiting")
	ErrInvalidStatus  = errors.New("invalid_status")
	ErrRateLimited    = errors.New("rate_limited")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrSlotTaken      = errors.New("slot_taken")
	ErrWrongPassword  = errors.New("wrong_password")
)

// IsTransient reports whether an error looks like a transient backend
// failure that is worth one immediate retry. Precondition and authorization
// failures are deterministic and must never be retried blindly.
func IsTransient(err error) bool {
	return errors.Is(err, store.ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}
