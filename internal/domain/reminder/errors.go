package reminder

import "errors"

var (
	ErrInvalidConfig              = errors.New("invalid scheduler config")
	ErrPermissionDenied           = errors.New("notification permission denied")
	ErrChannelUnavailable         = errors.New("background delivery channel unavailable")
	ErrNotificationDeliveryFailed = errors.New("notification delivery failed")
	ErrNotUserInitiated           = errors.New("permission prompt requires a user-initiated context")
	ErrDestroyed                  = errors.New("scheduler destroyed")
	ErrNoContext                  = errors.New("no user context supplied or persisted")
)
