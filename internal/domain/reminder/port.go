package reminder

import (
	"context"
	"time"
)

type Clock interface {
	Now() time.Time
}

// Timer is a pending single-shot callback.
type Timer interface {
	Stop() bool
}

// TimerFactory arms f to run once after d.
type TimerFactory func(d time.Duration, f func()) Timer

// TokenSink receives freshly established delivery tokens.
type TokenSink interface {
	SendTokenToServer(ctx context.Context, userID, token string) error
}
