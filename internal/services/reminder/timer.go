package reminder

import (
	"time"

	domain "github.com/NordCoder/Puntos/internal/domain/reminder"
)

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// AfterFunc is the production TimerFactory.
func AfterFunc(d time.Duration, f func()) domain.Timer { return time.AfterFunc(d, f) }
