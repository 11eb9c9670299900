package reminder

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Config is fixed when a scheduler is built.
type Config struct {
	Hour     int
	Minute   int
	Location *time.Location
}

func NewConfig(hour, minute int, loc *time.Location) (Config, error) {
	if hour < 0 || hour > 23 {
		return Config{}, fmt.Errorf("%w: hour %d", ErrInvalidConfig, hour)
	}
	if minute < 0 || minute > 59 {
		return Config{}, fmt.Errorf("%w: minute %d", ErrInvalidConfig, minute)
	}
	if loc == nil {
		loc = time.Local
	}
	return Config{Hour: hour, Minute: minute, Location: loc}, nil
}

func (c Config) String() string {
	return fmt.Sprintf("%02d:%02d %s", c.Hour, c.Minute, c.Location)
}

// UserContext is the display data supplied by the caller. It is persisted
// verbatim and read back when a scheduler is rebuilt without fresh data.
type UserContext struct {
	DisplayName     string          `json:"display_name"`
	Points          decimal.Decimal `json:"points"`
	BusinessName    string          `json:"business_name"`
	BusinessLogoURL *string         `json:"business_logo_url"`
	UserID          *string         `json:"user_id"`
}

type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

func ParsePermission(s string) (Permission, error) {
	switch p := Permission(s); p {
	case PermissionDefault, PermissionGranted, PermissionDenied:
		return p, nil
	}
	return "", fmt.Errorf("unknown permission %q", s)
}

type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateIdle
	StateArmed
	StateFiring
	StateDestroyed
)

var stateNames = [...]string{"uninitialized", "initializing", "idle", "armed", "firing", "destroyed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Capabilities is probed once at boot and handed to every scheduler.
type Capabilities struct {
	SupportsNotifications    bool
	SupportsBackgroundWorker bool
	SupportsPushChannel      bool
}

// Notification is what a delivery strategy shows to the user.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
	Link  string `json:"link"`
	Tag   string `json:"tag,omitempty"`
}

// PushEvent is an inbound push message relayed by a foreground client.
type PushEvent struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
}

// Status is a point-in-time snapshot of a scheduler.
type Status struct {
	UserID        string     `json:"user_id"`
	State         string     `json:"state"`
	Permission    Permission `json:"permission"`
	Channel       string     `json:"channel"`
	HasToken      bool       `json:"has_token"`
	LastFiredDate string     `json:"last_fired_date,omitempty"`
	NextFireAt    *time.Time `json:"next_fire_at,omitempty"`
	FireAt        string     `json:"fire_at"`
}
