package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Notification struct {
	ID        uuid.UUID  `json:"id"`
	UserID    string     `json:"user_id"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Icon      string     `json:"icon,omitempty"`
	Link      string     `json:"link"`
	Channel   string     `json:"channel"` // push, inbox
	CreatedAt time.Time  `json:"created_at"`
	OpenedAt  *time.Time `json:"opened_at,omitempty"`
}

// PushSender delivers a notification to one device token.
type PushSender interface {
	SendToToken(ctx context.Context, token string, title, body, icon, link string) error
}

type Clock interface {
	Now() time.Time
}
