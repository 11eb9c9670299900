package kafka

import (
	"context"
	"time"
)

// ReminderRequest asks the push worker to raise a notification on the
// scheduler's behalf.
type ReminderRequest struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Icon        string    `json:"icon,omitempty"`
	Link        string    `json:"link"`
	Token       string    `json:"token,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

type ReminderEvents interface {
	PublishReminderRequested(ctx context.Context, req ReminderRequest) error
}
