package notification

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("notification not found")
	ErrDuplicate = errors.New("notification already stored")
)

type Repo interface {
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Notification, error)
	// MarkOpened stamps opened_at once and returns the stored record.
	MarkOpened(ctx context.Context, id uuid.UUID) (*Notification, error)
}
