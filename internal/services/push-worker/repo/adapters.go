package repo

import (
	"context"
	"errors"

	"github.com/NordCoder/Puntos/internal/domain/notification"
)

// Inbox stores worker-delivered notifications. A redelivered request maps to
// the same id, so a duplicate means the work is already done.
type Inbox struct{ R notification.Repo }

func (a Inbox) Save(ctx context.Context, n *notification.Notification) (stored bool, err error) {
	err = a.R.Create(ctx, n)
	if errors.Is(err, notification.ErrDuplicate) {
		return false, nil
	}
	return err == nil, err
}
