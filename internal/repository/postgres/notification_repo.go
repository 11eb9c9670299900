package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/NordCoder/Puntos/internal/domain/notification"
)

var _ notification.Repo = (*NotificationRepoImpl)(nil)

type NotificationRepoImpl struct{ db *DB }

func NewNotificationRepo(db *DB) *NotificationRepoImpl { return &NotificationRepoImpl{db: db} }

const (
	qNotifInsert = `
INSERT INTO notifications (id, user_id, title, body, icon, link, channel, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))
RETURNING created_at;
`
	qNotifByUser = `
SELECT id, user_id, title, body, icon, link, channel, created_at, opened_at
FROM notifications
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2;
`
	qNotifOpen = `
UPDATE notifications
SET opened_at = COALESCE(opened_at, now())
WHERE id = $1
RETURNING id, user_id, title, body, icon, link, channel, created_at, opened_at;
`
)

func (r *NotificationRepoImpl) Create(ctx context.Context, n *notification.Notification) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	var createdAt any
	if !n.CreatedAt.IsZero() {
		createdAt = n.CreatedAt
	}
	err := r.db.Pool.QueryRow(ctx, qNotifInsert,
		n.ID,
		n.UserID,
		n.Title,
		n.Body,
		n.Icon,
		n.Link,
		n.Channel,
		createdAt,
	).Scan(&n.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return notification.ErrDuplicate
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *NotificationRepoImpl) ListByUser(ctx context.Context, userID string, limit int) ([]*notification.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qNotifByUser, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	out := make([]*notification.Notification, 0, limit)
	for rows.Next() {
		var n notification.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.Icon, &n.Link, &n.Channel, &n.CreatedAt, &n.OpenedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *NotificationRepoImpl) MarkOpened(ctx context.Context, id uuid.UUID) (*notification.Notification, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var n notification.Notification
	err := r.db.Pool.QueryRow(ctx, qNotifOpen, id).
		Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.Icon, &n.Link, &n.Channel, &n.CreatedAt, &n.OpenedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, notification.ErrNotFound
		}
		return nil, fmt.Errorf("open notification: %w", err)
	}
	return &n, nil
}
