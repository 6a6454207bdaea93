package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// NotificationRepository stores in-app notifications.
type NotificationRepository struct {
	db     *DB
	logger *zap.Logger
}

func NewNotificationRepository(db *DB, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{db: db, logger: logger}
}

// CreateNotification inserts notif, assigning an ID if it has none, and
// fills CreatedAt from the database.
func (r *NotificationRepository) CreateNotification(ctx context.Context, notif *Notification) error {
	if notif.ID == uuid.Nil {
		notif.ID = uuid.New()
	}
	if notif.Priority == "" {
		notif.Priority = PriorityNormal
	}

	metadata, err := json.Marshal(notif.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	query := `
		INSERT INTO notifications (
			id, recipient_id, recipient_type, title, message,
			type, priority, link, metadata, read
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10
		)
		RETURNING created_at
	`

	err = r.db.Pool().QueryRow(ctx, query,
		notif.ID,
		notif.RecipientID,
		notif.RecipientType,
		notif.Title,
		notif.Message,
		notif.Type,
		notif.Priority,
		notif.Link,
		metadata,
		notif.Read,
	).Scan(&notif.CreatedAt)
	if err != nil {
		r.logger.Error("failed to create notification",
			zap.Error(err),
			zap.String("notification_id", notif.ID.String()),
		)
		return fmt.Errorf("insert notification: %w", err)
	}

	r.logger.Debug("notification created",
		zap.String("notification_id", notif.ID.String()),
		zap.String("recipient_id", notif.RecipientID),
	)
	return nil
}

// ListByRecipient returns the newest notifications of a recipient first.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]*Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT id, recipient_id, recipient_type, title, message,
			type, priority, COALESCE(link, ''), metadata, read, created_at
		FROM notifications
		WHERE recipient_id = $1 AND (NOT $2 OR read = false)
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.db.Pool().Query(ctx, query, recipientID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		var (
			n        Notification
			metadata []byte
		)
		if err := rows.Scan(
			&n.ID, &n.RecipientID, &n.RecipientType, &n.Title, &n.Message,
			&n.Type, &n.Priority, &n.Link, &metadata, &n.Read, &n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of %s: %w", n.ID, err)
			}
		}
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}

// MarkRead flags a notification as read. It returns ErrNotFound for an
// unknown id.
func (r *NotificationRepository) MarkRead(ctx context.Context, id uuid.UUID) error {
	var readID uuid.UUID
	err := r.db.Pool().QueryRow(ctx,
		`UPDATE notifications SET read = true WHERE id = $1 RETURNING id`, id,
	).Scan(&readID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}
