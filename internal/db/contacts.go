package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ContactRepository reads recipient contact details. A recipient without a
// row, or with a NULL column, has no such contact.
type ContactRepository struct {
	db     *DB
	logger *zap.Logger
}

func NewContactRepository(db *DB, logger *zap.Logger) *ContactRepository {
	return &ContactRepository{db: db, logger: logger}
}

func (r *ContactRepository) Email(ctx context.Context, recipientID, recipientType string) (string, error) {
	return r.lookup(ctx, "email", recipientID, recipientType)
}

func (r *ContactRepository) Phone(ctx context.Context, recipientID, recipientType string) (string, error) {
	return r.lookup(ctx, "phone", recipientID, recipientType)
}

func (r *ContactRepository) PushEndpoint(ctx context.Context, recipientID, recipientType string) (string, error) {
	return r.lookup(ctx, "push_endpoint", recipientID, recipientType)
}

// Upsert stores the contact details of a recipient. Empty values clear the
// column.
func (r *ContactRepository) Upsert(ctx context.Context, recipientID, recipientType, email, phone, pushEndpoint string) error {
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO recipient_contacts (recipient_id, recipient_type, email, phone, push_endpoint)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''))
		ON CONFLICT (recipient_type, recipient_id) DO UPDATE SET
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			push_endpoint = EXCLUDED.push_endpoint,
			updated_at = NOW()
	`, recipientID, recipientType, email, phone, pushEndpoint)
	if err != nil {
		return fmt.Errorf("upsert contacts of %s %s: %w", recipientType, recipientID, err)
	}
	return nil
}

// column is one of a fixed set, never user input.
func (r *ContactRepository) lookup(ctx context.Context, column, recipientID, recipientType string) (string, error) {
	query := fmt.Sprintf(
		`SELECT COALESCE(%s, '') FROM recipient_contacts WHERE recipient_type = $1 AND recipient_id = $2`,
		column,
	)

	var v string
	err := r.db.Pool().QueryRow(ctx, query, recipientType, recipientID).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		r.logger.Warn("contact lookup failed",
			zap.String("column", column),
			zap.String("recipient_id", recipientID),
			zap.Error(err),
		)
		return "", fmt.Errorf("lookup %s: %w", column, err)
	}
	return v, nil
}
