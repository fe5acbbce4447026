package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"aurelienallenic/api/models"
)

// CVStore keeps the single CV row (id = 1).
type CVStore struct {
	db *sql.DB
}

func NewCVStore(db *sql.DB) *CVStore {
	return &CVStore{db: db}
}

func (s *CVStore) GetCV(ctx context.Context) (*models.Cv, error) {
	var cv models.Cv
	err := s.db.QueryRowContext(ctx, `
		SELECT image_webp_fr, image_webp_en, pdf_fr, pdf_en, created_at, updated_at
		FROM cvs WHERE id = 1
	`).Scan(&cv.ImageWebpFr, &cv.ImageWebpEn, &cv.PdfFr, &cv.PdfEn, &cv.CreatedAt, &cv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cv: %w", err)
	}
	return &cv, nil
}

func (s *CVStore) UpsertCV(ctx context.Context, cv *models.Cv) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cvs (id, image_webp_fr, image_webp_en, pdf_fr, pdf_en)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			image_webp_fr = EXCLUDED.image_webp_fr,
			image_webp_en = EXCLUDED.image_webp_en,
			pdf_fr = EXCLUDED.pdf_fr,
			pdf_en = EXCLUDED.pdf_en,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`, cv.ImageWebpFr, cv.ImageWebpEn, cv.PdfFr, cv.PdfEn).Scan(&cv.CreatedAt, &cv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert cv: %w", err)
	}
	return nil
}

func (s *CVStore) DeleteCV(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cvs WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("failed to delete cv: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete cv: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MessageStore archives contact form submissions. Values are stored exactly
// as given; encryption happens in the caller.
type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

func (s *MessageStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (id, email, message, sent, error)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, msg.ID, msg.Email, msg.Body, msg.Sent, msg.Error).Scan(&msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (s *MessageStore) ListMessages(ctx context.Context) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, message, sent, error, created_at, updated_at
		FROM messages
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return out, nil
}

func (s *MessageStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, message, sent, error, created_at, updated_at
		FROM messages WHERE id = $1
	`, id)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return msg, err
}

func (s *MessageStore) DeleteMessage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete message %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete message %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		msg     models.Message
		errText sql.NullString
	)
	if err := row.Scan(&msg.ID, &msg.Email, &msg.Body, &msg.Sent, &errText, &msg.CreatedAt, &msg.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	if errText.Valid {
		msg.Error = &errText.String
	}
	return &msg, nil
}
