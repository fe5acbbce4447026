package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"aurelienallenic/api/models"
)

const userColumns = `id, email, hashed_password, google_id, name, picture, auth_method, role, created_at, updated_at`

type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a new UserStore instance.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// CreateUser inserts user and fills in its id and timestamps.
func (s *UserStore) CreateUser(ctx context.Context, user *models.User) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, hashed_password, google_id, name, picture, auth_method, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, user.Email, nullBytes(user.HashedPassword), user.GoogleID, user.Name, user.Picture,
		string(user.AuthMethod), string(user.Role),
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user with email '%s': %w", user.Email, ErrDuplicate)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return s.scanOne(row, "email")
}

func (s *UserStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return s.scanOne(row, "id")
}

// FindByEmailOrGoogleID prefers the email match when both exist.
func (s *UserStore) FindByEmailOrGoogleID(ctx context.Context, email, googleID string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1 OR ($2 <> '' AND google_id = $2)
		ORDER BY (email = $1) DESC
		LIMIT 1
	`, email, googleID)
	return s.scanOne(row, "email or google id")
}

// UpdateUser writes the mutable profile fields back.
func (s *UserStore) UpdateUser(ctx context.Context, user *models.User) error {
	err := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET google_id = $2, name = $3, picture = $4, auth_method = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, user.ID, user.GoogleID, user.Name, user.Picture, string(user.AuthMethod)).Scan(&user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("google account already linked: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to update user %d: %w", user.ID, err)
	}
	return nil
}

func (s *UserStore) scanOne(row *sql.Row, by string) (*models.User, error) {
	var (
		user     models.User
		googleID sql.NullString
	)
	err := row.Scan(&user.ID, &user.Email, &user.HashedPassword, &googleID, &user.Name, &user.Picture,
		&user.AuthMethod, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by %s: %w", by, err)
	}
	if googleID.Valid {
		user.GoogleID = &googleID.String
	}
	return &user, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
