// Package session keeps login sessions server-side in Redis. The browser
// only holds a signed token naming the session id.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"aurelienallenic/api/models"
)

const keyPrefix = "session:"

var ErrNoSession = errors.New("session not found")

// Data is what a session remembers about the signed-in user.
type Data struct {
	UserID    int64       `json:"userId"`
	Email     string      `json:"email"`
	Name      string      `json:"name"`
	Picture   string      `json:"picture"`
	Role      models.Role `json:"role"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Claims is the cookie payload. Expiry is governed by the Redis TTL.
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

type Store struct {
	rdb    *redis.Client
	secret []byte
	ttl    time.Duration
}

func NewStore(rdb *redis.Client, secret string, ttl time.Duration) *Store {
	return &Store{rdb: rdb, secret: []byte(secret), ttl: ttl}
}

// TTL is the rolling lifetime of a session.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Create persists data under a fresh id and returns the cookie token.
func (s *Store) Create(ctx context.Context, data Data) (string, error) {
	id, err := newSessionID()
	if err != nil {
		return "", err
	}
	if data.CreatedAt.IsZero() {
		data.CreatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+id, raw, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}
	return s.sign(id)
}

// Load resolves a cookie token and extends the session TTL.
func (s *Store) Load(ctx context.Context, token string) (*Data, error) {
	id, err := s.parse(token)
	if err != nil {
		return nil, err
	}
	raw, err := s.rdb.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if err := s.rdb.Expire(ctx, keyPrefix+id, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}
	return &data, nil
}

// Destroy removes the session. Unknown or invalid tokens are ignored.
func (s *Store) Destroy(ctx context.Context, token string) error {
	id, err := s.parse(token)
	if err != nil {
		return nil
	}
	if err := s.rdb.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *Store) sign(id string) (string, error) {
	claims := &Claims{
		SessionID: id,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
			Issuer:   "portfolio-api",
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}

func (s *Store) parse(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid || claims.SessionID == "" {
		return "", ErrNoSession
	}
	return claims.SessionID, nil
}

func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
