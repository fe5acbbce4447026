package models

import "time"

type AuthMethod string

const (
	AuthMethodEmail  AuthMethod = "email"
	AuthMethodGoogle AuthMethod = "google"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type CreateUserRequest struct {
	Email      string     `json:"email"`
	Password   string     `json:"password"`
	Name       string     `json:"name"`
	AuthMethod AuthMethod `json:"authMethod"`
	Role       Role       `json:"role"`
}

type User struct {
	ID             int64      `json:"id"`
	Email          string     `json:"email"`
	HashedPassword []byte     `json:"-"`
	GoogleID       *string    `json:"-"`
	Name           string     `json:"name"`
	Picture        string     `json:"picture"`
	AuthMethod     AuthMethod `json:"authMethod"`
	Role           Role       `json:"role"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// HasPassword is false for accounts that can only sign in with Google.
func (u *User) HasPassword() bool {
	return len(u.HashedPassword) > 0
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// PublicUser is what login and session checks expose about an account.
type PublicUser struct {
	ID      int64  `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func (u *User) Public() PublicUser {
	name := u.Name
	if name == "" {
		name = u.Email
	}
	return PublicUser{ID: u.ID, Email: u.Email, Name: name, Picture: u.Picture}
}
