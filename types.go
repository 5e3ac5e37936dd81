package kvauth

import (
	"context"
	"time"
)

// UserStatus is the lifecycle state of a user record.
type UserStatus string

const (
	UserActive  UserStatus = "active"
	UserDeleted UserStatus = "deleted"
	UserBlocked UserStatus = "blocked"
)

// User is the directory view of an account.
type User struct {
	ID          string
	Username    string
	DisplayName string
	Email       string
	AvatarURL   string
	Status      UserStatus
	CreatedAt   time.Time
}

// Active reports whether u may sign in.
func (u *User) Active() bool {
	return u != nil && u.Status == UserActive
}

// NewUser describes a user to create together with its first linked
// provider account.
type NewUser struct {
	ID                string
	Email             string
	Username          string
	DisplayName       string
	AvatarURL         string
	Provider          string
	ProviderAccountID string
}

// UserDirectory is the user store consulted during sign-in and by the
// session guards. Lookups return (nil, nil) when nothing matches.
type UserDirectory interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByID(ctx context.Context, id string) (*User, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	// CreateUser inserts the user and its provider account atomically and
	// returns the user id.
	CreateUser(ctx context.Context, u NewUser) (string, error)
	UpdateProfile(ctx context.Context, userID, displayName, avatarURL string) error
	HasProvider(ctx context.Context, userID, provider string) (bool, error)
	LinkProvider(ctx context.Context, userID, provider, providerAccountID string) error
	DeleteUser(ctx context.Context, userID string) error
}
