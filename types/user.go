package types

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account that can author posts.
type User struct {
	// ID is the unique identifier of the user, generated at registration.
	ID uuid.UUID `json:"id" db:"id" bson:"_id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username" bson:"username"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash" bson:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at" bson:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at" bson:"updated_at"`
}

// Claims is the identity asserted by a session token.
type Claims struct {
	Username string    `json:"username"`
	UserID   uuid.UUID `json:"id"`

	// IssuedAt is the issuance time in Unix seconds.
	IssuedAt int64 `json:"iat,omitempty"`
}
