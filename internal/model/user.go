package model

import "time"

// Auth providers a user can sign in with.
const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"
)

// User is a registered account.
//
// Email is the owner identity: every category and item partition is keyed
// by it, so it is stored trimmed and lower-cased and is UNIQUE in the DB.
// PasswordHash is empty for accounts created through Google sign-in and is
// never serialized.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Provider     string    `json:"provider"`
	AvatarURL    string    `json:"avatarUrl"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
