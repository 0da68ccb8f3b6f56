package models

import "time"

// User represents an account that owns templates, sender identities
// and campaigns.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// EmailConfig is a sender identity: one SMTP app password per
// (user, sender address), sealed at rest. SealedPassword is the
// hex-encoded nonce|ciphertext|tag blob produced by secrets.Box.
type EmailConfig struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	SenderEmail    string    `json:"sender_email"`
	SealedPassword string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Session is a logged-in browser session.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
