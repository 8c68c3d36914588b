package domain

import "time"

// AccountRegisteredEvent represents the payload for auth.account.registered messages.
type AccountRegisteredEvent struct {
	EventID      string
	AccountID    string
	Email        string
	RegisteredAt time.Time
	Metadata     map[string]any
}

// AccountLockedEvent represents the payload for auth.account.locked messages.
type AccountLockedEvent struct {
	EventID        string
	AccountID      string
	FailedAttempts int
	LockedUntil    time.Time
	IPAddress      *string
	LockedAt       time.Time
	Metadata       map[string]any
}

// LoginEvent represents the payload for auth.login.succeeded and auth.login.failed messages.
type LoginEvent struct {
	EventID    string
	AccountID  string
	Succeeded  bool
	Attempt    int
	IPAddress  *string
	UserAgent  *string
	OccurredAt time.Time
	Metadata   map[string]any
}

// PasswordChangedEvent represents the payload for auth.password.changed messages.
type PasswordChangedEvent struct {
	EventID       string
	AccountID     string
	ChangedAt     time.Time
	ChangedBy     string
	TokensRevoked int
	Metadata      map[string]any
}

// PasswordResetRequestedEvent represents the payload for auth.password.reset_requested messages.
type PasswordResetRequestedEvent struct {
	EventID           string
	AccountID         string
	RequestID         string
	RequestedAt       time.Time
	MaskedDestination string
	ExpiresAt         time.Time
	IPAddress         *string
	Metadata          map[string]any
}

// TokenFamilyRevokedEvent represents the payload for auth.token.family_revoked messages.
// Emitted when replay of an already-rotated refresh token is detected.
type TokenFamilyRevokedEvent struct {
	EventID       string
	AccountID     string
	FamilyID      string
	TokensRevoked int
	Reason        string
	RevokedAt     time.Time
	Metadata      map[string]any
}

// SessionRevokedEvent represents the payload for auth.session.revoked messages.
type SessionRevokedEvent struct {
	EventID       string
	AccountID     string
	TokenID       string
	RevokedBy     string
	Reason        string
	TokensRevoked int
	RevokedAt     time.Time
	Metadata      map[string]any
}
