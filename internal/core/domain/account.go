package domain

import "time"

// AccountStatus enumerates possible account states.
type AccountStatus string

const (
	AccountStatusActive  AccountStatus = "active"
	AccountStatusBlocked AccountStatus = "blocked"
)

// Roles assigned to accounts at creation.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Account mirrors the persisted representation in the accounts table.
type Account struct {
	ID                 string
	Email              string
	PasswordHash       *string
	Role               string
	Status             AccountStatus
	IsVerified         bool
	TwoFactorEnabled   bool
	FailedAttempts     int
	LockedUntil        *time.Time
	TwoFactorCodeHash  *string
	TwoFactorExpiresAt *time.Time
	ResetTokenHash     *string
	ResetExpiresAt     *time.Time
	LastPasswordChange time.Time
	LastLoginAt        *time.Time
	TermsAccepted      bool
	CreatedAt          time.Time
	DeletedAt          *time.Time
}

// IsDeleted reports whether the account has been soft-deleted.
func (a Account) IsDeleted() bool {
	return a.DeletedAt != nil
}

// IsLocked reports whether the lockout window is still in effect at the given instant.
func (a Account) IsLocked(at time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(at)
}

// LockRemaining returns how long the lockout window has left at the given instant.
func (a Account) LockRemaining(at time.Time) time.Duration {
	if !a.IsLocked(at) {
		return 0
	}
	return a.LockedUntil.Sub(at)
}

// HasPassword reports whether the account carries a local credential.
// Social-only accounts have none and can never pass password verification.
func (a Account) HasPassword() bool {
	return a.PasswordHash != nil && *a.PasswordHash != ""
}

// Profile holds the display attributes created alongside an account.
type Profile struct {
	AccountID string
	Name      string
	CreatedAt time.Time
}

// PasswordHistoryEntry tracks historical password hashes for reuse prevention.
type PasswordHistoryEntry struct {
	ID           string
	AccountID    string
	PasswordHash string
	CreatedAt    time.Time
}

// ActivityRecord captures an auditable action performed against an account.
// Records are written in the same transaction as the state change they describe.
type ActivityRecord struct {
	ID            string
	AccountID     string
	Action        string
	IPAddress     *string
	DeviceDetails *string
	Details       map[string]any
	CreatedAt     time.Time
}

// Activity actions recorded by the authentication flows.
const (
	ActivityLogin           = "LOGIN"
	ActivityLoginFailed     = "LOGIN_FAILED"
	ActivityAccountLocked   = "ACCOUNT_LOCKED"
	ActivityRegister        = "REGISTER"
	ActivityPasswordChanged = "PASSWORD_CHANGED"
	ActivityPasswordReset   = "PASSWORD_RESET"
	ActivityTwoFactorIssued = "TWO_FACTOR_ISSUED"
	ActivityLogout          = "LOGOUT"
	ActivityLogoutAll       = "LOGOUT_ALL"
)
