package domain

import "time"

// UserRegisteredEvent represents the payload for identity.user.registered messages.
type UserRegisteredEvent struct {
	EventID        string
	UserID         string
	OrganizationID int64
	MaskedPhone    string
	Role           UserRole
	Status         UserStatus
	RegisteredAt   time.Time
}

// UserVerifiedEvent represents the payload for identity.user.verified messages.
type UserVerifiedEvent struct {
	EventID    string
	UserID     string
	Purpose    OTPPurpose
	VerifiedAt time.Time
}

// AccountLockedEvent represents the payload for identity.account.locked messages.
type AccountLockedEvent struct {
	EventID       string
	UserID        string
	LoginAttempts int
	LockedUntil   time.Time
}

// PasswordResetEvent represents the payload for identity.user.password.reset messages.
type PasswordResetEvent struct {
	EventID string
	UserID  string
	ResetAt time.Time
}
