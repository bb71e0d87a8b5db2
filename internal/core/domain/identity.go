package domain

import "time"

// UserStatus enumerates possible account states.
type UserStatus string

const (
	UserStatusPending   UserStatus = "pending"
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusInactive  UserStatus = "inactive"
)

// UserRole enumerates the roles a user may hold inside an organization.
type UserRole string

const (
	UserRoleAdmin   UserRole = "admin"
	UserRoleStaff   UserRole = "staff"
	UserRoleVisitor UserRole = "visitor"
)

// Valid reports whether the role is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleAdmin, UserRoleStaff, UserRoleVisitor:
		return true
	}
	return false
}

// IdentifierKind selects which contact attribute identifies the user.
type IdentifierKind string

const (
	IdentifierPhone IdentifierKind = "phone"
	IdentifierEmail IdentifierKind = "email"
)

// User mirrors the persisted representation in the users table.
type User struct {
	ID             string
	OrganizationID int64
	Phone          string
	Email          string
	FullName       string
	PasswordHash   string
	Role           UserRole
	Status         UserStatus
	IsActive       bool
	PhoneVerified  bool
	EmailVerified  bool
	LoginAttempts  int
	LockedUntil    *time.Time
	LastLogin      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsLocked reports whether the lockout window is still in force at now.
// A past-dated LockedUntil counts as unlocked even if it was never cleared.
func (u User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// Verified reports whether the contact attribute of the given kind was verified.
func (u User) Verified(kind IdentifierKind) bool {
	if kind == IdentifierEmail {
		return u.EmailVerified
	}
	return u.PhoneVerified
}

// Identifier returns the contact attribute of the given kind.
func (u User) Identifier(kind IdentifierKind) string {
	if kind == IdentifierEmail {
		return u.Email
	}
	return u.Phone
}

// CanLogin applies every eligibility rule except the password check.
func (u User) CanLogin(kind IdentifierKind, now time.Time) bool {
	return u.IsActive &&
		u.Status == UserStatusActive &&
		!u.IsLocked(now) &&
		u.Verified(kind)
}

// Sanitized returns a copy safe to hand back to callers.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	return u
}

// UserPatch lists the mutable user columns; nil fields are left untouched.
type UserPatch struct {
	FullName      *string
	Email         *string
	Role          *UserRole
	Status        *UserStatus
	IsActive      *bool
	PhoneVerified *bool
	EmailVerified *bool
}

// AuthResult is returned by successful login and token refresh.
type AuthResult struct {
	User         User
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// Registration captures the input required to create an account.
type Registration struct {
	Phone          string
	Email          string
	Password       string
	FullName       string
	OrganizationID int64
	Role           UserRole
}

// Credentials captures the input required to log in.
type Credentials struct {
	Identifier     string
	Password       string
	OrganizationID *int64
}
