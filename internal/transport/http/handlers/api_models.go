package handlers

import (
	"time"

	"github.com/arklim/identity-verification/internal/core/domain"
	"github.com/arklim/identity-verification/internal/usecase"
)

// SuccessResponse wraps every successful payload.
type SuccessResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

func success(data any) SuccessResponse {
	return SuccessResponse{Success: true, Data: data}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserSummary is the public view of a user account.
type UserSummary struct {
	ID             string            `json:"id"`
	OrganizationID int64             `json:"organizationId"`
	Phone          string            `json:"phone,omitempty"`
	Email          string            `json:"email,omitempty"`
	FullName       string            `json:"fullName"`
	Role           domain.UserRole   `json:"role"`
	Status         domain.UserStatus `json:"status"`
	IsActive       bool              `json:"isActive"`
	PhoneVerified  bool              `json:"phoneVerified"`
	EmailVerified  bool              `json:"emailVerified"`
	LastLogin      *time.Time        `json:"lastLogin,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

func newUserSummary(user domain.User) UserSummary {
	return UserSummary{
		ID:             user.ID,
		OrganizationID: user.OrganizationID,
		Phone:          user.Phone,
		Email:          user.Email,
		FullName:       user.FullName,
		Role:           user.Role,
		Status:         user.Status,
		IsActive:       user.IsActive,
		PhoneVerified:  user.PhoneVerified,
		EmailVerified:  user.EmailVerified,
		LastLogin:      user.LastLogin,
		CreatedAt:      user.CreatedAt,
	}
}

// OTPDeliveryResponse describes where a one-time code was sent.
type OTPDeliveryResponse struct {
	Purpose           domain.OTPPurpose     `json:"purpose"`
	Channel           domain.IdentifierKind `json:"channel"`
	Destination       string                `json:"destination"`
	ExpiresAt         time.Time             `json:"expiresAt"`
	RemainingRequests int                   `json:"remainingRequests"`
}

func newOTPDeliveryResponse(d *usecase.OTPDelivery) *OTPDeliveryResponse {
	if d == nil {
		return nil
	}
	return &OTPDeliveryResponse{
		Purpose:           d.Purpose,
		Channel:           d.Channel,
		Destination:       d.Destination,
		ExpiresAt:         d.ExpiresAt,
		RemainingRequests: d.RemainingRequests,
	}
}

// RegisterRequest defines the account registration payload.
type RegisterRequest struct {
	Phone          string `json:"phone"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	FullName       string `json:"fullName"`
	OrganizationID int64  `json:"organizationId"`
	Role           string `json:"role"`
}

// RegisterResponse contains the pending account and the verification delivery.
type RegisterResponse struct {
	User         UserSummary          `json:"user"`
	Verification *OTPDeliveryResponse `json:"verification,omitempty"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Identifier     string `json:"identifier"`
	Password       string `json:"password"`
	OrganizationID *int64 `json:"organizationId,omitempty"`
}

// AuthResponse is returned by login and token refresh.
type AuthResponse struct {
	User         UserSummary `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	TokenType    string      `json:"tokenType"`
	ExpiresIn    int64       `json:"expiresIn"`
}

func newAuthResponse(result *domain.AuthResult) AuthResponse {
	return AuthResponse{
		User:         newUserSummary(result.User),
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    result.ExpiresIn,
	}
}

// SendOTPRequest asks for a new one-time code.
type SendOTPRequest struct {
	Identifier string `json:"identifier"`
	Purpose    string `json:"purpose"`
}

// VerifyOTPRequest submits a one-time code.
type VerifyOTPRequest struct {
	Identifier     string `json:"identifier"`
	Purpose        string `json:"purpose"`
	Code           string `json:"code"`
	OrganizationID *int64 `json:"organizationId,omitempty"`
}

// VerifyOTPResponse reports a successful verification. User is set when the
// code activated an account.
type VerifyOTPResponse struct {
	Verified bool         `json:"verified"`
	User     *UserSummary `json:"user,omitempty"`
}

// ForgotPasswordRequest starts a password reset.
type ForgotPasswordRequest struct {
	Identifier string `json:"identifier"`
}

// ResetPasswordRequest completes a password reset.
type ResetPasswordRequest struct {
	Identifier     string `json:"identifier"`
	Code           string `json:"code"`
	NewPassword    string `json:"newPassword"`
	OrganizationID *int64 `json:"organizationId,omitempty"`
}

// RefreshTokenRequest carries a refresh token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// HealthResponse describes liveness and readiness.
type HealthResponse struct {
	Status    string            `json:"status"`
	StartedAt time.Time         `json:"startedAt"`
	Checks    map[string]string `json:"checks,omitempty"`
}
