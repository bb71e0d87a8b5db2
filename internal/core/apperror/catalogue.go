package apperror

import "net/http"

// Code is the stable machine-readable identifier of a failure.
type Code string

// Category groups codes by the kind of failure.
type Category string

// Severity ranks how serious a failure is for operators.
type Severity string

const (
	CategoryAuthentication Category = "authentication"
	CategoryValidation     Category = "validation"
	CategoryBusiness       Category = "business"
	CategorySystem         Category = "system"
	CategoryPermission     Category = "permission"
)

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

const (
	// authentication
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeAccountLocked      Code = "ACCOUNT_LOCKED"
	CodeAccountSuspended   Code = "ACCOUNT_SUSPENDED"
	CodeNotVerified        Code = "NOT_VERIFIED"
	CodeInvalidToken       Code = "INVALID_TOKEN"

	// validation
	CodeInvalidIdentifier    Code = "INVALID_IDENTIFIER"
	CodeWeakPassword         Code = "WEAK_PASSWORD"
	CodeInvalidOTPFormat     Code = "INVALID_OTP_FORMAT"
	CodeRequiredFieldMissing Code = "REQUIRED_FIELD_MISSING"
	CodeFieldTooShort        Code = "FIELD_TOO_SHORT"

	// business
	CodeUserAlreadyExists Code = "USER_ALREADY_EXISTS"
	CodeResourceNotFound  Code = "RESOURCE_NOT_FOUND"
	CodeOTPNotFound       Code = "OTP_NOT_FOUND"
	CodeOTPExpired        Code = "OTP_EXPIRED"
	CodeOTPMaxAttempts    Code = "OTP_MAX_ATTEMPTS"
	CodeOTPInvalid        Code = "OTP_INVALID"
	CodeRateLimited       Code = "RATE_LIMITED"
	CodeDeliveryFailed    Code = "DELIVERY_FAILED"

	// system
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
	CodeInternal           Code = "INTERNAL_ERROR"

	// permission
	CodePermissionDenied Code = "PERMISSION_DENIED"
)

// Descriptor holds the fixed attributes of a taxonomy entry.
type Descriptor struct {
	Message    string
	Category   Category
	Severity   Severity
	HTTPStatus int
	Retryable  bool
	Suggestion string
}

var catalogue = map[Code]Descriptor{
	CodeInvalidCredentials: {
		Message:    "invalid credentials",
		Category:   CategoryAuthentication,
		Severity:   SeverityMedium,
		HTTPStatus: http.StatusUnauthorized,
		Retryable:  true,
		Suggestion: "Check your login details and try again.",
	},
	CodeAccountLocked: {
		Message:    "account temporarily locked",
		Category:   CategoryAuthentication,
		Severity:   SeverityHigh,
		HTTPStatus: http.StatusLocked,
		Retryable:  false,
		Suggestion: "The account is temporarily locked. Try again in 30 minutes.",
	},
	CodeAccountSuspended: {
		Message:    "account suspended",
		Category:   CategoryAuthentication,
		Severity:   SeverityHigh,
		HTTPStatus: http.StatusForbidden,
		Retryable:  false,
		Suggestion: "The account has been suspended. Contact an administrator.",
	},
	CodeNotVerified: {
		Message:    "identifier not verified",
		Category:   CategoryAuthentication,
		Severity:   SeverityMedium,
		HTTPStatus: http.StatusForbidden,
		Retryable:  false,
		Suggestion: "Verify your phone number or email before logging in.",
	},
	CodeInvalidToken: {
		Message:    "invalid token",
		Category:   CategoryAuthentication,
		Severity:   SeverityMedium,
		HTTPStatus: http.StatusUnauthorized,
		Retryable:  false,
		Suggestion: "Log in again.",
	},
	CodeInvalidIdentifier: {
		Message:    "invalid identifier format",
		Category:   CategoryValidation,
		Severity:   SeverityLow,
		HTTPStatus: http.StatusBadRequest,
		Retryable:  true,
		Suggestion: "Phone numbers must look like +84xxxxxxxxx or 0xxxxxxxxx; emails like name@example.com.",
	},
	CodeWeakPassword: {
		Message:    "password does not meet complexity requirements",
		Category:   CategoryValidation,
		Severity:   SeverityLow,
		HTTPStatus: http.StatusBadRequest,
		Retryable:  true,
		Suggestion: "Use at least 8 characters mixing letters and digits.",
	},
	CodeInvalidOTPFormat: {
		Message:    "invalid verification code format",
		Category:   CategoryValidation,
		Severity:   SeverityLow,
		HTTPStatus: http.StatusBadRequest,
		Retryable:  true,
		Suggestion: "Enter the numeric code exactly as received.",
	},
	CodeRequiredFieldMissing: {
		Message:    "required field missing",
		Category:   CategoryValidation,
		Severity:   SeverityLow,
		HTTPStatus: http.StatusBadRequest,
		Retryable:  true,
		Suggestion: "Fill in every required field.",
	},
	CodeFieldTooShort: {
		Message:    "field too short",
		Category:   CategoryValidation,
		Severity:   SeverityLow,
		HTTPStatus: http.StatusBadRequest,
		Retryable:  true,
		Suggestion: "Provide a longer value.",
	},
	CodeUserAlreadyExists: {
		Message:    "user already exists",
		Category:   CategoryBusiness,
		Severity:   SeverityMedium,
		HTTPStatus: http.StatusConflict,
		Retryable:  false,
		Suggestion: "This identifier is already registered. Log in or use another one.",
	},
	CodeResourceNotFound: {
		Message:    "resource not found",
		Category:   CategoryBusiness,
		Severity:   SeverityMedium,
		HTTPStatus: http.StatusNotFound,
		Retryable:  false,
		Suggestion: "The requested data could not be found.",
	},
	CodeOTPNotFound: {
		Message:    "verification code not found or expired",
		Category:   CategoryBusiness,
		Severity:   SeverityMedium,
		HTTPStatus: http.StatusBadRequest,
		Retryable:  false,
		Suggestion: "Request a new verification code.",
	},
	CodeOTPExpired: {
		Message:    "verification code expired",
		Category:   CategoryBusiness,
		Severity:   SeverityMedium,
		HTTPStatus: http.StatusBadRequest,
		Retryable:  false,
		Suggestion: "The code has expired. Request a new one.",
	},
	CodeOTPMaxAttempts: {
		Message:    "maximum verification attempts exceeded",
		Category:   CategoryBusiness,
		Severity:   SeverityHigh,
		HTTPStatus: http.StatusBadRequest,
		Retryable:  false,
		Suggestion: "Too many wrong codes. Request a new one.",
	},
	CodeOTPInvalid: {
		Message:    "verification code invalid",
		Category:   CategoryBusiness,
		Severity:   SeverityMedium,
		HTTPStatus: http.StatusBadRequest,
		Retryable:  true,
		Suggestion: "Check the code and try again.",
	},
	CodeRateLimited: {
		Message:    "too many requests",
		Category:   CategoryBusiness,
		Severity:   SeverityHigh,
		HTTPStatus: http.StatusTooManyRequests,
		Retryable:  false,
		Suggestion: "You requested too many codes. Try again later.",
	},
	CodeDeliveryFailed: {
		Message:    "message delivery failed",
		Category:   CategoryBusiness,
		Severity:   SeverityHigh,
		HTTPStatus: http.StatusBadGateway,
		Retryable:  true,
		Suggestion: "The message could not be sent. Check the destination and try again.",
	},
	CodeStorageUnavailable: {
		Message:    "storage unavailable",
		Category:   CategorySystem,
		Severity:   SeverityCritical,
		HTTPStatus: http.StatusServiceUnavailable,
		Retryable:  true,
		Suggestion: "The service is temporarily unavailable. Try again in a few minutes.",
	},
	CodeInternal: {
		Message:    "internal error",
		Category:   CategorySystem,
		Severity:   SeverityCritical,
		HTTPStatus: http.StatusInternalServerError,
		Retryable:  true,
		Suggestion: "Something went wrong on our side. Try again in a few minutes.",
	},
	CodePermissionDenied: {
		Message:    "permission denied",
		Category:   CategoryPermission,
		Severity:   SeverityHigh,
		HTTPStatus: http.StatusForbidden,
		Retryable:  false,
		Suggestion: "You are not allowed to perform this action.",
	},
}

// Lookup returns the descriptor for code, falling back to INTERNAL_ERROR.
func Lookup(code Code) Descriptor {
	if d, ok := catalogue[code]; ok {
		return d
	}
	return catalogue[CodeInternal]
}

// Known reports whether code belongs to the taxonomy.
func Known(code Code) bool {
	_, ok := catalogue[code]
	return ok
}
