package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/identity-verification/internal/core/domain"
	"github.com/arklim/identity-verification/internal/usecase"
)

// AuthService is the identity verification surface exposed over HTTP.
type AuthService interface {
	Register(ctx context.Context, input domain.Registration) (*usecase.RegistrationResult, error)
	Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error)
	SendOTP(ctx context.Context, identifier string, purpose domain.OTPPurpose) (*usecase.OTPDelivery, error)
	VerifyOTP(ctx context.Context, identifier string, purpose domain.OTPPurpose, code string, organizationID *int64) (*domain.User, error)
	ForgotPassword(ctx context.Context, identifier string) (string, error)
	ResetPassword(ctx context.Context, identifier, code, newPassword string, organizationID *int64) error
	RefreshToken(ctx context.Context, refreshToken string) (*domain.AuthResult, error)
	ValidateToken(ctx context.Context, accessToken string) (*domain.User, error)
}

var _ AuthService = (*usecase.AuthService)(nil)

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth   AuthService
	logger *zap.Logger
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth AuthService, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{auth: auth, logger: logger}
}

// RouteLimits holds optional per-endpoint throttling middleware.
type RouteLimits struct {
	Login          gin.HandlerFunc
	PasswordForgot gin.HandlerFunc
}

// RegisterRoutes binds authentication routes.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, requireAuth gin.HandlerFunc, limits RouteLimits) {
	r.POST("/register", h.Register)
	r.POST("/login", chain(limits.Login, h.Login)...)
	r.POST("/otp/send", h.SendOTP)
	r.POST("/otp/verify", h.VerifyOTP)
	r.POST("/password/forgot", chain(limits.PasswordForgot, h.ForgotPassword)...)
	r.POST("/password/reset", h.ResetPassword)
	r.POST("/token/refresh", h.RefreshToken)
	r.GET("/me", requireAuth, h.Me)
}

func chain(limit gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	if limit == nil {
		return []gin.HandlerFunc{handler}
	}
	return []gin.HandlerFunc{limit, handler}
}

// Login authenticates an identifier and password and returns a token pair.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, h.logger, malformedBody())
		return
	}

	result, err := h.auth.Login(c.Request.Context(), domain.Credentials{
		Identifier:     req.Identifier,
		Password:       req.Password,
		OrganizationID: req.OrganizationID,
	})
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, success(newAuthResponse(result)))
}
