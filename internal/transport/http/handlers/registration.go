package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/identity-verification/internal/core/domain"
)

// Register creates a pending account and sends the verification code.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, h.logger, malformedBody())
		return
	}

	result, err := h.auth.Register(c.Request.Context(), domain.Registration{
		Phone:          req.Phone,
		Email:          req.Email,
		Password:       req.Password,
		FullName:       req.FullName,
		OrganizationID: req.OrganizationID,
		Role:           domain.UserRole(req.Role),
	})
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, success(RegisterResponse{
		User:         newUserSummary(result.User),
		Verification: newOTPDeliveryResponse(result.Verification),
	}))
}

// SendOTP issues a fresh code for the given purpose.
func (h *AuthHandler) SendOTP(c *gin.Context) {
	var req SendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, h.logger, malformedBody())
		return
	}

	delivery, err := h.auth.SendOTP(c.Request.Context(), req.Identifier, domain.OTPPurpose(req.Purpose))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, success(newOTPDeliveryResponse(delivery)))
}

// VerifyOTP checks a submitted code; verification purposes activate the account.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, h.logger, malformedBody())
		return
	}

	user, err := h.auth.VerifyOTP(c.Request.Context(), req.Identifier, domain.OTPPurpose(req.Purpose), req.Code, req.OrganizationID)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	resp := VerifyOTPResponse{Verified: true}
	if user != nil {
		summary := newUserSummary(*user)
		resp.User = &summary
	}
	c.JSON(http.StatusOK, success(resp))
}
