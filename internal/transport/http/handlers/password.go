package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ForgotPassword always answers with the same message so callers cannot
// probe which identifiers are registered.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, h.logger, malformedBody())
		return
	}

	message, err := h.auth.ForgotPassword(c.Request.Context(), req.Identifier)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, success(MessageResponse{Message: message}))
}

// ResetPassword replaces the password after a valid reset code.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, h.logger, malformedBody())
		return
	}

	if err := h.auth.ResetPassword(c.Request.Context(), req.Identifier, req.Code, req.NewPassword, req.OrganizationID); err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, success(MessageResponse{Message: "Password has been reset."}))
}
