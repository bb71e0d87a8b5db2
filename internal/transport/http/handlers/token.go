package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/identity-verification/internal/core/apperror"
	"github.com/arklim/identity-verification/internal/transport/http/middleware"
)

// RefreshToken exchanges a refresh token for a new pair.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, h.logger, malformedBody())
		return
	}

	result, err := h.auth.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, success(newAuthResponse(result)))
}

// Me returns the account behind the bearer token.
func (h *AuthHandler) Me(c *gin.Context) {
	user, found := middleware.AuthenticatedUser(c)
	if !found {
		RespondError(c, h.logger, apperror.New(apperror.CodeInvalidToken, ""))
		return
	}

	c.JSON(http.StatusOK, success(newUserSummary(*user)))
}
