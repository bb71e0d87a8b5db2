package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/identity-verification/internal/core/apperror"
	"github.com/arklim/identity-verification/internal/core/domain"
)

const authenticatedUserKey = "authenticated_user"

// TokenValidator resolves an access token to its account.
type TokenValidator interface {
	ValidateToken(ctx context.Context, accessToken string) (*domain.User, error)
}

// RequireAuth validates the bearer token and stores the account on the context.
func RequireAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			AbortWithError(c, apperror.New(apperror.CodeInvalidToken, "Missing or malformed bearer token"))
			return
		}

		user, err := validator.ValidateToken(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(authenticatedUserKey, user)
		c.Set(UserIDKey, user.ID)
		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.UserID = user.ID
		}

		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// AuthenticatedUser returns the account stored by RequireAuth.
func AuthenticatedUser(c *gin.Context) (*domain.User, bool) {
	raw, exists := c.Get(authenticatedUserKey)
	if !exists {
		return nil, false
	}
	user, ok := raw.(*domain.User)
	return user, ok && user != nil
}
