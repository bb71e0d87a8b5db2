package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/identity-verification/internal/core/apperror"
)

const jwksCacheControl = "public, max-age=3600"

// KeySet renders the public signing keys.
type KeySet interface {
	JWKS() ([]byte, error)
}

// JWKSHandler publishes the keys that verify issued tokens.
type JWKSHandler struct {
	keys   KeySet
	logger *zap.Logger
}

// NewJWKSHandler constructs a JWKS handler backed by keys.
func NewJWKSHandler(keys KeySet, logger *zap.Logger) *JWKSHandler {
	return &JWKSHandler{keys: keys, logger: logger}
}

// Keys serves /.well-known/jwks.json.
func (h *JWKSHandler) Keys(c *gin.Context) {
	if h == nil || h.keys == nil {
		RespondError(c, nil, apperror.New(apperror.CodeInternal, "JWKS not available").Wrap(errors.New("jwks: no key set configured")))
		return
	}

	payload, err := h.keys.JWKS()
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.Header("Cache-Control", jwksCacheControl)
	c.Data(http.StatusOK, "application/json", payload)
}
