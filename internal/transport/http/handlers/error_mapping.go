package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/identity-verification/internal/core/apperror"
	"github.com/arklim/identity-verification/internal/infra/logger"
	"github.com/arklim/identity-verification/internal/transport/http/middleware"
)

// RespondError renders err as the error envelope. System failures are logged
// here because their cause never reaches the client.
func RespondError(c *gin.Context, log *zap.Logger, err error) {
	appErr := apperror.Classify(err)
	if appErr.Category() == apperror.CategorySystem {
		logger.WithContext(c.Request.Context(), log).Error("request failed",
			zap.String("code", string(appErr.Code)),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	middleware.AbortWithError(c, appErr)
}

func malformedBody() error {
	return apperror.New(apperror.CodeRequiredFieldMissing, "Request body must be a JSON object").WithField("body")
}
