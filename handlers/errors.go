package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"aurelienallenic/api/apperrors"
)

// respondError writes err as {"error": msg}. Only AppError messages reach
// the client; 5xx causes are logged.
func respondError(c *gin.Context, log *logrus.Logger, err error) {
	status := apperrors.StatusCode(err)
	if status >= 500 {
		log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.JSON(status, gin.H{"error": apperrors.PublicMessage(err)})
}
