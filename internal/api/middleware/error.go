package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/vigil-ops/vigil-backend-go/pkg/utils"
)

// ErrorHandlingMiddleware recovers from handler panics and answers with a
// structured 500 instead of dropping the connection.
func ErrorHandlingMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.WithFields(logrus.Fields{
			"panic":  recovered,
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"stack":  string(debug.Stack()),
		}).Error("Panic recovered in handler")

		utils.SendError(c, http.StatusInternalServerError, "internal server error")
		c.Abort()
	})
}
