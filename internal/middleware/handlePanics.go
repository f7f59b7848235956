package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/dfryer1193/css3blog/api"
	"github.com/dfryer1193/css3blog/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// HandlePanics is used with gin.CustomRecovery. The panic is logged, counted and
// answered with a JSON 500.
func HandlePanics(metricsManager *metrics.Manager) gin.RecoveryFunc {
	return func(c *gin.Context, recovered any) {
		log.Error().
			Interface("panic", recovered).
			Str("path", c.Request.URL.Path).
			Bytes("stack", debug.Stack()).
			Msg("Panic while serving request")

		if metricsManager != nil {
			metricsManager.CounterHandleRequestPanic.Inc()
		}

		c.AbortWithStatusJSON(http.StatusInternalServerError, api.ErrorResponse{Error: "internal server error"})
	}
}
