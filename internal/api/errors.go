package api

import (
	"net/http"
	"time"

	"ai-cycle-planner/internal/shared"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// writeError maps the error taxonomy onto HTTP. Provider and validation
// details stay in the logs.
func writeError(c *gin.Context, err error) {
	switch shared.KindOf(err) {
	case shared.KindAuthentication:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	case shared.KindEntitlement:
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":            "subscription required",
			"upgrade_required": true,
			"message":          "Upgrade your subscription to unlock personalized weekly plans.",
		})
	case shared.KindValidation, shared.KindProvider:
		c.JSON(http.StatusBadGateway, gin.H{
			"error":     "plan generation failed, please try again",
			"retryable": true,
		})
	case shared.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "no plan for the current week"})
	default:
		log.WithField("path", c.FullPath()).Errorf("Internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := log.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Round(time.Millisecond),
		}
		if p := principal(c); p.UserID != "" {
			fields["user_id"] = p.UserID
		}
		log.WithFields(fields).Info("Request handled")
	}
}
