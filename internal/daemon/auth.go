package daemon

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"reelcast/internal/services"
)

const requestIDHeader = "X-Request-ID"

// authMiddleware validates bearer tokens. A request whose trusted scheduler
// header equals trustedValue passes without a token. With no secret configured
// every request passes.
func authMiddleware(secret, trustedHeader, trustedValue string) gin.HandlerFunc {
	secret = strings.TrimSpace(secret)
	trustedHeader = strings.TrimSpace(trustedHeader)
	trustedValue = strings.TrimSpace(trustedValue)
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		if trustedHeader != "" && trustedValue != "" && constantTimeEqual(c.GetHeader(trustedHeader), trustedValue) {
			c.Next()
			return
		}
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || !constantTimeEqual(token, secret) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func constantTimeEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(want)) == 1
}

// requestIDMiddleware tags each request with an id, echoing an inbound
// X-Request-ID when present, and threads it into the request context.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(requestIDHeader, requestID)
		c.Request = c.Request.WithContext(services.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}
