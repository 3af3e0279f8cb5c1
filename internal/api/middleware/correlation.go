package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// CorrelationIDHeader carries the trace ID between the store
	// application, this API, and the logs.
	CorrelationIDHeader = "X-Correlation-ID"

	// CorrelationIDKey is the gin context key the trace ID is stored under
	CorrelationIDKey = "correlation_id"
)

// CorrelationID assigns every request a trace ID, reusing the caller's when
// one is sent, and echoes it back in the response header so audit and
// repair calls can be followed end to end.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		c.Header(CorrelationIDHeader, id)
		c.Set(CorrelationIDKey, id)

		c.Next()
	}
}

// GetCorrelationID returns the request's trace ID, or the empty string when
// called outside a traced request
func GetCorrelationID(c *gin.Context) string {
	if id, exists := c.Get(CorrelationIDKey); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}
