package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lumeapp/agenda/pkg/telemetry/correlation"
)

const correlationHeader = "X-Correlation-ID"

// CorrelationMiddleware threads a correlation id through the request context
// and echoes it back so clients can quote it in support tickets.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if incoming := strings.TrimSpace(c.GetHeader(correlationHeader)); incoming != "" {
			ctx = correlation.ContextWithCorrelationID(ctx, incoming)
		}
		ctx, cid := correlation.EnsureCorrelationID(ctx)
		c.Request = c.Request.WithContext(ctx)
		c.Header(correlationHeader, cid)
		c.Next()
	}
}
