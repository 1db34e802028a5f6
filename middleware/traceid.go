package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// TraceIDKey is the gin context key carrying the request trace ID.
	TraceIDKey = "trace_id"
	// TraceIDHeader propagates the trace ID between client and server.
	TraceIDHeader = "X-Trace-ID"
)

// TraceID tags every request with a trace ID. An inbound X-Trace-ID is
// kept so a client can correlate retries; otherwise a fresh UUID is
// assigned. The ID is echoed in the response header and picked up by the
// request logger and the audit trail.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(TraceIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(TraceIDKey, id)
		c.Header(TraceIDHeader, id)
		c.Next()
	}
}

// GetTraceID returns the request's trace ID, or "" outside TraceID.
func GetTraceID(c *gin.Context) string {
	v, _ := c.Get(TraceIDKey)
	id, _ := v.(string)
	return id
}
