package server

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/restransform/internal/middleware"
	"github.com/vyrodovalexey/restransform/internal/observability"
)

// RequestIDKey is the gin context key holding the request ID.
const RequestIDKey = "requestID"

// RequestID reuses the incoming X-Request-ID or generates one, and exposes it
// on the response, the gin context and the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(middleware.HeaderXRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(RequestIDKey, requestID)
		c.Header(middleware.HeaderXRequestID, requestID)
		c.Request = c.Request.WithContext(observability.ContextWithRequestID(c.Request.Context(), requestID))

		c.Next()
	}
}

// GetRequestID returns the request ID stored by RequestID.
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

// AccessLog logs every request once it completes. Proxied requests are also
// recorded in metrics, labelled with the rule that matched them.
// Requests served by fixed routes such as probes are logged at debug level.
func AccessLog(logger observability.Logger, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx, match := middleware.ContextWithMatchInfo(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		proxied := c.FullPath() == ""

		fields := []observability.Field{
			observability.String("method", c.Request.Method),
			observability.String("path", c.Request.URL.Path),
			observability.String("query", c.Request.URL.RawQuery),
			observability.Int("status", status),
			observability.Int("size", c.Writer.Size()),
			observability.Duration("duration", duration),
			observability.String("client_ip", c.ClientIP()),
			observability.String("user_agent", c.Request.UserAgent()),
			observability.String("request_id", GetRequestID(c)),
		}
		if match.Rule != "" {
			fields = append(fields, observability.String("rule", match.Rule))
		}

		if !proxied {
			logger.Debug("http request", fields...)
			return
		}
		logger.Info("http request", fields...)
		if metrics != nil {
			metrics.RecordRequest(c.Request.Method, match.Rule, status, duration)
		}
	}
}

// Recovery turns a panic into a 500 response.
func Recovery(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered",
					observability.Any("error", err),
					observability.String("method", c.Request.Method),
					observability.String("path", c.Request.URL.Path),
					observability.String("request_id", GetRequestID(c)),
					observability.String("stack", string(debug.Stack())),
				)

				span := trace.SpanFromContext(c.Request.Context())
				span.RecordError(fmt.Errorf("panic: %v", err))

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   "Internal Server Error",
					"message": "An unexpected error occurred",
				})
			}
		}()

		c.Next()
	}
}

// BodyLimit caps request bodies at n bytes. n <= 0 disables the limit.
func BodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if n > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
