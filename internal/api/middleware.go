package api

import (
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xde-mcp/cmdgate/internal/logger"
)

var httpLog = logger.New("http")

// MaxBodySize bounds a classify or hook request body. It matches the
// limit the hook applies to stdin so both transports accept the same
// payloads.
const MaxBodySize = 1 << 20

// SecurityHeadersMiddleware marks every response as uncacheable JSON that
// must not be sniffed, framed or followed by a referrer.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		h.Set("Pragma", "no-cache")
		c.Next()
	}
}

// BodySizeLimitMiddleware rejects declared bodies over maxSize and caps
// the reader for chunked or misdeclared ones.
func BodySizeLimitMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			Error(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", maxSize))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// JSONBodyMiddleware answers 415 to a request body that is not
// application/json.
func JSONBodyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength == 0 {
			c.Next()
			return
		}
		mediaType, _, err := mime.ParseMediaType(c.GetHeader("Content-Type"))
		if err != nil || mediaType != "application/json" {
			Error(c, http.StatusUnsupportedMediaType, "request body must be application/json")
			return
		}
		c.Next()
	}
}

// RequestLogMiddleware logs each request at debug level. Health checks are skipped.
func RequestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		httpLog.Debug("%s %s from %s -> %d (%v)", c.Request.Method, c.Request.URL.Path,
			c.ClientIP(), c.Writer.Status(), time.Since(start))
	}
}
