package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"research-board-platform/utils"
)

// RequestSizeLimit caps request body size. Media uploads are the largest
// bodies this API sees, so the cap is wired from the upload limit.
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge,
				"request_too_large",
				"Request body exceeds maximum size",
				gin.H{
					"received":    c.Request.ContentLength,
					"max_size_mb": maxSize / (1024 * 1024),
				})
			c.Abort()
			return
		}

		// Chunked uploads carry no Content-Length; enforce the cap while
		// the body is read instead.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)

		c.Next()
	}
}
