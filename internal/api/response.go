// Package api holds the gin helpers shared by the classifier HTTP handlers.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Success sends data as a 200 JSON response.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Error aborts the request with status and a JSON error body.
func Error(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: message})
}
