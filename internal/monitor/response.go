package monitor

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the standard envelope for every monitor endpoint.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error carries a machine-readable code plus a human-readable message.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	errCodeBadRequest    = "BAD_REQUEST"
	errCodeNotFound      = "NOT_FOUND"
	errCodeInternalError = "INTERNAL_ERROR"
)

func success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   &Error{Code: errCodeBadRequest, Message: message},
	})
}

func notFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, Response{
		Success: false,
		Error:   &Error{Code: errCodeNotFound, Message: message},
	})
}

func internalError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, Response{
		Success: false,
		Error:   &Error{Code: errCodeInternalError, Message: message},
	})
}
