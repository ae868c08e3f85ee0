package apiresp

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Response envelope shared by every endpoint; code 0 means success
type Response struct {
	Code      int    `json:"code"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
}

func now() string { return time.Now().Format(time.RFC3339) }

// OK writes a 200 with data
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: 0, Message: "success", Data: data, Timestamp: now()})
}

// Fail writes an error envelope; code mirrors the HTTP status
func Fail(c *gin.Context, httpStatus int, msg string) {
	c.JSON(httpStatus, Response{Code: httpStatus, Message: msg, Timestamp: now()})
}

// Abort is Fail for middleware
func Abort(c *gin.Context, httpStatus int, msg string) {
	Fail(c, httpStatus, msg)
	c.Abort()
}
