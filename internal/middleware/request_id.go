package middleware

import (
  "github.com/gin-gonic/gin"
  "github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// RequestID tags every request with a correlation id so issuance logs can be
// tied back to the caller's request. An incoming id is trusted and echoed.
func RequestID() gin.HandlerFunc {
  return func(c *gin.Context) {
    id := c.GetHeader(RequestIDHeader)
    if id == "" {
      id = uuid.NewString()
    }
    c.Set("request_id", id)
    c.Writer.Header().Set(RequestIDHeader, id)
    c.Next()
  }
}
