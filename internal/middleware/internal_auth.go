package middleware

import (
  "fmt"
  "net/http"
  "strings"

  "github.com/gin-gonic/gin"
  "github.com/golang-jwt/jwt/v5"

  "github.com/learnova/learnova-backend/internal/logger"
)

// InternalAuthMiddleware guards the /internal routes. Issuance and revocation
// are called service-to-service only, authenticated by a shared-secret HS256
// bearer token.
type InternalAuthMiddleware struct {
  log       *logger.Logger
  jwtSecret []byte
}

func NewInternalAuthMiddleware(log *logger.Logger, jwtSecret string) *InternalAuthMiddleware {
  return &InternalAuthMiddleware{
    log:       log.With("Middleware", "InternalAuthMiddleware"),
    jwtSecret: []byte(jwtSecret),
  }
}

func (m *InternalAuthMiddleware) RequireInternal() gin.HandlerFunc {
  return func(c *gin.Context) {
    tokenString := extractBearerToken(c)
    if tokenString == "" {
      c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
      return
    }
    token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
      if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
        return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
      }
      return m.jwtSecret, nil
    })
    if err != nil || !token.Valid {
      m.log.Debug("Internal token rejected", "error", err)
      c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
      return
    }
    c.Next()
  }
}

func extractBearerToken(c *gin.Context) string {
  authHeader := c.GetHeader("Authorization")
  if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
    return authHeader[7:]
  }
  return ""
}
