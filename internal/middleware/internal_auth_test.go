package middleware

import (
  "net/http"
  "net/http/httptest"
  "testing"
  "time"

  "github.com/gin-gonic/gin"
  "github.com/golang-jwt/jwt/v5"

  "github.com/learnova/learnova-backend/internal/logger"
)

func newTestRouter(t *testing.T, secret string) *gin.Engine {
  t.Helper()
  gin.SetMode(gin.TestMode)
  log, err := logger.New("test")
  if err != nil {
    t.Fatalf("logger.New: %v", err)
  }
  m := NewInternalAuthMiddleware(log, secret)
  router := gin.New()
  router.POST("/internal/ping", m.RequireInternal(), func(c *gin.Context) {
    c.String(http.StatusOK, "pong")
  })
  return router
}

func signToken(t *testing.T, secret string, expiresIn time.Duration) string {
  t.Helper()
  token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
    "iss": "learnova-internal",
    "exp": time.Now().Add(expiresIn).Unix(),
  })
  signed, err := token.SignedString([]byte(secret))
  if err != nil {
    t.Fatalf("sign token: %v", err)
  }
  return signed
}

func TestRequireInternalAcceptsValidToken(t *testing.T) {
  router := newTestRouter(t, "shared-secret")
  req := httptest.NewRequest(http.MethodPost, "/internal/ping", nil)
  req.Header.Set("Authorization", "Bearer "+signToken(t, "shared-secret", time.Minute))
  rec := httptest.NewRecorder()

  router.ServeHTTP(rec, req)
  if rec.Code != http.StatusOK {
    t.Fatalf("status: want=%d got=%d body=%s", http.StatusOK, rec.Code, rec.Body.String())
  }
}

func TestRequireInternalRejectsMissingToken(t *testing.T) {
  router := newTestRouter(t, "shared-secret")
  req := httptest.NewRequest(http.MethodPost, "/internal/ping", nil)
  rec := httptest.NewRecorder()

  router.ServeHTTP(rec, req)
  if rec.Code != http.StatusUnauthorized {
    t.Fatalf("status: want=%d got=%d", http.StatusUnauthorized, rec.Code)
  }
}

func TestRequireInternalRejectsWrongSecret(t *testing.T) {
  router := newTestRouter(t, "shared-secret")
  req := httptest.NewRequest(http.MethodPost, "/internal/ping", nil)
  req.Header.Set("Authorization", "Bearer "+signToken(t, "other-secret", time.Minute))
  rec := httptest.NewRecorder()

  router.ServeHTTP(rec, req)
  if rec.Code != http.StatusUnauthorized {
    t.Fatalf("status: want=%d got=%d", http.StatusUnauthorized, rec.Code)
  }
}

func TestRequireInternalRejectsExpiredToken(t *testing.T) {
  router := newTestRouter(t, "shared-secret")
  req := httptest.NewRequest(http.MethodPost, "/internal/ping", nil)
  req.Header.Set("Authorization", "Bearer "+signToken(t, "shared-secret", -time.Minute))
  rec := httptest.NewRecorder()

  router.ServeHTTP(rec, req)
  if rec.Code != http.StatusUnauthorized {
    t.Fatalf("status: want=%d got=%d", http.StatusUnauthorized, rec.Code)
  }
}
