package server

import (
  "github.com/gin-contrib/cors"
  "github.com/gin-gonic/gin"
  "github.com/learnova/learnova-backend/internal/handlers"
  "github.com/learnova/learnova-backend/internal/middleware"
)

type RouterConfig struct {
  CertificateHandler *handlers.CertificateHandler
  InternalAuth       *middleware.InternalAuthMiddleware
  AllowOrigins       []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
  router := gin.Default()
  router.Use(middleware.RequestID())

  origins := cfg.AllowOrigins
  if len(origins) == 0 {
    origins = []string{
      "http://localhost:80",
      "http://localhost:3000",
      "http://localhost:5173",
    }
  }

  // Cors
  router.Use(cors.New(cors.Config{
    AllowOrigins:     origins,
    AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
    AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
    AllowCredentials: true,
  }))

  // ===============
  // || Public    ||
  // ===============
  router.GET("/healthcheck", handlers.HealthCheck)
  api := router.Group("/api")
  {
    api.GET("/verify", cfg.CertificateHandler.Verify)
  }

  // ===============
  // || Internal  ||
  // ===============
  internal := router.Group("/internal")
  internal.Use(cfg.InternalAuth.RequireInternal())
  internal.POST("/issue-certificate", cfg.CertificateHandler.Issue)
  internal.POST("/revoke-certificate", cfg.CertificateHandler.Revoke)
  internal.GET("/certificates", cfg.CertificateHandler.ListForLearner)

  return router
}
