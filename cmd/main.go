package main

import (
  "errors"
  "fmt"
  "os"

  "github.com/learnova/learnova-backend/internal/clients/certledger"
  "github.com/learnova/learnova-backend/internal/clients/gcs"
  "github.com/learnova/learnova-backend/internal/clients/pinata"
  "github.com/learnova/learnova-backend/internal/clients/rediscache"
  "github.com/learnova/learnova-backend/internal/clients/sendgrid"
  "github.com/learnova/learnova-backend/internal/db"
  "github.com/learnova/learnova-backend/internal/handlers"
  "github.com/learnova/learnova-backend/internal/logger"
  "github.com/learnova/learnova-backend/internal/middleware"
  "github.com/learnova/learnova-backend/internal/repos"
  "github.com/learnova/learnova-backend/internal/server"
  "github.com/learnova/learnova-backend/internal/services"
  "github.com/learnova/learnova-backend/internal/utils"
)

func main() {
  // Logger
  logMode := os.Getenv("LOG_MODE")
  if logMode == "" {
    logMode = "development"
  }
  log, err := logger.New(logMode)
  if err != nil {
    fmt.Printf("Failed to init logger: %v\n", err)
    os.Exit(1)
  }
  defer log.Sync()

  // Env
  log.Info("Loading environment variables from main...")
  jwtSecretKey := utils.GetEnv("INTERNAL_JWT_SECRET", "defaultsecret", log)

  // Postgres
  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    log.Error("Postgres init failed", "error", err)
    os.Exit(1)
  }
  if err = postgresService.AutoMigrateAll(); err != nil {
    log.Error("Postgres auto migration failed", "error", err)
    os.Exit(1)
  }
  thePG := postgresService.DB()

  // Repos
  log.Info("Setting up Repos from main...")
  certRepo := repos.NewCertificateRepo(thePG, log)
  serialRepo := repos.NewCertificateSerialRepo(thePG, log)

  // Clients
  log.Info("Setting up Clients from main...")
  ipfsClient, err := pinata.New(log)
  if err != nil {
    log.Error("Could not init PinataClient", "error", err)
    os.Exit(1)
  }
  ledgerClient, err := certledger.NewFromEnv(log)
  if err != nil {
    if errors.Is(err, certledger.ErrNotConfigured) {
      log.Warn("Ledger not configured, anchoring and chain verification disabled", "error", err)
      ledgerClient = nil
    } else {
      log.Error("Could not init CertLedgerClient", "error", err)
      os.Exit(1)
    }
  }
  archiveService, err := gcs.NewBucketService(log)
  if err != nil {
    log.Warn("Could not init BucketService, archive disabled", "error", err)
    archiveService = nil
  }
  verifyCache, err := rediscache.New(log)
  if err != nil {
    log.Warn("Could not init RedisCache, verification cache disabled", "error", err)
    verifyCache = nil
  }
  mailClient, err := sendgrid.NewFromEnv(log)
  if err != nil {
    log.Warn("Could not init SendGridClient, confirmation emails disabled", "error", err)
    mailClient = nil
  }

  // Services
  log.Info("Setting up Services from main...")
  certGenerator, err := services.NewCertificateGenerator(log, serialRepo)
  if err != nil {
    log.Error("Could not init CertificateGenerator", "error", err)
    os.Exit(1)
  }
  proofGenerator, err := services.NewProofGenerator(log)
  if err != nil {
    log.Error("Could not init ProofGenerator", "error", err)
    os.Exit(1)
  }
  var emailService services.EmailService
  if mailClient != nil {
    emailService = services.NewEmailService(log, mailClient)
  }
  pipeline, err := services.NewCertificatePipeline(
    log,
    certRepo,
    certGenerator,
    proofGenerator,
    ipfsClient,
    ledgerClient,
    archiveService,
    verifyCache,
    emailService,
  )
  if err != nil {
    log.Error("Could not init CertificatePipeline", "error", err)
    os.Exit(1)
  }

  // Handlers
  log.Info("Setting up handlers from main...")
  certificateHandler := handlers.NewCertificateHandler(log, pipeline)

  // Middleware
  log.Info("Setting up middleware from main...")
  internalAuth := middleware.NewInternalAuthMiddleware(log, jwtSecretKey)

  // Router
  log.Info("Setting up router from main...")
  router := server.NewRouter(server.RouterConfig{
    CertificateHandler: certificateHandler,
    InternalAuth:       internalAuth,
  })

  port := utils.GetEnv("PORT", "8080", log)
  fmt.Printf("Server listening on :%s\n", port)
  if err := router.Run(":" + port); err != nil {
    log.Error("Server failed", "error", err)
  }
}
