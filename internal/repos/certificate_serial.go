package repos

import (
  "context"
  "errors"

  "gorm.io/gorm"

  "github.com/learnova/learnova-backend/internal/logger"
)

type CertificateSerialRepo interface {
  // Next claims the next serial for (issuer, year) with a single atomic
  // read-modify-write. The claimed value is durable before it is returned,
  // so a process restart can never hand out the same serial twice.
  Next(ctx context.Context, tx *gorm.DB, issuer string, year int) (int64, error)
}

type certificateSerialRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewCertificateSerialRepo(db *gorm.DB, baseLog *logger.Logger) CertificateSerialRepo {
  repoLog := baseLog.With("repo", "CertificateSerialRepo")
  return &certificateSerialRepo{db: db, log: repoLog}
}

func (r *certificateSerialRepo) Next(ctx context.Context, tx *gorm.DB, issuer string, year int) (int64, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if issuer == "" {
    return 0, errors.New("issuer required")
  }
  if year <= 0 {
    return 0, errors.New("year required")
  }

  var count int64
  err := transaction.WithContext(ctx).Raw(`
    INSERT INTO "certificate_serial" ("issuer", "year", "count", "updated_at")
    VALUES (?, ?, 1, now())
    ON CONFLICT ("issuer", "year")
    DO UPDATE SET "count" = "certificate_serial"."count" + 1, "updated_at" = now()
    RETURNING "count"
  `, issuer, year).Scan(&count).Error
  if err != nil {
    return 0, err
  }
  return count, nil
}
