package repos

import (
  "context"
  "encoding/json"
  "errors"
  "time"

  "github.com/jackc/pgx/v5/pgconn"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"

  "github.com/learnova/learnova-backend/internal/logger"
  "github.com/learnova/learnova-backend/internal/types"
)

// ErrDuplicateIssued surfaces the issued-certificate unique index: another
// writer already issued for the same (learner, course) pair.
var ErrDuplicateIssued = errors.New("certificate already issued for learner/course")

type CertificateRepo interface {
  // Save upserts on cert_id; a second save with the same ID overwrites
  // (pending -> issued / failed transitions go through here).
  Save(ctx context.Context, tx *gorm.DB, cert *types.Certificate) (*types.Certificate, error)

  GetByCertID(ctx context.Context, tx *gorm.DB, certID string) (*types.Certificate, error)

  // GetByLearnerCourse returns the latest record for the pair, preferring an
  // issued record when one exists. Nil when no record.
  GetByLearnerCourse(ctx context.Context, tx *gorm.DB, learnerID, courseID string) (*types.Certificate, error)

  ListByLearner(ctx context.Context, tx *gorm.DB, learnerID string) ([]*types.Certificate, error)

  // Revoke flips revoked to true and merges the reason into metadata.
  // Returns false when no such certificate exists.
  Revoke(ctx context.Context, tx *gorm.DB, certID string, reason string) (bool, error)
}

type certificateRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewCertificateRepo(db *gorm.DB, baseLog *logger.Logger) CertificateRepo {
  repoLog := baseLog.With("repo", "CertificateRepo")
  return &certificateRepo{db: db, log: repoLog}
}

func (r *certificateRepo) Save(ctx context.Context, tx *gorm.DB, cert *types.Certificate) (*types.Certificate, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if cert == nil {
    return nil, errors.New("certificate required")
  }
  cert.UpdatedAt = time.Now()
  err := transaction.WithContext(ctx).
    Clauses(clause.OnConflict{
      Columns:   []clause.Column{{Name: "cert_id"}},
      UpdateAll: true,
    }).
    Create(cert).Error
  if err != nil {
    if isIssuedUniqueViolation(err) {
      return nil, ErrDuplicateIssued
    }
    return nil, err
  }
  return cert, nil
}

func (r *certificateRepo) GetByCertID(ctx context.Context, tx *gorm.DB, certID string) (*types.Certificate, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if certID == "" {
    return nil, nil
  }
  var cert types.Certificate
  err := transaction.WithContext(ctx).
    Where("cert_id = ?", certID).
    Limit(1).
    Find(&cert).Error
  if err != nil {
    return nil, err
  }
  if cert.CertID == "" {
    return nil, nil
  }
  return &cert, nil
}

func (r *certificateRepo) GetByLearnerCourse(ctx context.Context, tx *gorm.DB, learnerID, courseID string) (*types.Certificate, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if learnerID == "" || courseID == "" {
    return nil, nil
  }
  var cert types.Certificate
  err := transaction.WithContext(ctx).
    Where("learner_id = ? AND course_id = ?", learnerID, courseID).
    Order(`CASE WHEN status = 'issued' THEN 0 ELSE 1 END, issued_at DESC`).
    Limit(1).
    Find(&cert).Error
  if err != nil {
    return nil, err
  }
  if cert.CertID == "" {
    return nil, nil
  }
  return &cert, nil
}

func (r *certificateRepo) ListByLearner(ctx context.Context, tx *gorm.DB, learnerID string) ([]*types.Certificate, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.Certificate
  if learnerID == "" {
    return results, nil
  }
  if err := transaction.WithContext(ctx).
    Where("learner_id = ?", learnerID).
    Order("issued_at DESC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *certificateRepo) Revoke(ctx context.Context, tx *gorm.DB, certID string, reason string) (bool, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if certID == "" {
    return false, nil
  }

  updates := map[string]interface{}{
    "revoked":    true,
    "updated_at": time.Now(),
  }
  if reason != "" {
    raw, err := json.Marshal(map[string]string{"revocation_reason": reason})
    if err != nil {
      return false, err
    }
    updates["metadata"] = gorm.Expr(`COALESCE(metadata, '{}'::jsonb) || ?::jsonb`, string(raw))
  }

  result := transaction.WithContext(ctx).
    Model(&types.Certificate{}).
    Where("cert_id = ?", certID).
    Updates(updates)
  if result.Error != nil {
    return false, result.Error
  }
  if result.RowsAffected == 0 {
    return false, nil
  }
  return true, nil
}

func isIssuedUniqueViolation(err error) bool {
  if errors.Is(err, gorm.ErrDuplicatedKey) {
    return true
  }
  var pgErr *pgconn.PgError
  if errors.As(err, &pgErr) {
    return pgErr.Code == "23505"
  }
  return false
}
