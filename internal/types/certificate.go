package types

import (
  "time"

  "gorm.io/datatypes"
)

const (
  CertificateStatusPending = "pending"
  CertificateStatusIssued  = "issued"
  CertificateStatusFailed  = "failed"
)

// Certificate is the durable issuance record. CertID is assigned exactly once
// and never reused; CIDDoc is append-only identity and must not change after
// it is first set.
type Certificate struct {
  CertID        string          `gorm:"column:cert_id;primaryKey" json:"cert_id"`
  LearnerID     string          `gorm:"column:learner_id;not null;index:idx_certificate_learner_course" json:"learner_id"`
  CourseID      string          `gorm:"column:course_id;not null;index:idx_certificate_learner_course" json:"course_id"`
  CIDDoc        *string         `gorm:"column:cid_doc" json:"cid_doc,omitempty"`
  CIDProof      *string         `gorm:"column:cid_proof" json:"cid_proof,omitempty"`
  TxRef         *string         `gorm:"column:tx_ref" json:"tx_ref,omitempty"`
  IssuerAddress string          `gorm:"column:issuer_address;not null" json:"issuer_address"`
  Status        string          `gorm:"column:status;not null;default:pending" json:"status"`
  Revoked       bool            `gorm:"column:revoked;not null;default:false" json:"revoked"`
  IssuedAt      time.Time       `gorm:"column:issued_at;not null" json:"issued_at"`
  Metadata      datatypes.JSON  `gorm:"column:metadata;type:jsonb" json:"metadata"`
  CreatedAt     time.Time       `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt     time.Time       `gorm:"not null;default:now()" json:"updated_at"`
}

func (Certificate) TableName() string { return "certificate" }
