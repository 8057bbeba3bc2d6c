package types

import "time"

// CertificateSerial is the durable serial counter backing certificate IDs,
// one row per (issuer, year). Serials only ever increment; a failed issuance
// burns its serial.
type CertificateSerial struct {
  Issuer    string    `gorm:"column:issuer;primaryKey" json:"issuer"`
  Year      int       `gorm:"column:year;primaryKey" json:"year"`
  Count     int64     `gorm:"column:count;not null;default:0" json:"count"`
  UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (CertificateSerial) TableName() string { return "certificate_serial" }
