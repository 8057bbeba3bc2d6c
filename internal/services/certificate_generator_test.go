package services

import (
  "bytes"
  "context"
  "strings"
  "testing"
  "time"

  "gorm.io/gorm"
)

func TestFormatCertID(t *testing.T) {
  cases := []struct {
    issuer string
    year   int
    serial int64
    want   string
  }{
    {"LEARNOVA", 2026, 1, "LEARNOVA-2026-000001"},
    {"LEARNOVA", 2026, 7, "LEARNOVA-2026-000007"},
    {"LEARNOVA", 2027, 123456, "LEARNOVA-2027-123456"},
    {"ACME", 2026, 1000000, "ACME-2026-1000000"},
  }
  for _, tc := range cases {
    got := FormatCertID(tc.issuer, tc.year, tc.serial)
    if got != tc.want {
      t.Fatalf("FormatCertID(%q, %d, %d): want=%q got=%q", tc.issuer, tc.year, tc.serial, tc.want, got)
    }
  }
}

func TestGenerateCertIDUsesDurableSerial(t *testing.T) {
  gen := &certificateGenerator{
    issuer:     "LEARNOVA",
    serialRepo: &fakeSerialRepo{},
  }
  first, err := gen.GenerateCertID(context.Background(), nil, 2026)
  if err != nil {
    t.Fatalf("GenerateCertID: %v", err)
  }
  second, err := gen.GenerateCertID(context.Background(), nil, 2026)
  if err != nil {
    t.Fatalf("GenerateCertID: %v", err)
  }
  if first != "LEARNOVA-2026-000001" {
    t.Fatalf("first id: got=%q", first)
  }
  if second != "LEARNOVA-2026-000002" {
    t.Fatalf("second id: got=%q", second)
  }
}

func TestCanonicalJSONIsDeterministic(t *testing.T) {
  gen := &certificateGenerator{issuer: "LEARNOVA"}
  issuedOn := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
  build := func() CanonicalCertificate {
    return gen.CreateCanonical(
      "LEARNOVA-2026-000042", "learner-9", "course-3", "Go Fundamentals", "Grace Hopper", "A+",
      20, 10, issuedOn, "0x1111111111111111111111111111111111111111",
      map[string]string{"zeta": "last", "alpha": "first", "mid": "middle"},
    )
  }

  a, err := gen.CanonicalJSON(build())
  if err != nil {
    t.Fatalf("CanonicalJSON: %v", err)
  }
  b, err := gen.CanonicalJSON(build())
  if err != nil {
    t.Fatalf("CanonicalJSON: %v", err)
  }
  if !bytes.Equal(a, b) {
    t.Fatalf("payloads differ:\n%s\n%s", a, b)
  }
}

func TestCanonicalJSONKeyOrder(t *testing.T) {
  gen := &certificateGenerator{issuer: "LEARNOVA"}
  cert := gen.CreateCanonical(
    "LEARNOVA-2026-000001", "learner-1", "course-1", "Databases", "Ada Lovelace", "B",
    8, 4, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), "0x1111111111111111111111111111111111111111",
    nil,
  )
  raw, err := gen.CanonicalJSON(cert)
  if err != nil {
    t.Fatalf("CanonicalJSON: %v", err)
  }
  payload := string(raw)

  keys := []string{
    `"certId"`, `"courseId"`, `"courseName"`, `"durationHours"`, `"grade"`, `"issuedOn"`,
    `"issuer"`, `"issuerAddress"`, `"learnerId"`, `"metadata"`, `"modules"`, `"name"`,
  }
  last := -1
  for _, key := range keys {
    idx := strings.Index(payload, key)
    if idx < 0 {
      t.Fatalf("key %s missing from payload: %s", key, payload)
    }
    if idx <= last {
      t.Fatalf("key %s out of lexicographic order in payload: %s", key, payload)
    }
    last = idx
  }
}

func TestCanonicalPayloadHasNoSelfReference(t *testing.T) {
  gen := &certificateGenerator{issuer: "LEARNOVA"}
  cert := gen.CreateCanonical(
    "LEARNOVA-2026-000001", "learner-1", "course-1", "Databases", "Ada Lovelace", "B",
    8, 4, time.Now().UTC(), "0x1111111111111111111111111111111111111111",
    map[string]string{"cohort": "spring"},
  )
  raw, err := gen.CanonicalJSON(cert)
  if err != nil {
    t.Fatalf("CanonicalJSON: %v", err)
  }
  // The payload is what gets pinned and anchored; it cannot contain the CID
  // or the transaction reference derived from it.
  for _, forbidden := range []string{"cidDoc", "cid_doc", "cidProof", "txRef", "tx_ref"} {
    if strings.Contains(string(raw), forbidden) {
      t.Fatalf("payload contains self-referential key %q: %s", forbidden, raw)
    }
  }
}

func TestCreateCanonicalNormalizesTimestamp(t *testing.T) {
  gen := &certificateGenerator{issuer: "LEARNOVA"}
  est := time.FixedZone("EST", -5*3600)
  cert := gen.CreateCanonical(
    "LEARNOVA-2026-000001", "learner-1", "course-1", "Databases", "Ada Lovelace", "B",
    8, 4, time.Date(2026, 6, 1, 20, 0, 0, 0, est), "0x1111111111111111111111111111111111111111",
    nil,
  )
  if cert.IssuedOn != "2026-06-02T01:00:00Z" {
    t.Fatalf("issuedOn not normalized to UTC: got=%q", cert.IssuedOn)
  }
  if cert.Metadata == nil {
    t.Fatalf("nil metadata must marshal as an object, not null")
  }
}

type fakeSerialRepo struct {
  count int64
}

func (f *fakeSerialRepo) Next(_ context.Context, _ *gorm.DB, issuer string, year int) (int64, error) {
  f.count++
  return f.count, nil
}
