package services

import (
  "strings"
  "testing"

  "github.com/learnova/learnova-backend/internal/logger"
)

func TestProofGeneratorRendersArtifact(t *testing.T) {
  log, err := logger.New("test")
  if err != nil {
    t.Fatalf("logger.New: %v", err)
  }
  gen, err := NewProofGenerator(log)
  if err != nil {
    t.Fatalf("NewProofGenerator: %v", err)
  }

  html, err := gen.GenerateHTMLProof(ProofInput{
    CertID:      "LEARNOVA-2026-000005",
    LearnerName: "Ada Lovelace",
    CourseName:  "Distributed Systems",
    IssuedOn:    "2026-03-14T09:26:53Z",
    CIDDoc:      "QmDoc",
    GatewayURL:  "https://ipfs.io/ipfs/QmDoc",
    VerifyURL:   "http://localhost:5173/verify?certId=LEARNOVA-2026-000005",
  })
  if err != nil {
    t.Fatalf("GenerateHTMLProof: %v", err)
  }
  page := string(html)
  for _, want := range []string{
    "LEARNOVA-2026-000005",
    "Ada Lovelace",
    "Distributed Systems",
    "QmDoc",
    "verify?certId=LEARNOVA-2026-000005",
  } {
    if !strings.Contains(page, want) {
      t.Fatalf("proof page missing %q:\n%s", want, page)
    }
  }
}

func TestProofGeneratorEscapesUserContent(t *testing.T) {
  log, err := logger.New("test")
  if err != nil {
    t.Fatalf("logger.New: %v", err)
  }
  gen, err := NewProofGenerator(log)
  if err != nil {
    t.Fatalf("NewProofGenerator: %v", err)
  }

  html, err := gen.GenerateHTMLProof(ProofInput{
    CertID:      "LEARNOVA-2026-000006",
    LearnerName: `<script>alert("x")</script>`,
    CourseName:  "Security 101",
    IssuedOn:    "2026-03-14T09:26:53Z",
    VerifyURL:   "http://localhost:5173/verify?certId=LEARNOVA-2026-000006",
  })
  if err != nil {
    t.Fatalf("GenerateHTMLProof: %v", err)
  }
  if strings.Contains(string(html), "<script>") {
    t.Fatalf("learner name not escaped:\n%s", html)
  }
}

func TestProofGeneratorRequiresCertID(t *testing.T) {
  log, err := logger.New("test")
  if err != nil {
    t.Fatalf("logger.New: %v", err)
  }
  gen, err := NewProofGenerator(log)
  if err != nil {
    t.Fatalf("NewProofGenerator: %v", err)
  }
  if _, err := gen.GenerateHTMLProof(ProofInput{}); err == nil {
    t.Fatalf("GenerateHTMLProof: expected error without cert id")
  }
}
