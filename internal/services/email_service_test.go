package services

import (
  "context"
  "strings"
  "testing"

  "github.com/learnova/learnova-backend/internal/clients/sendgrid"
  "github.com/learnova/learnova-backend/internal/logger"
)

type fakeMailClient struct {
  sendCalls int
  last      sendgrid.SendEmailRequest
  err       error
}

func (f *fakeMailClient) Send(_ context.Context, req sendgrid.SendEmailRequest) (*sendgrid.SendEmailResult, error) {
  f.sendCalls++
  f.last = req
  if f.err != nil {
    return nil, f.err
  }
  return &sendgrid.SendEmailResult{StatusCode: 202, MessageID: "msg-1"}, nil
}

func TestSendCertificateEmail(t *testing.T) {
  log, err := logger.New("test")
  if err != nil {
    t.Fatalf("logger.New: %v", err)
  }
  mail := &fakeMailClient{}
  svc := NewEmailService(log, mail)

  err = svc.SendCertificateEmail(context.Background(), CertificateEmailInput{
    RecipientEmail: "ada@example.com",
    RecipientName:  "Ada Lovelace",
    CertID:         "LEARNOVA-2026-000001",
    CourseName:     "Distributed Systems",
    VerifyURL:      "http://localhost:5173/verify?certId=LEARNOVA-2026-000001",
    ProofURL:       "https://ipfs.io/ipfs/QmProof",
  })
  if err != nil {
    t.Fatalf("SendCertificateEmail: %v", err)
  }
  if mail.sendCalls != 1 {
    t.Fatalf("send calls: want=1 got=%d", mail.sendCalls)
  }
  if len(mail.last.To) != 1 || mail.last.To[0].Email != "ada@example.com" {
    t.Fatalf("recipient mismatch: %+v", mail.last.To)
  }
  if !strings.Contains(mail.last.Subject, "Distributed Systems") {
    t.Fatalf("subject: got=%q", mail.last.Subject)
  }
  if !strings.Contains(mail.last.Text, "LEARNOVA-2026-000001") {
    t.Fatalf("text body missing cert id: %q", mail.last.Text)
  }
}

func TestSendCertificateEmailSkipsWithoutRecipient(t *testing.T) {
  log, err := logger.New("test")
  if err != nil {
    t.Fatalf("logger.New: %v", err)
  }
  mail := &fakeMailClient{}
  svc := NewEmailService(log, mail)

  err = svc.SendCertificateEmail(context.Background(), CertificateEmailInput{
    RecipientEmail: "   ",
    CertID:         "LEARNOVA-2026-000001",
    CourseName:     "Distributed Systems",
  })
  if err != nil {
    t.Fatalf("SendCertificateEmail: %v", err)
  }
  if mail.sendCalls != 0 {
    t.Fatalf("send calls without recipient: want=0 got=%d", mail.sendCalls)
  }
}
