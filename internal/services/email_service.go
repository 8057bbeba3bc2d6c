package services

import (
  "context"
  "fmt"
  "strings"

  "github.com/learnova/learnova-backend/internal/clients/sendgrid"
  "github.com/learnova/learnova-backend/internal/logger"
)

// EmailService sends the issuance confirmation to the learner. Best-effort:
// callers log failures and move on.
type EmailService interface {
  SendCertificateEmail(ctx context.Context, input CertificateEmailInput) error
}

type CertificateEmailInput struct {
  RecipientEmail string
  RecipientName  string
  CertID         string
  CourseName     string
  VerifyURL      string
  ProofURL       string
}

type emailService struct {
  log  *logger.Logger
  mail sendgrid.Client
}

func NewEmailService(baseLog *logger.Logger, mail sendgrid.Client) EmailService {
  return &emailService{
    log:  baseLog.With("service", "EmailService"),
    mail: mail,
  }
}

func (s *emailService) SendCertificateEmail(ctx context.Context, input CertificateEmailInput) error {
  if s == nil || s.mail == nil {
    return fmt.Errorf("email service not configured")
  }
  recipient := strings.TrimSpace(input.RecipientEmail)
  if recipient == "" {
    s.log.Debug("No recipient email on issuance request, skipping confirmation", "cert_id", input.CertID)
    return nil
  }

  name := strings.TrimSpace(input.RecipientName)
  if name == "" {
    name = "Learner"
  }

  subject := fmt.Sprintf("Your certificate for %s", input.CourseName)
  text := fmt.Sprintf(
    "Hi %s,\n\nCongratulations on completing %s!\n\nCertificate ID: %s\nVerify: %s\nProof: %s\n\n— Learnova",
    name, input.CourseName, input.CertID, input.VerifyURL, input.ProofURL,
  )
  html := fmt.Sprintf(
    `<p>Hi %s,</p><p>Congratulations on completing <strong>%s</strong>!</p>`+
      `<p>Certificate ID: <code>%s</code></p>`+
      `<p><a href="%s">Verify your certificate</a> · <a href="%s">View proof page</a></p>`+
      `<p>— Learnova</p>`,
    name, input.CourseName, input.CertID, input.VerifyURL, input.ProofURL,
  )

  _, err := s.mail.Send(ctx, sendgrid.SendEmailRequest{
    To:      []sendgrid.EmailAddress{{Email: recipient, Name: name}},
    Subject: subject,
    Text:    text,
    HTML:    html,
  })
  if err != nil {
    return fmt.Errorf("send certificate email: %w", err)
  }
  s.log.Info("Certificate confirmation email sent", "cert_id", input.CertID, "recipient", recipient)
  return nil
}
