package services

import (
  "bytes"
  "fmt"
  "html/template"

  "github.com/learnova/learnova-backend/internal/logger"
)

// ProofGenerator renders the human-readable proof artifact that accompanies a
// certificate. Entirely best-effort: the pipeline swallows any failure here.
type ProofGenerator interface {
  GenerateHTMLProof(input ProofInput) ([]byte, error)
}

type ProofInput struct {
  CertID      string
  LearnerName string
  CourseName  string
  IssuedOn    string
  CIDDoc      string
  GatewayURL  string
  VerifyURL   string
}

const proofPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>Certificate Proof — {{.CertID}}</title>
  <style>
    body { font-family: Helvetica, Arial, sans-serif; color: #1f2937; margin: 40px; }
    .card { max-width: 720px; margin: 0 auto; border: 1px solid #e5e7eb; border-radius: 8px; padding: 32px; }
    h1 { color: #1a56db; }
    dt { font-weight: bold; margin-top: 12px; }
    dd { margin-left: 0; color: #374151; word-break: break-all; }
    .footer { margin-top: 24px; color: #6b7280; font-size: 13px; }
  </style>
</head>
<body>
  <div class="card">
    <h1>Certificate of Completion</h1>
    <p><strong>{{.LearnerName}}</strong> has successfully completed <strong>{{.CourseName}}</strong>.</p>
    <dl>
      <dt>Certificate ID</dt><dd>{{.CertID}}</dd>
      <dt>Issued On</dt><dd>{{.IssuedOn}}</dd>
      {{if .CIDDoc}}<dt>Document CID</dt><dd>{{.CIDDoc}}</dd>{{end}}
      {{if .GatewayURL}}<dt>Document</dt><dd><a href="{{.GatewayURL}}">{{.GatewayURL}}</a></dd>{{end}}
      <dt>Verify</dt><dd><a href="{{.VerifyURL}}">{{.VerifyURL}}</a></dd>
    </dl>
    <p class="footer">The document CID above is anchored on the blockchain. Use the verification link to reconcile this certificate against the on-chain record.</p>
  </div>
</body>
</html>
`

type proofGenerator struct {
  log  *logger.Logger
  tmpl *template.Template
}

func NewProofGenerator(baseLog *logger.Logger) (ProofGenerator, error) {
  tmpl, err := template.New("proof").Parse(proofPageTemplate)
  if err != nil {
    return nil, fmt.Errorf("parse proof template: %w", err)
  }
  return &proofGenerator{
    log:  baseLog.With("service", "ProofGenerator"),
    tmpl: tmpl,
  }, nil
}

func (p *proofGenerator) GenerateHTMLProof(input ProofInput) ([]byte, error) {
  if input.CertID == "" {
    return nil, fmt.Errorf("certID required")
  }
  var buf bytes.Buffer
  if err := p.tmpl.Execute(&buf, input); err != nil {
    return nil, fmt.Errorf("render proof page: %w", err)
  }
  return buf.Bytes(), nil
}
