package services

import (
  "context"
  "encoding/json"
  "errors"
  "fmt"
  "net/url"
  "os"
  "strings"
  "time"

  "golang.org/x/sync/errgroup"
  "gorm.io/datatypes"

  "github.com/learnova/learnova-backend/internal/clients/certledger"
  "github.com/learnova/learnova-backend/internal/clients/gcs"
  "github.com/learnova/learnova-backend/internal/clients/pinata"
  "github.com/learnova/learnova-backend/internal/clients/rediscache"
  "github.com/learnova/learnova-backend/internal/logger"
  "github.com/learnova/learnova-backend/internal/repos"
  "github.com/learnova/learnova-backend/internal/types"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// ErrInvalidRequest marks validation failures: nothing was assigned or
// written when an issuance error wraps it.
var ErrInvalidRequest = errors.New("invalid issue request")

const (
  IssueStatusSuccess       = "success"
  IssueStatusAlreadyIssued = "already_issued"
  IssueStatusFailed        = "failed"
)

const (
  VerifyStatusVerified   = "verified"
  VerifyStatusRevoked    = "revoked"
  VerifyStatusNotFound   = "not_found"
  VerifyStatusIncomplete = "incomplete"
  VerifyStatusNotOnChain = "not_on_chain"
  VerifyStatusMismatch   = "mismatch"
)

type IssueRequest struct {
  LearnerID     string            `json:"learner_id"`
  LearnerName   string            `json:"learner_name"`
  LearnerEmail  string            `json:"learner_email"`
  CourseID      string            `json:"course_id"`
  CourseName    string            `json:"course_name"`
  Grade         string            `json:"grade"`
  DurationHours float64           `json:"duration_hours"`
  Modules       int               `json:"modules"`
  OwnerAddress  string            `json:"owner_address"`
  Metadata      map[string]string `json:"metadata"`
}

type IssueResult struct {
  Status        string  `json:"status"`
  CertID        string  `json:"cert_id"`
  CIDDoc        *string `json:"cid_doc,omitempty"`
  CIDProof      *string `json:"cid_proof,omitempty"`
  TxRef         *string `json:"tx_ref,omitempty"`
  IssuerAddress string  `json:"issuer_address"`
  GatewayURL    string  `json:"gateway_url,omitempty"`
  VerifyURL     string  `json:"verify_url"`
  ProofURL      string  `json:"proof_url"`
  IssuedAt      string  `json:"issued_at"`
}

type VerifyResult struct {
  Verified         bool   `json:"verified"`
  Status           string `json:"status"`
  CertID           string `json:"cert_id"`
  CIDDoc           string `json:"cid_doc,omitempty"`
  OnChainCID       string `json:"on_chain_cid,omitempty"`
  TxRef            string `json:"tx_ref,omitempty"`
  RevocationReason string `json:"revocation_reason,omitempty"`
  IssuedAt         string `json:"issued_at,omitempty"`
  CheckedAt        string `json:"checked_at"`
}

// CertificatePipeline drives issuance end to end: claim an ID, render the
// document, pin it, anchor the CID on the ledger, persist the record and
// notify the learner. Render, pin and persist are fatal; anchoring, the proof
// artifact, archival and email only degrade the result.
type CertificatePipeline interface {
  Issue(ctx context.Context, req IssueRequest) (*IssueResult, error)
  Verify(ctx context.Context, certID string) (*VerifyResult, error)
  Revoke(ctx context.Context, certID, reason string) (bool, error)
  ListForLearner(ctx context.Context, learnerID string) ([]*types.Certificate, error)
}

type certificatePipeline struct {
  log       *logger.Logger
  certRepo  repos.CertificateRepo
  generator CertificateGenerator
  proofGen  ProofGenerator

  ipfs    pinata.Client
  ledger  certledger.Client // nil when unconfigured
  archive gcs.BucketService // nil when unconfigured
  cache   rediscache.Cache  // nil when unconfigured
  email   EmailService      // nil when unconfigured

  verifyBaseURL string
}

func NewCertificatePipeline(
  baseLog *logger.Logger,
  certRepo repos.CertificateRepo,
  generator CertificateGenerator,
  proofGen ProofGenerator,
  ipfs pinata.Client,
  ledger certledger.Client,
  archive gcs.BucketService,
  cache rediscache.Cache,
  email EmailService,
) (CertificatePipeline, error) {
  if certRepo == nil || generator == nil || proofGen == nil || ipfs == nil {
    return nil, fmt.Errorf("certRepo, generator, proofGen and ipfs are required")
  }
  log := baseLog.With("service", "CertificatePipeline")

  verifyBase := strings.TrimSpace(os.Getenv("VERIFY_BASE_URL"))
  if verifyBase == "" {
    verifyBase = "http://localhost:5173/verify"
    log.Warn("VERIFY_BASE_URL not set, using default", "default", verifyBase)
  }

  return &certificatePipeline{
    log:           log,
    certRepo:      certRepo,
    generator:     generator,
    proofGen:      proofGen,
    ipfs:          ipfs,
    ledger:        ledger,
    archive:       archive,
    cache:         cache,
    email:         email,
    verifyBaseURL: strings.TrimRight(verifyBase, "/"),
  }, nil
}

func (p *certificatePipeline) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
  // All validation happens before any side effect: no serial is burned and
  // no record is written for a malformed request.
  if err := validateIssueRequest(req); err != nil {
    return nil, err
  }

  // Idempotency check. Best-effort: a read failure here must not block a
  // legitimate issuance, the unique index is the real guard.
  existing, err := p.certRepo.GetByLearnerCourse(ctx, nil, req.LearnerID, req.CourseID)
  if err != nil {
    p.log.Warn("Idempotency pre-check failed, continuing", "learner_id", req.LearnerID, "course_id", req.CourseID, "error", err)
  } else if existing != nil && existing.Status == types.CertificateStatusIssued {
    p.log.Info("Certificate already issued for learner/course", "cert_id", existing.CertID)
    return p.resultFromRecord(IssueStatusAlreadyIssued, existing), nil
  }

  issuedAt := time.Now().UTC()
  certID, err := p.generator.GenerateCertID(ctx, nil, issuedAt.Year())
  if err != nil {
    return nil, fmt.Errorf("assign certificate id: %w", err)
  }
  log := p.log.With("cert_id", certID)

  issuerAddress := p.issuerAddress()
  metadataJSON, err := marshalMetadata(req.Metadata, nil)
  if err != nil {
    return nil, fmt.Errorf("encode metadata: %w", err)
  }

  // The run exists as a transient pending record until it reaches a terminal
  // state. Best-effort: the issued upsert at the end is the source of truth.
  pending := &types.Certificate{
    CertID:        certID,
    LearnerID:     req.LearnerID,
    CourseID:      req.CourseID,
    IssuerAddress: issuerAddress,
    Status:        types.CertificateStatusPending,
    IssuedAt:      issuedAt,
    Metadata:      metadataJSON,
  }
  if _, err := p.certRepo.Save(ctx, nil, pending); err != nil {
    log.Warn("Could not persist pending record, continuing", "error", err)
  }

  canonical := p.generator.CreateCanonical(
    certID, req.LearnerID, req.CourseID, req.CourseName, req.LearnerName, req.Grade,
    req.DurationHours, req.Modules, issuedAt, issuerAddress, req.Metadata,
  )

  // Past this point the serial is burned: fatal failures still hand back a
  // failed result carrying whatever identifiers exist so far.
  failedResult := func(cidDoc *string) *IssueResult {
    return &IssueResult{
      Status:        IssueStatusFailed,
      CertID:        certID,
      CIDDoc:        cidDoc,
      IssuerAddress: issuerAddress,
      VerifyURL:     p.verifyURL(certID),
      IssuedAt:      issuedAt.Format(time.RFC3339),
    }
  }

  docPNG, err := p.generator.RenderPNG(canonical)
  if err != nil {
    p.persistFailed(ctx, certID, req, issuerAddress, issuedAt, fmt.Errorf("render: %w", err))
    return failedResult(nil), fmt.Errorf("render certificate document: %w", err)
  }

  docPin, err := p.ipfs.PinBuffer(ctx, docPNG, certID+".png")
  if err != nil {
    p.persistFailed(ctx, certID, req, issuerAddress, issuedAt, fmt.Errorf("pin: %w", err))
    return failedResult(nil), fmt.Errorf("pin certificate document: %w", err)
  }
  log.Info("Certificate document pinned", "cid", docPin.CID)

  // The document CID exists now, so the remaining enrichment steps are
  // independent of each other and only degrade the result on failure.
  var txRef *string
  var cidProof *string

  g, gctx := errgroup.WithContext(ctx)

  g.Go(func() error {
    if p.ledger == nil {
      log.Warn("Ledger not configured, certificate will not be anchored")
      return nil
    }
    res, err := p.ledger.StoreCert(gctx, certID, docPin.CID, req.OwnerAddress)
    if err != nil {
      log.Error("Ledger anchoring failed, issuing without tx ref", "error", err)
      return nil
    }
    if res.Status == certledger.StatusAlreadyStored {
      log.Warn("Ledger already holds this binding, no new transaction")
      return nil
    }
    txRef = &res.TxRef
    return nil
  })

  g.Go(func() error {
    proofHTML, err := p.proofGen.GenerateHTMLProof(ProofInput{
      CertID:      certID,
      LearnerName: req.LearnerName,
      CourseName:  req.CourseName,
      IssuedOn:    canonical.IssuedOn,
      CIDDoc:      docPin.CID,
      GatewayURL:  docPin.GatewayURL,
      VerifyURL:   p.verifyURL(certID),
    })
    if err != nil {
      log.Error("Proof artifact render failed, issuing without proof", "error", err)
      return nil
    }
    proofPin, err := p.ipfs.PinBuffer(gctx, proofHTML, certID+"-proof.html")
    if err != nil {
      log.Error("Proof artifact pin failed, issuing without proof", "error", err)
      return nil
    }
    cidProof = &proofPin.CID
    return nil
  })

  g.Go(func() error {
    if p.archive == nil {
      return nil
    }
    key := fmt.Sprintf("certificates/%d/%s.png", issuedAt.Year(), certID)
    if err := p.archive.UploadBytes(gctx, key, docPNG); err != nil {
      log.Warn("Archive upload failed", "key", key, "error", err)
    }
    return nil
  })

  _ = g.Wait()

  // Persistence runs on a detached context: once the document is pinned the
  // record must land even if the caller has gone away.
  persistCtx := context.WithoutCancel(ctx)

  cidDoc := docPin.CID
  record := &types.Certificate{
    CertID:        certID,
    LearnerID:     req.LearnerID,
    CourseID:      req.CourseID,
    CIDDoc:        &cidDoc,
    CIDProof:      cidProof,
    TxRef:         txRef,
    IssuerAddress: issuerAddress,
    Status:        types.CertificateStatusIssued,
    IssuedAt:      issuedAt,
    Metadata:      metadataJSON,
  }

  saved, err := p.certRepo.Save(persistCtx, nil, record)
  if err != nil {
    if errors.Is(err, repos.ErrDuplicateIssued) {
      // A concurrent writer won the race. Their record is the certificate.
      winner, fetchErr := p.certRepo.GetByLearnerCourse(persistCtx, nil, req.LearnerID, req.CourseID)
      if fetchErr == nil && winner != nil && winner.Status == types.CertificateStatusIssued {
        log.Warn("Concurrent issuance detected, returning existing certificate", "winning_cert_id", winner.CertID)
        return p.resultFromRecord(IssueStatusAlreadyIssued, winner), nil
      }
      return failedResult(&cidDoc), fmt.Errorf("concurrent issuance for learner %s course %s: %w", req.LearnerID, req.CourseID, err)
    }
    partial := failedResult(&cidDoc)
    partial.CIDProof = cidProof
    partial.TxRef = txRef
    return partial, fmt.Errorf("persist certificate record: %w", err)
  }

  p.invalidateVerifyCache(persistCtx, certID)

  if p.email != nil {
    if err := p.email.SendCertificateEmail(persistCtx, CertificateEmailInput{
      RecipientEmail: req.LearnerEmail,
      RecipientName:  req.LearnerName,
      CertID:         certID,
      CourseName:     req.CourseName,
      VerifyURL:      p.verifyURL(certID),
      ProofURL:       p.proofURL(saved),
    }); err != nil {
      log.Warn("Confirmation email failed", "error", err)
    }
  }

  log.Info("Certificate issued",
    "cid_doc", docPin.CID,
    "anchored", txRef != nil,
    "has_proof", cidProof != nil,
  )
  return p.resultFromRecord(IssueStatusSuccess, saved), nil
}

func validateIssueRequest(req IssueRequest) error {
  missing := []string{}
  if strings.TrimSpace(req.LearnerID) == "" {
    missing = append(missing, "learner_id")
  }
  if strings.TrimSpace(req.LearnerName) == "" {
    missing = append(missing, "learner_name")
  }
  if strings.TrimSpace(req.CourseID) == "" {
    missing = append(missing, "course_id")
  }
  if strings.TrimSpace(req.CourseName) == "" {
    missing = append(missing, "course_name")
  }
  if len(missing) > 0 {
    return fmt.Errorf("%w: missing required fields: %s", ErrInvalidRequest, strings.Join(missing, ", "))
  }
  if req.DurationHours < 0 {
    return fmt.Errorf("%w: duration_hours must not be negative", ErrInvalidRequest)
  }
  if req.Modules < 0 {
    return fmt.Errorf("%w: modules must not be negative", ErrInvalidRequest)
  }
  if owner := strings.TrimSpace(req.OwnerAddress); owner != "" && !certledger.ValidAddress(owner) {
    return fmt.Errorf("%w: malformed owner_address %q", ErrInvalidRequest, owner)
  }
  return nil
}

func (p *certificatePipeline) issuerAddress() string {
  if p.ledger != nil {
    return p.ledger.IssuerAddress()
  }
  if addr := strings.TrimSpace(os.Getenv("ISSUER_ADDRESS")); certledger.ValidAddress(addr) {
    return addr
  }
  return zeroAddress
}

// persistFailed leaves a failed record behind a fatal step so the operator can
// see what happened. Best-effort, the pipeline error is what the caller gets.
func (p *certificatePipeline) persistFailed(ctx context.Context, certID string, req IssueRequest, issuerAddress string, issuedAt time.Time, cause error) {
  metadataJSON, err := marshalMetadata(req.Metadata, map[string]string{"error": cause.Error()})
  if err != nil {
    p.log.Warn("Could not encode failure metadata", "cert_id", certID, "error", err)
    return
  }
  record := &types.Certificate{
    CertID:        certID,
    LearnerID:     req.LearnerID,
    CourseID:      req.CourseID,
    IssuerAddress: issuerAddress,
    Status:        types.CertificateStatusFailed,
    IssuedAt:      issuedAt,
    Metadata:      metadataJSON,
  }
  if _, err := p.certRepo.Save(context.WithoutCancel(ctx), nil, record); err != nil {
    p.log.Warn("Could not persist failed certificate record", "cert_id", certID, "error", err)
  }
}

func marshalMetadata(base map[string]string, extra map[string]string) (datatypes.JSON, error) {
  merged := map[string]string{}
  for k, v := range base {
    merged[k] = v
  }
  for k, v := range extra {
    merged[k] = v
  }
  raw, err := json.Marshal(merged)
  if err != nil {
    return nil, err
  }
  return datatypes.JSON(raw), nil
}

func (p *certificatePipeline) resultFromRecord(status string, cert *types.Certificate) *IssueResult {
  result := &IssueResult{
    Status:        status,
    CertID:        cert.CertID,
    CIDDoc:        cert.CIDDoc,
    CIDProof:      cert.CIDProof,
    TxRef:         cert.TxRef,
    IssuerAddress: cert.IssuerAddress,
    VerifyURL:     p.verifyURL(cert.CertID),
    ProofURL:      p.proofURL(cert),
    IssuedAt:      cert.IssuedAt.UTC().Format(time.RFC3339),
  }
  if cert.CIDDoc != nil {
    result.GatewayURL = p.ipfs.GatewayURL(*cert.CIDDoc)
  }
  return result
}

func (p *certificatePipeline) verifyURL(certID string) string {
  return p.verifyBaseURL + "?certId=" + url.QueryEscape(certID)
}

func (p *certificatePipeline) proofURL(cert *types.Certificate) string {
  if cert.CIDProof != nil && *cert.CIDProof != "" {
    if u := p.ipfs.GatewayURL(*cert.CIDProof); u != "" {
      return u
    }
  }
  return p.verifyURL(cert.CertID)
}

func verifyCacheKey(certID string) string { return "verify:" + certID }

func (p *certificatePipeline) invalidateVerifyCache(ctx context.Context, certID string) {
  if p.cache != nil {
    p.cache.Delete(ctx, verifyCacheKey(certID))
  }
}

// Verify reconciles the durable record against the on-chain binding. States
// are checked in strict precedence: a revoked certificate stays revoked even
// when its CIDs still match, and an incomplete record is never compared
// against the chain.
func (p *certificatePipeline) Verify(ctx context.Context, certID string) (*VerifyResult, error) {
  certID = strings.TrimSpace(certID)
  if certID == "" {
    return nil, fmt.Errorf("certId required")
  }

  if p.cache != nil {
    if raw, ok := p.cache.Get(ctx, verifyCacheKey(certID)); ok {
      var cached VerifyResult
      if err := json.Unmarshal(raw, &cached); err == nil {
        return &cached, nil
      }
    }
  }

  result, err := p.verifyUncached(ctx, certID)
  if err != nil {
    return nil, err
  }

  if p.cache != nil {
    if raw, err := json.Marshal(result); err == nil {
      p.cache.Set(ctx, verifyCacheKey(certID), raw)
    }
  }
  return result, nil
}

func (p *certificatePipeline) verifyUncached(ctx context.Context, certID string) (*VerifyResult, error) {
  checkedAt := time.Now().UTC().Format(time.RFC3339)

  cert, err := p.certRepo.GetByCertID(ctx, nil, certID)
  if err != nil {
    return nil, fmt.Errorf("load certificate record: %w", err)
  }
  if cert == nil {
    return &VerifyResult{Status: VerifyStatusNotFound, CertID: certID, CheckedAt: checkedAt}, nil
  }

  result := &VerifyResult{
    CertID:    cert.CertID,
    IssuedAt:  cert.IssuedAt.UTC().Format(time.RFC3339),
    CheckedAt: checkedAt,
  }
  if cert.CIDDoc != nil {
    result.CIDDoc = *cert.CIDDoc
  }
  if cert.TxRef != nil {
    result.TxRef = *cert.TxRef
  }

  if cert.Revoked {
    result.Status = VerifyStatusRevoked
    result.RevocationReason = revocationReason(cert.Metadata)
    return result, nil
  }

  localCID := strings.TrimSpace(result.CIDDoc)
  if cert.Status != types.CertificateStatusIssued || localCID == "" {
    result.Status = VerifyStatusIncomplete
    return result, nil
  }

  if p.ledger == nil {
    return nil, certledger.ErrNotConfigured
  }
  onChainCID, err := p.ledger.GetCertCID(ctx, certID)
  if err != nil {
    return nil, fmt.Errorf("read on-chain binding: %w", err)
  }
  onChainCID = strings.TrimSpace(onChainCID)
  result.OnChainCID = onChainCID

  switch {
  case onChainCID == "":
    result.Status = VerifyStatusNotOnChain
  case onChainCID != localCID:
    result.Status = VerifyStatusMismatch
  default:
    result.Status = VerifyStatusVerified
    result.Verified = true
  }
  return result, nil
}

func revocationReason(metadata datatypes.JSON) string {
  if len(metadata) == 0 {
    return ""
  }
  var m map[string]any
  if err := json.Unmarshal(metadata, &m); err != nil {
    return ""
  }
  if reason, ok := m["revocation_reason"].(string); ok {
    return reason
  }
  return ""
}

// Revoke marks the certificate revoked in the durable record. The on-chain
// binding is untouched: revocation is a database-level state that wins over a
// matching CID during verification.
func (p *certificatePipeline) Revoke(ctx context.Context, certID, reason string) (bool, error) {
  certID = strings.TrimSpace(certID)
  if certID == "" {
    return false, fmt.Errorf("certId required")
  }
  revoked, err := p.certRepo.Revoke(ctx, nil, certID, strings.TrimSpace(reason))
  if err != nil {
    return false, fmt.Errorf("revoke certificate: %w", err)
  }
  if revoked {
    p.invalidateVerifyCache(ctx, certID)
    p.log.Info("Certificate revoked", "cert_id", certID, "reason", reason)
  }
  return revoked, nil
}

func (p *certificatePipeline) ListForLearner(ctx context.Context, learnerID string) ([]*types.Certificate, error) {
  learnerID = strings.TrimSpace(learnerID)
  if learnerID == "" {
    return nil, fmt.Errorf("learnerId required")
  }
  return p.certRepo.ListByLearner(ctx, nil, learnerID)
}
