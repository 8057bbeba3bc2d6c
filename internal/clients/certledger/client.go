package certledger

import (
  "bytes"
  "context"
  "encoding/json"
  "errors"
  "fmt"
  "io"
  "net/http"
  "os"
  "regexp"
  "strings"
  "time"

  "github.com/learnova/learnova-backend/internal/logger"
  "github.com/learnova/learnova-backend/internal/utils"
)

// Client reads and writes (certId -> CID, owner) bindings on the CertRegistry
// ledger. Writes go through a read-before-write check so a retried anchoring
// step stays idempotent; reads represent a missing entry as absence, not an
// error. Writes are not retried internally.
type Client interface {
  // StoreCert anchors the binding if absent. When the ledger already holds
  // the same (certId, cid) pair the call succeeds with StatusAlreadyStored
  // and no transaction is sent.
  StoreCert(ctx context.Context, certID, cid, ownerAddress string) (*StoreResult, error)

  // GetCertCID returns the on-chain CID for certID, or "" when the ledger
  // has no entry.
  GetCertCID(ctx context.Context, certID string) (string, error)

  IssuerAddress() string
}

const (
  StatusConfirmed     = "confirmed"
  StatusAlreadyStored = "already_stored"
)

type StoreResult struct {
  Status      string
  TxRef       string
  BlockNumber int64
}

// ErrNotConfigured distinguishes a missing ledger configuration from
// transient RPC failures.
var ErrNotConfigured = errors.New("certledger not configured: set LEDGER_API_URL, CONTRACT_ADDRESS and ISSUER_ADDRESS")

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidAddress reports whether s is a well-formed 0x-prefixed 20-byte hex
// address. Checked before any side effect.
func ValidAddress(s string) bool {
  return addressPattern.MatchString(strings.TrimSpace(s))
}

type Config struct {
  BaseURL         string
  APIKey          string
  ContractAddress string
  IssuerAddress   string
  Timeout         time.Duration
  ConfirmTimeout  time.Duration
}

func ConfigFromEnv(log *logger.Logger) Config {
  timeoutSec := utils.GetEnvAsInt("LEDGER_TIMEOUT_SECONDS", 15, log)
  confirmSec := utils.GetEnvAsInt("LEDGER_CONFIRM_TIMEOUT_SECONDS", 120, log)
  return Config{
    BaseURL:         strings.TrimSpace(os.Getenv("LEDGER_API_URL")),
    APIKey:          strings.TrimSpace(os.Getenv("LEDGER_API_KEY")),
    ContractAddress: strings.TrimSpace(os.Getenv("CONTRACT_ADDRESS")),
    IssuerAddress:   strings.TrimSpace(os.Getenv("ISSUER_ADDRESS")),
    Timeout:         time.Duration(timeoutSec) * time.Second,
    ConfirmTimeout:  time.Duration(confirmSec) * time.Second,
  }
}

func NewFromEnv(log *logger.Logger) (Client, error) {
  return New(log, ConfigFromEnv(log))
}

func New(log *logger.Logger, cfg Config) (Client, error) {
  if cfg.BaseURL == "" || cfg.ContractAddress == "" || cfg.IssuerAddress == "" {
    return nil, ErrNotConfigured
  }
  if !ValidAddress(cfg.ContractAddress) {
    return nil, fmt.Errorf("certledger: invalid CONTRACT_ADDRESS %q", cfg.ContractAddress)
  }
  if !ValidAddress(cfg.IssuerAddress) {
    return nil, fmt.Errorf("certledger: invalid ISSUER_ADDRESS %q", cfg.IssuerAddress)
  }
  if cfg.Timeout <= 0 {
    cfg.Timeout = 15 * time.Second
  }
  if cfg.ConfirmTimeout <= 0 {
    cfg.ConfirmTimeout = 120 * time.Second
  }
  cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

  return &client{
    log:        log.With("client", "CertLedgerClient"),
    cfg:        cfg,
    httpClient: &http.Client{Timeout: cfg.Timeout},
  }, nil
}

type client struct {
  log        *logger.Logger
  cfg        Config
  httpClient *http.Client
}

type ledgerHTTPError struct {
  StatusCode int
  Body       string
}

func (e *ledgerHTTPError) Error() string {
  return fmt.Sprintf("certledger http %d: %s", e.StatusCode, e.Body)
}

// --- wire types ---

type certEntry struct {
  CertID string `json:"cert_id"`
  CID    string `json:"cid"`
  Owner  string `json:"owner,omitempty"`
  TxRef  string `json:"tx_ref,omitempty"`
}

type storeCertRequest struct {
  CertID string `json:"cert_id"`
  CID    string `json:"cid"`
  Owner  string `json:"owner"`
}

type storeCertResponse struct {
  TxRef       string `json:"tx_ref"`
  BlockNumber int64  `json:"block_number"`
  Status      string `json:"status"`
}

func (c *client) IssuerAddress() string {
  return c.cfg.IssuerAddress
}

func (c *client) StoreCert(ctx context.Context, certID, cid, ownerAddress string) (*StoreResult, error) {
  certID = strings.TrimSpace(certID)
  cid = strings.TrimSpace(cid)
  if certID == "" {
    return nil, fmt.Errorf("certledger: certID required")
  }
  if cid == "" {
    return nil, fmt.Errorf("certledger: cid required")
  }

  owner := strings.TrimSpace(ownerAddress)
  if owner == "" {
    owner = c.cfg.IssuerAddress
  }
  if !ValidAddress(owner) {
    return nil, fmt.Errorf("certledger: invalid owner address %q", owner)
  }

  // Read before write: a retried anchoring step must not double-anchor.
  existing, err := c.GetCertCID(ctx, certID)
  if err != nil {
    c.log.Debug("Could not check existing ledger entry", "cert_id", certID, "error", err)
  } else if existing != "" && existing == cid {
    c.log.Warn("Certificate already anchored with same CID, skipping write", "cert_id", certID, "cid", cid)
    return &StoreResult{Status: StatusAlreadyStored}, nil
  }

  ctx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
  defer cancel()

  reqBody := storeCertRequest{CertID: certID, CID: cid, Owner: owner}
  raw, err := c.do(ctx, http.MethodPost, c.certsPath(), reqBody)
  if err != nil {
    return nil, err
  }

  var parsed storeCertResponse
  if err := json.Unmarshal(raw, &parsed); err != nil {
    return nil, fmt.Errorf("certledger decode error: %w; raw=%s", err, string(raw))
  }
  if parsed.TxRef == "" {
    return nil, fmt.Errorf("certledger: no tx_ref in response: %s", string(raw))
  }

  status := parsed.Status
  if status == "" {
    status = StatusConfirmed
  }
  c.log.Info("Certificate anchored on ledger", "cert_id", certID, "tx_ref", parsed.TxRef, "block", parsed.BlockNumber)
  return &StoreResult{
    Status:      status,
    TxRef:       parsed.TxRef,
    BlockNumber: parsed.BlockNumber,
  }, nil
}

func (c *client) GetCertCID(ctx context.Context, certID string) (string, error) {
  certID = strings.TrimSpace(certID)
  if certID == "" {
    return "", fmt.Errorf("certledger: certID required")
  }

  raw, err := c.do(ctx, http.MethodGet, c.certsPath()+"/"+certID, nil)
  if err != nil {
    var httpErr *ledgerHTTPError
    if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
      return "", nil
    }
    return "", err
  }

  var entry certEntry
  if err := json.Unmarshal(raw, &entry); err != nil {
    return "", fmt.Errorf("certledger decode error: %w; raw=%s", err, string(raw))
  }
  return strings.TrimSpace(entry.CID), nil
}

func (c *client) certsPath() string {
  return fmt.Sprintf("/v1/registry/%s/certificates", c.cfg.ContractAddress)
}

func (c *client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
  var buf bytes.Buffer
  if body != nil {
    if err := json.NewEncoder(&buf).Encode(body); err != nil {
      return nil, err
    }
  }

  req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, &buf)
  if err != nil {
    return nil, err
  }
  if c.cfg.APIKey != "" {
    req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
  }
  req.Header.Set("Content-Type", "application/json")

  resp, err := c.httpClient.Do(req)
  if err != nil {
    return nil, err
  }
  raw, readErr := io.ReadAll(resp.Body)
  _ = resp.Body.Close()
  if readErr != nil {
    return nil, readErr
  }

  if resp.StatusCode < 200 || resp.StatusCode >= 300 {
    return nil, &ledgerHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
  }
  return raw, nil
}
