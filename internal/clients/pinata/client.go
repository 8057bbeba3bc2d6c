package pinata

import (
  "bytes"
  "context"
  "encoding/json"
  "errors"
  "fmt"
  "io"
  "mime/multipart"
  "net"
  "net/http"
  "os"
  "strings"
  "time"

  "github.com/learnova/learnova-backend/internal/logger"
  "github.com/learnova/learnova-backend/internal/utils"
)

// Client pins opaque byte payloads to IPFS via Pinata and returns the CID.
type Client interface {
  PinBuffer(ctx context.Context, content []byte, name string) (*PinResult, error)
  GatewayURL(cid string) string
}

type PinResult struct {
  CID        string
  IPFSURL    string
  GatewayURL string
}

// ErrNotConfigured distinguishes missing credentials from transient pin
// failures so callers can present "service not configured" instead of
// "please retry".
var ErrNotConfigured = errors.New("pinata not configured: set PINATA_JWT")

type client struct {
  log         *logger.Logger
  baseURL     string
  jwtToken    string
  gatewayBase string
  httpClient  *http.Client

  maxAttempts int
  baseDelay   time.Duration
}

func New(log *logger.Logger) (Client, error) {
  jwtToken := strings.TrimSpace(os.Getenv("PINATA_JWT"))
  if jwtToken == "" {
    return nil, ErrNotConfigured
  }

  baseURL := utils.GetEnv("PINATA_BASE_URL", "https://api.pinata.cloud", log)
  gatewayBase := utils.GetEnv("IPFS_GATEWAY_BASE", "https://ipfs.io/ipfs/", log)

  timeoutSec := utils.GetEnvAsInt("PINATA_TIMEOUT_SECONDS", 60, log)
  maxAttempts := utils.GetEnvAsInt("PINATA_MAX_ATTEMPTS", 3, log)
  if maxAttempts < 1 {
    maxAttempts = 1
  }
  baseDelaySec := utils.GetEnvAsInt("PINATA_RETRY_BASE_SECONDS", 2, log)

  return &client{
    log:         log.With("client", "PinataClient"),
    baseURL:     strings.TrimRight(baseURL, "/"),
    jwtToken:    jwtToken,
    gatewayBase: gatewayBase,
    httpClient:  &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
    maxAttempts: maxAttempts,
    baseDelay:   time.Duration(baseDelaySec) * time.Second,
  }, nil
}

type pinataHTTPError struct {
  StatusCode int
  Body       string
}

func (e *pinataHTTPError) Error() string {
  return fmt.Sprintf("pinata http %d: %s", e.StatusCode, e.Body)
}

func isRetryableHTTP(code int) bool {
  if code == 408 || code == 429 {
    return true
  }
  if code >= 500 && code <= 599 {
    return true
  }
  return false
}

// Validation and auth failures (4xx) fail fast; only transport errors and
// server-side failures are worth another attempt.
func isRetryableErr(err error) bool {
  if err == nil {
    return false
  }
  var netErr net.Error
  if errors.As(err, &netErr) {
    return true
  }
  var httpErr *pinataHTTPError
  if errors.As(err, &httpErr) {
    return isRetryableHTTP(httpErr.StatusCode)
  }
  var opErr *net.OpError
  if errors.As(err, &opErr) {
    return true
  }
  return false
}

type pinFileResponse struct {
  IpfsHash  string `json:"IpfsHash"`
  PinSize   int64  `json:"PinSize"`
  Timestamp string `json:"Timestamp"`
}

func (c *client) PinBuffer(ctx context.Context, content []byte, name string) (*PinResult, error) {
  if len(content) == 0 {
    return nil, fmt.Errorf("pinata: empty payload for %q", name)
  }
  if strings.TrimSpace(name) == "" {
    name = "payload.bin"
  }

  var lastErr error
  for attempt := 1; attempt <= c.maxAttempts; attempt++ {
    if ctx.Err() != nil {
      return nil, ctx.Err()
    }

    result, err := c.pinOnce(ctx, content, name)
    if err == nil {
      c.log.Info("Pinned payload to IPFS", "name", name, "cid", result.CID, "attempt", attempt)
      return result, nil
    }
    lastErr = err

    if !isRetryableErr(err) {
      return nil, err
    }
    if attempt == c.maxAttempts {
      break
    }

    sleepFor := time.Duration(attempt) * c.baseDelay
    c.log.Warn("Pinata pin retrying",
      "name", name,
      "attempt", attempt,
      "max_attempts", c.maxAttempts,
      "sleep", sleepFor.String(),
      "error", err.Error(),
    )
    select {
    case <-ctx.Done():
      return nil, ctx.Err()
    case <-time.After(sleepFor):
    }
  }

  return nil, fmt.Errorf("pinata: failed to pin %q after %d attempts: %w", name, c.maxAttempts, lastErr)
}

func (c *client) pinOnce(ctx context.Context, content []byte, name string) (*PinResult, error) {
  var body bytes.Buffer
  writer := multipart.NewWriter(&body)

  part, err := writer.CreateFormFile("file", name)
  if err != nil {
    return nil, err
  }
  if _, err := part.Write(content); err != nil {
    return nil, err
  }

  meta, err := json.Marshal(map[string]any{"name": name})
  if err != nil {
    return nil, err
  }
  if err := writer.WriteField("pinataMetadata", string(meta)); err != nil {
    return nil, err
  }
  if err := writer.Close(); err != nil {
    return nil, err
  }

  req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/pinning/pinFileToIPFS", &body)
  if err != nil {
    return nil, err
  }
  req.Header.Set("Authorization", "Bearer "+c.jwtToken)
  req.Header.Set("Content-Type", writer.FormDataContentType())

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
    return nil, &pinataHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
  }

  var parsed pinFileResponse
  if err := json.Unmarshal(raw, &parsed); err != nil {
    return nil, fmt.Errorf("pinata decode error: %w; raw=%s", err, string(raw))
  }
  if parsed.IpfsHash == "" {
    return nil, fmt.Errorf("pinata: no IpfsHash in response: %s", string(raw))
  }

  return &PinResult{
    CID:        parsed.IpfsHash,
    IPFSURL:    "ipfs://" + parsed.IpfsHash,
    GatewayURL: c.GatewayURL(parsed.IpfsHash),
  }, nil
}

func (c *client) GatewayURL(cid string) string {
  cid = strings.TrimSpace(cid)
  cid = strings.TrimPrefix(cid, "ipfs://")
  if cid == "" {
    return ""
  }
  return c.gatewayBase + cid
}
