package sendgrid

import (
  "bytes"
  "context"
  "encoding/json"
  "fmt"
  "io"
  "net/http"
  "os"
  "strings"
  "time"

  "github.com/learnova/learnova-backend/internal/logger"
  "github.com/learnova/learnova-backend/internal/utils"
)

type Client interface {
  Send(ctx context.Context, req SendEmailRequest) (*SendEmailResult, error)
}

type Config struct {
  APIKey           string
  BaseURL          string
  DefaultFromEmail string
  DefaultFromName  string
  Timeout          time.Duration
}

func ConfigFromEnv(log *logger.Logger) Config {
  timeoutSec := utils.GetEnvAsInt("SENDGRID_TIMEOUT_SECONDS", 30, log)
  return Config{
    APIKey:           strings.TrimSpace(os.Getenv("SENDGRID_API_KEY")),
    BaseURL:          strings.TrimSpace(os.Getenv("SENDGRID_BASE_URL")),
    DefaultFromEmail: strings.TrimSpace(os.Getenv("SENDGRID_FROM_EMAIL")),
    DefaultFromName:  strings.TrimSpace(os.Getenv("SENDGRID_FROM_NAME")),
    Timeout:          time.Duration(timeoutSec) * time.Second,
  }
}

func NewFromEnv(log *logger.Logger) (Client, error) {
  return New(log, ConfigFromEnv(log))
}

func New(log *logger.Logger, cfg Config) (Client, error) {
  if log == nil {
    return nil, fmt.Errorf("logger required")
  }
  if cfg.APIKey == "" {
    return nil, fmt.Errorf("missing SENDGRID_API_KEY")
  }
  if cfg.BaseURL == "" {
    cfg.BaseURL = "https://api.sendgrid.com"
  }
  cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
  if cfg.Timeout <= 0 {
    cfg.Timeout = 30 * time.Second
  }

  return &client{
    log:        log.With("client", "SendGridClient"),
    cfg:        cfg,
    httpClient: &http.Client{Timeout: cfg.Timeout},
  }, nil
}

type client struct {
  log        *logger.Logger
  cfg        Config
  httpClient *http.Client
}

type EmailAddress struct {
  Email string `json:"email"`
  Name  string `json:"name,omitempty"`
}

type SendEmailRequest struct {
  From    EmailAddress
  To      []EmailAddress
  Subject string
  Text    string
  HTML    string
}

type SendEmailResult struct {
  StatusCode int
  MessageID  string
}

// --- SendGrid mail send wire types ---

type mailSendRequest struct {
  Personalizations []personalization `json:"personalizations"`
  From             EmailAddress      `json:"from"`
  Subject          string            `json:"subject,omitempty"`
  Content          []mailContent     `json:"content,omitempty"`
}

type personalization struct {
  To []EmailAddress `json:"to"`
}

type mailContent struct {
  Type  string `json:"type"`
  Value string `json:"value"`
}

func (c *client) Send(ctx context.Context, req SendEmailRequest) (*SendEmailResult, error) {
  if c == nil || c.httpClient == nil {
    return nil, fmt.Errorf("sendgrid client unavailable")
  }

  if strings.TrimSpace(req.From.Email) == "" {
    req.From.Email = c.cfg.DefaultFromEmail
    if strings.TrimSpace(req.From.Name) == "" {
      req.From.Name = c.cfg.DefaultFromName
    }
  }
  req.From.Email = strings.TrimSpace(req.From.Email)
  req.Subject = strings.TrimSpace(req.Subject)

  if req.From.Email == "" {
    return nil, fmt.Errorf("sendgrid: From.Email required (or set SENDGRID_FROM_EMAIL)")
  }
  if len(req.To) == 0 {
    return nil, fmt.Errorf("sendgrid: To required")
  }
  if req.Subject == "" {
    return nil, fmt.Errorf("sendgrid: Subject required")
  }

  contents := []mailContent{}
  if t := strings.TrimSpace(req.Text); t != "" {
    contents = append(contents, mailContent{Type: "text/plain", Value: t})
  }
  if h := strings.TrimSpace(req.HTML); h != "" {
    contents = append(contents, mailContent{Type: "text/html", Value: h})
  }
  if len(contents) == 0 {
    return nil, fmt.Errorf("sendgrid: Text or HTML content required")
  }

  wire := mailSendRequest{
    Personalizations: []personalization{{To: req.To}},
    From:             req.From,
    Subject:          req.Subject,
    Content:          contents,
  }

  var buf bytes.Buffer
  if err := json.NewEncoder(&buf).Encode(wire); err != nil {
    return nil, err
  }

  httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v3/mail/send", &buf)
  if err != nil {
    return nil, err
  }
  httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
  httpReq.Header.Set("Content-Type", "application/json")

  resp, err := c.httpClient.Do(httpReq)
  if err != nil {
    return nil, err
  }
  raw, _ := io.ReadAll(resp.Body)
  _ = resp.Body.Close()

  if resp.StatusCode < 200 || resp.StatusCode >= 300 {
    return nil, fmt.Errorf("sendgrid http %d: %s", resp.StatusCode, string(raw))
  }

  return &SendEmailResult{
    StatusCode: resp.StatusCode,
    MessageID:  resp.Header.Get("X-Message-Id"),
  }, nil
}
