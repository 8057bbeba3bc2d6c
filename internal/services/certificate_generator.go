package services

import (
  "bytes"
  "context"
  "encoding/json"
  "fmt"
  "image/color"
  "os"
  "strings"
  "time"

  "github.com/fogleman/gg"
  "github.com/golang/freetype/truetype"
  "golang.org/x/image/font"
  "gorm.io/gorm"

  "github.com/learnova/learnova-backend/internal/logger"
  "github.com/learnova/learnova-backend/internal/repos"
  "github.com/learnova/learnova-backend/internal/utils"
)

// CanonicalCertificate is the fixed-shape payload that gets fingerprinted.
// Field order is lexicographic and must stay that way: the rendered document
// is a pure function of this struct, and the CID is a pure function of the
// document. It must never carry the document CID or the ledger tx ref.
type CanonicalCertificate struct {
  CertID        string            `json:"certId"`
  CourseID      string            `json:"courseId"`
  CourseName    string            `json:"courseName"`
  DurationHours float64           `json:"durationHours"`
  Grade         string            `json:"grade"`
  IssuedOn      string            `json:"issuedOn"`
  Issuer        string            `json:"issuer"`
  IssuerAddress string            `json:"issuerAddress"`
  LearnerID     string            `json:"learnerId"`
  Metadata      map[string]string `json:"metadata"`
  Modules       int               `json:"modules"`
  Name          string            `json:"name"`
}

type CertificateGenerator interface {
  // GenerateCertID claims the next serial and formats ISSUER-YYYY-NNNNNN.
  GenerateCertID(ctx context.Context, tx *gorm.DB, year int) (string, error)

  CreateCanonical(certID, learnerID, courseID, courseName, learnerName, grade string,
    durationHours float64, modules int, issuedOn time.Time, issuerAddress string,
    metadata map[string]string) CanonicalCertificate

  // CanonicalJSON is deterministic: identical payloads marshal to identical
  // bytes on every call.
  CanonicalJSON(cert CanonicalCertificate) ([]byte, error)

  // RenderPNG renders the certificate document. Pure function of the
  // canonical payload.
  RenderPNG(cert CanonicalCertificate) ([]byte, error)

  Issuer() string
}

type certificateGenerator struct {
  log        *logger.Logger
  serialRepo repos.CertificateSerialRepo
  issuer     string

  titleFace  font.Face
  headerFace font.Face
  bodyFace   font.Face
}

func NewCertificateGenerator(baseLog *logger.Logger, serialRepo repos.CertificateSerialRepo) (CertificateGenerator, error) {
  serviceLog := baseLog.With("service", "CertificateGenerator")

  issuer := utils.GetEnv("CERT_ISSUER", "LEARNOVA", serviceLog)
  issuer = strings.ToUpper(strings.TrimSpace(issuer))

  fontPath := os.Getenv("CERT_FONT")
  if strings.TrimSpace(fontPath) == "" {
    return nil, fmt.Errorf("Env var CERT_FONT is empty")
  }
  serviceLog.Info("Loading certificate font", "font", fontPath)

  fontBytes, err := os.ReadFile(fontPath)
  if err != nil {
    return nil, fmt.Errorf("failed to read font file: %w", err)
  }
  parsedFont, err := truetype.Parse(fontBytes)
  if err != nil {
    return nil, fmt.Errorf("failed to parse TTF: %w", err)
  }

  newFace := func(size float64) font.Face {
    return truetype.NewFace(parsedFont, &truetype.Options{
      Size:    size,
      DPI:     72,
      Hinting: font.HintingNone,
    })
  }

  return &certificateGenerator{
    log:        serviceLog,
    serialRepo: serialRepo,
    issuer:     issuer,
    titleFace:  newFace(52),
    headerFace: newFace(34),
    bodyFace:   newFace(20),
  }, nil
}

func (g *certificateGenerator) Issuer() string { return g.issuer }

func (g *certificateGenerator) GenerateCertID(ctx context.Context, tx *gorm.DB, year int) (string, error) {
  if year <= 0 {
    year = time.Now().UTC().Year()
  }
  serial, err := g.serialRepo.Next(ctx, tx, g.issuer, year)
  if err != nil {
    return "", fmt.Errorf("claim certificate serial: %w", err)
  }
  return FormatCertID(g.issuer, year, serial), nil
}

// FormatCertID produces the public ISSUER-YYYY-NNNNNN identifier. The 6-digit
// zero-padded serial is part of the public contract (downstream URLs).
func FormatCertID(issuer string, year int, serial int64) string {
  return fmt.Sprintf("%s-%d-%06d", issuer, year, serial)
}

func (g *certificateGenerator) CreateCanonical(certID, learnerID, courseID, courseName, learnerName, grade string,
  durationHours float64, modules int, issuedOn time.Time, issuerAddress string,
  metadata map[string]string) CanonicalCertificate {
  if metadata == nil {
    metadata = map[string]string{}
  }
  return CanonicalCertificate{
    CertID:        certID,
    CourseID:      courseID,
    CourseName:    courseName,
    DurationHours: durationHours,
    Grade:         grade,
    IssuedOn:      issuedOn.UTC().Format(time.RFC3339),
    Issuer:        g.issuer,
    IssuerAddress: issuerAddress,
    LearnerID:     learnerID,
    Metadata:      metadata,
    Modules:       modules,
    Name:          learnerName,
  }
}

func (g *certificateGenerator) CanonicalJSON(cert CanonicalCertificate) ([]byte, error) {
  // Struct field order fixes top-level key order; encoding/json sorts the
  // metadata map keys, so equal payloads always produce equal bytes.
  return json.Marshal(cert)
}

func (g *certificateGenerator) RenderPNG(cert CanonicalCertificate) ([]byte, error) {
  const width, height = 1200, 850

  dc := gg.NewContext(width, height)

  dc.SetColor(color.White)
  dc.DrawRectangle(0, 0, width, height)
  dc.Fill()

  // Border
  dc.SetColor(color.NRGBA{R: 0x1A, G: 0x56, B: 0xDB, A: 0xFF})
  dc.SetLineWidth(6)
  dc.DrawRectangle(30, 30, width-60, height-60)
  dc.Stroke()

  cx := float64(width) / 2

  dc.SetFontFace(g.titleFace)
  drawCentered(dc, "Certificate of Completion", cx, 150)

  dc.SetColor(color.NRGBA{R: 0x1F, G: 0x29, B: 0x37, A: 0xFF})
  dc.SetFontFace(g.bodyFace)
  drawCentered(dc, "This certifies that", cx, 230)

  dc.SetColor(color.NRGBA{R: 0x1A, G: 0x56, B: 0xDB, A: 0xFF})
  dc.SetFontFace(g.headerFace)
  drawCentered(dc, cert.Name, cx, 290)

  dc.SetColor(color.NRGBA{R: 0x1F, G: 0x29, B: 0x37, A: 0xFF})
  dc.SetFontFace(g.bodyFace)
  drawCentered(dc, "has successfully completed the course", cx, 350)

  dc.SetColor(color.NRGBA{R: 0x37, G: 0x41, B: 0x51, A: 0xFF})
  dc.SetFontFace(g.headerFace)
  drawCentered(dc, cert.CourseName, cx, 410)

  details := []string{
    fmt.Sprintf("Certificate ID: %s", cert.CertID),
    fmt.Sprintf("Course ID: %s", cert.CourseID),
    fmt.Sprintf("Grade: %s", cert.Grade),
    fmt.Sprintf("Duration: %.1f hours", cert.DurationHours),
    fmt.Sprintf("Modules Completed: %d", cert.Modules),
    fmt.Sprintf("Issued On: %s", cert.IssuedOn),
    fmt.Sprintf("Issuer: %s", cert.Issuer),
  }

  dc.SetColor(color.NRGBA{R: 0x1F, G: 0x29, B: 0x37, A: 0xFF})
  dc.SetFontFace(g.bodyFace)
  y := 490.0
  for _, line := range details {
    drawCentered(dc, line, cx, y)
    y += 38
  }

  dc.SetColor(color.NRGBA{R: 0x6B, G: 0x72, B: 0x80, A: 0xFF})
  drawCentered(dc, fmt.Sprintf("Issued by %s and anchored on the blockchain.", cert.Issuer), cx, y+30)

  var buf bytes.Buffer
  if err := dc.EncodePNG(&buf); err != nil {
    return nil, fmt.Errorf("failed to encode PNG: %w", err)
  }
  return buf.Bytes(), nil
}

func drawCentered(dc *gg.Context, s string, cx, y float64) {
  tw, _ := dc.MeasureString(s)
  dc.DrawString(s, cx-tw/2, y)
}
