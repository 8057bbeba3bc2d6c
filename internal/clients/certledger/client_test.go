package certledger

import (
  "context"
  "encoding/json"
  "errors"
  "net/http"
  "net/http/httptest"
  "testing"
  "time"

  "github.com/learnova/learnova-backend/internal/logger"
)

const (
  testContract = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
  testIssuer   = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func newTestLedger(t *testing.T, baseURL string) Client {
  t.Helper()
  log, err := logger.New("test")
  if err != nil {
    t.Fatalf("logger.New: %v", err)
  }
  c, err := New(log, Config{
    BaseURL:         baseURL,
    APIKey:          "test-key",
    ContractAddress: testContract,
    IssuerAddress:   testIssuer,
    Timeout:         5 * time.Second,
    ConfirmTimeout:  5 * time.Second,
  })
  if err != nil {
    t.Fatalf("New: %v", err)
  }
  return c
}

func TestValidAddress(t *testing.T) {
  cases := []struct {
    in   string
    want bool
  }{
    {testContract, true},
    {"0xAbCdEf0123456789aBcDeF0123456789abcdef01", true},
    {"  " + testIssuer + "  ", true},
    {"0x123", false},
    {"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", false},
    {"0xgggggggggggggggggggggggggggggggggggggggg", false},
    {"", false},
  }
  for _, tc := range cases {
    if got := ValidAddress(tc.in); got != tc.want {
      t.Fatalf("ValidAddress(%q): want=%v got=%v", tc.in, tc.want, got)
    }
  }
}

func TestNewRequiresConfiguration(t *testing.T) {
  log, err := logger.New("test")
  if err != nil {
    t.Fatalf("logger.New: %v", err)
  }
  _, err = New(log, Config{})
  if !errors.Is(err, ErrNotConfigured) {
    t.Fatalf("expected ErrNotConfigured, got %v", err)
  }
  _, err = New(log, Config{BaseURL: "http://x", ContractAddress: "0x123", IssuerAddress: testIssuer})
  if err == nil {
    t.Fatalf("expected error for malformed contract address")
  }
}

func TestStoreCertAnchorsNewBinding(t *testing.T) {
  var posted storeCertRequest
  srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodGet:
      w.WriteHeader(http.StatusNotFound)
    case http.MethodPost:
      if r.URL.Path != "/v1/registry/"+testContract+"/certificates" {
        t.Fatalf("unexpected path %q", r.URL.Path)
      }
      if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
        t.Fatalf("authorization header: got=%q", got)
      }
      if err := json.NewDecoder(r.Body).Decode(&posted); err != nil {
        t.Fatalf("decode request: %v", err)
      }
      _ = json.NewEncoder(w).Encode(storeCertResponse{
        TxRef:       "0xdeadbeef",
        BlockNumber: 77,
        Status:      "confirmed",
      })
    }
  }))
  defer srv.Close()

  c := newTestLedger(t, srv.URL)
  result, err := c.StoreCert(context.Background(), "LEARNOVA-2026-000001", "QmDoc", "")
  if err != nil {
    t.Fatalf("StoreCert: %v", err)
  }
  if result.Status != StatusConfirmed {
    t.Fatalf("status: want=%q got=%q", StatusConfirmed, result.Status)
  }
  if result.TxRef != "0xdeadbeef" || result.BlockNumber != 77 {
    t.Fatalf("result mismatch: %+v", result)
  }
  // Empty owner falls back to the issuer address.
  if posted.Owner != testIssuer {
    t.Fatalf("owner: want=%q got=%q", testIssuer, posted.Owner)
  }
  if posted.CertID != "LEARNOVA-2026-000001" || posted.CID != "QmDoc" {
    t.Fatalf("posted binding mismatch: %+v", posted)
  }
}

func TestStoreCertSkipsWriteWhenAlreadyAnchored(t *testing.T) {
  var postCalls int
  srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodGet:
      _ = json.NewEncoder(w).Encode(certEntry{
        CertID: "LEARNOVA-2026-000001",
        CID:    "QmDoc",
      })
    case http.MethodPost:
      postCalls++
      w.WriteHeader(http.StatusInternalServerError)
    }
  }))
  defer srv.Close()

  c := newTestLedger(t, srv.URL)
  result, err := c.StoreCert(context.Background(), "LEARNOVA-2026-000001", "QmDoc", testIssuer)
  if err != nil {
    t.Fatalf("StoreCert: %v", err)
  }
  if result.Status != StatusAlreadyStored {
    t.Fatalf("status: want=%q got=%q", StatusAlreadyStored, result.Status)
  }
  if result.TxRef != "" {
    t.Fatalf("tx ref on already-stored: got=%q", result.TxRef)
  }
  if postCalls != 0 {
    t.Fatalf("write calls when binding already anchored: want=0 got=%d", postCalls)
  }
}

func TestStoreCertRejectsMalformedOwner(t *testing.T) {
  c := newTestLedger(t, "http://unused")
  if _, err := c.StoreCert(context.Background(), "LEARNOVA-2026-000001", "QmDoc", "not-an-address"); err == nil {
    t.Fatalf("StoreCert: expected error for malformed owner")
  }
}

func TestGetCertCIDTreatsNotFoundAsAbsence(t *testing.T) {
  srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
    w.WriteHeader(http.StatusNotFound)
  }))
  defer srv.Close()

  c := newTestLedger(t, srv.URL)
  cid, err := c.GetCertCID(context.Background(), "LEARNOVA-2026-999999")
  if err != nil {
    t.Fatalf("GetCertCID: %v", err)
  }
  if cid != "" {
    t.Fatalf("cid for absent entry: want empty, got=%q", cid)
  }
}

func TestGetCertCIDPropagatesServerErrors(t *testing.T) {
  srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
    w.WriteHeader(http.StatusBadGateway)
  }))
  defer srv.Close()

  c := newTestLedger(t, srv.URL)
  if _, err := c.GetCertCID(context.Background(), "LEARNOVA-2026-000001"); err == nil {
    t.Fatalf("GetCertCID: expected error on 502")
  }
}
