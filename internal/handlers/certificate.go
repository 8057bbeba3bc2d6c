package handlers

import (
  "errors"
  "net/http"
  "strings"

  "github.com/gin-gonic/gin"

  "github.com/learnova/learnova-backend/internal/clients/certledger"
  "github.com/learnova/learnova-backend/internal/logger"
  "github.com/learnova/learnova-backend/internal/services"
)

type CertificateHandler struct {
  log      *logger.Logger
  pipeline services.CertificatePipeline
}

func NewCertificateHandler(log *logger.Logger, pipeline services.CertificatePipeline) *CertificateHandler {
  return &CertificateHandler{
    log:      log.With("handler", "CertificateHandler"),
    pipeline: pipeline,
  }
}

func (h *CertificateHandler) Issue(c *gin.Context) {
  var req services.IssueRequest
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
    return
  }
  result, err := h.pipeline.Issue(c.Request.Context(), req)
  if err != nil {
    if errors.Is(err, services.ErrInvalidRequest) {
      RespondError(c, http.StatusBadRequest, "invalid_request", err)
      return
    }
    if result == nil {
      h.log.Error("Issue failed", "error", err, "learner_id", req.LearnerID, "course_id", req.CourseID)
      RespondError(c, http.StatusInternalServerError, "issue_failed", err)
      return
    }
    h.log.Error("Issue failed", "error", err, "cert_id", result.CertID, "learner_id", req.LearnerID, "course_id", req.CourseID)
    // The failed result still carries the identifiers assigned so far.
    c.JSON(http.StatusInternalServerError, gin.H{
      "error":  APIError{Message: err.Error(), Code: "issue_failed"},
      "result": result,
    })
    return
  }
  RespondOK(c, result)
}

func (h *CertificateHandler) Verify(c *gin.Context) {
  certID := strings.TrimSpace(c.Query("certId"))
  if certID == "" {
    RespondError(c, http.StatusBadRequest, "missing_cert_id", errors.New("query parameter certId is required"))
    return
  }
  result, err := h.pipeline.Verify(c.Request.Context(), certID)
  if err != nil {
    if errors.Is(err, certledger.ErrNotConfigured) {
      RespondError(c, http.StatusServiceUnavailable, "ledger_unavailable", err)
      return
    }
    h.log.Error("Verify failed", "error", err, "cert_id", certID)
    RespondError(c, http.StatusInternalServerError, "verify_failed", err)
    return
  }
  RespondOK(c, result)
}

type revokeRequest struct {
  CertID string `json:"cert_id"`
  Reason string `json:"reason"`
}

func (h *CertificateHandler) Revoke(c *gin.Context) {
  var req revokeRequest
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
    return
  }
  if strings.TrimSpace(req.CertID) == "" {
    RespondError(c, http.StatusBadRequest, "missing_cert_id", errors.New("cert_id is required"))
    return
  }
  revoked, err := h.pipeline.Revoke(c.Request.Context(), req.CertID, req.Reason)
  if err != nil {
    h.log.Error("Revoke failed", "error", err, "cert_id", req.CertID)
    RespondError(c, http.StatusInternalServerError, "revoke_failed", err)
    return
  }
  if !revoked {
    RespondError(c, http.StatusNotFound, "certificate_not_found", errors.New("no certificate with that id"))
    return
  }
  RespondOK(c, gin.H{"cert_id": req.CertID, "revoked": true})
}

func (h *CertificateHandler) ListForLearner(c *gin.Context) {
  learnerID := strings.TrimSpace(c.Query("userId"))
  if learnerID == "" {
    RespondError(c, http.StatusBadRequest, "missing_user_id", errors.New("query parameter userId is required"))
    return
  }
  certs, err := h.pipeline.ListForLearner(c.Request.Context(), learnerID)
  if err != nil {
    h.log.Error("ListForLearner failed", "error", err, "learner_id", learnerID)
    RespondError(c, http.StatusInternalServerError, "list_failed", err)
    return
  }
  RespondOK(c, gin.H{"certificates": certs})
}
