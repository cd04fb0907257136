// Package httpapi exposes the analysis pipeline over HTTP for MTA hooks
// and the analyst console.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mailsentry/mailsentry/internal/core"
	"github.com/mailsentry/mailsentry/internal/lookalike"
	"github.com/mailsentry/mailsentry/internal/pipeline"
)

// Server routes analysis, feedback and verdict retrieval
type Server struct {
	orchestrator *pipeline.Orchestrator
	lookalikes   *lookalike.Service
	verdicts     core.VerdictStore
	router       *mux.Router
	logger       *zap.Logger
}

func NewServer(orchestrator *pipeline.Orchestrator, lookalikes *lookalike.Service, verdicts core.VerdictStore, logger *zap.Logger) *Server {
	s := &Server{
		orchestrator: orchestrator,
		lookalikes:   lookalikes,
		verdicts:     verdicts,
		router:       mux.NewRouter(),
		logger:       logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/v1/analyze", s.handleAnalyze).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/feedback", s.handleFeedback).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/verdicts/{id}", s.handleGetVerdict).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

func (s *Server) Router() http.Handler { return s.router }

// analyzeRequest is the wire form of an analysis submission. The caller is
// responsible for MIME parsing; this API takes the normalized email.
type analyzeRequest struct {
	TenantID string     `json:"tenant_id"`
	Email    emailInput `json:"email"`
}

type emailInput struct {
	MessageID           string              `json:"message_id"`
	From                string              `json:"from"`
	FromDisplayName     string              `json:"from_display_name"`
	ReplyTo             string              `json:"reply_to"`
	To                  []string            `json:"to"`
	Subject             string              `json:"subject"`
	TextBody            string              `json:"text_body"`
	HTMLBody            string              `json:"html_body"`
	Headers             map[string][]string `json:"headers"`
	URLs                []string            `json:"urls"`
	Attachments         []attachmentInput   `json:"attachments"`
	SenderDomainAgeDays *int                `json:"sender_domain_age_days"`
	ThreadParticipants  []string            `json:"thread_participants"`
	IsReply             bool                `json:"is_reply"`
}

type attachmentInput struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	SHA256      string `json:"sha256"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email.From == "" {
		s.writeError(w, http.StatusBadRequest, "email.from is required")
		return
	}
	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = r.Header.Get("X-Tenant-ID")
	}
	if tenantID == "" {
		s.writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	email := toCoreEmail(req.Email)
	verdict := s.orchestrator.Analyze(r.Context(), email, tenantID, nil)
	s.writeJSON(w, http.StatusOK, verdict)
}

type feedbackRequest struct {
	Domain          string `json:"domain"`
	WasCorrect      bool   `json:"was_correct"`
	ConfirmedThreat bool   `json:"confirmed_threat"`
	Source          string `json:"source"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Domain == "" {
		s.writeError(w, http.StatusBadRequest, "domain is required")
		return
	}

	source := core.FeedbackSource(req.Source)
	switch source {
	case core.FeedbackAnalyst, core.FeedbackUser, core.FeedbackAutomated:
	default:
		source = core.FeedbackUser
	}

	s.lookalikes.RecordFeedback(req.Domain, req.WasCorrect, req.ConfirmedThreat, source)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

func (s *Server) handleGetVerdict(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid verdict id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	verdict, err := s.verdicts.GetVerdict(ctx, id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "verdict not found")
		return
	}
	s.writeJSON(w, http.StatusOK, verdict)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func toCoreEmail(in emailInput) *core.Email {
	attachments := make([]core.Attachment, 0, len(in.Attachments))
	for _, a := range in.Attachments {
		attachments = append(attachments, core.Attachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        a.Size,
			SHA256:      a.SHA256,
		})
	}

	ageDays := -1
	if in.SenderDomainAgeDays != nil {
		ageDays = *in.SenderDomainAgeDays
	}

	return &core.Email{
		MessageID:           in.MessageID,
		From:                in.From,
		FromDisplayName:     in.FromDisplayName,
		ReplyTo:             in.ReplyTo,
		To:                  in.To,
		Subject:             in.Subject,
		TextBody:            in.TextBody,
		HTMLBody:            in.HTMLBody,
		Headers:             in.Headers,
		Attachments:         attachments,
		URLs:                in.URLs,
		ReceivedAt:          time.Now(),
		SenderDomainAgeDays: ageDays,
		ThreadParticipants:  in.ThreadParticipants,
		IsReply:             in.IsReply,
	}
}
