package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"textadapt/internal/util"
	"textadapt/pkg/domain"
	"textadapt/pkg/readability"
	"textadapt/services/adapt/internal/app"
)

// IdentityVerifier authenticates a bearer token.
type IdentityVerifier interface {
	VerifyIdentity(token string) (domain.Identity, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Verifier       IdentityVerifier
	TrustedProxies *util.TrustedProxies
}

// Server exposes HTTP endpoints for the adaptation service.
type Server struct {
	app      *app.App
	verifier IdentityVerifier
	trusted  *util.TrustedProxies
	mux      *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("identity verifier required")
	}
	s := &Server{
		app:      cfg.App,
		verifier: cfg.Verifier,
		trusted:  cfg.TrustedProxies,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("adapt", s.trusted, util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/api/adapt", s.withUser(s.handleSubmit))
	s.mux.Handle("/api/adapt/report", s.withUser(s.handleReport))
	s.mux.Handle("/api/profile", s.withUser(s.handleProfile))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.Identity)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", codeFor(app.KindUnauthorized))
			return
		}
		caller, err := s.verifier.VerifyIdentity(token)
		if err != nil {
			util.LoggerFromContext(r.Context()).Info("token rejected", "err", err)
			writeError(w, http.StatusUnauthorized, "unauthorized", codeFor(app.KindUnauthorized))
			return
		}
		ctx := util.ContextWithLogger(r.Context(), util.LoggerFromContext(r.Context()).With("uid", caller.UID))
		next(w, r.WithContext(ctx), caller)
	})
}

type paragraphPayload struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

type submitData struct {
	Title                string             `json:"title"`
	SimplifiedParagraphs []paragraphPayload `json:"simplified_paragraphs"`
}

type submitResponse struct {
	Status string     `json:"status"`
	JobID  string     `json:"jobId"`
	Data   submitData `json:"data"`
}

type rejectedResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req app.SubmitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body", codeFor(app.KindValidation))
		return
	}
	res, err := s.app.Submit(r.Context(), caller, req)
	if err != nil {
		if app.KindOf(err) == app.KindRejected {
			writeJSON(w, http.StatusBadRequest, rejectedResponse{Status: "rejected", Message: app.PublicMessage(err)})
			return
		}
		writeAppError(w, err)
		return
	}
	paragraphs := make([]paragraphPayload, len(res.Paragraphs))
	for i, p := range res.Paragraphs {
		paragraphs[i] = paragraphPayload{ID: p.ID, Text: p.Text}
	}
	writeJSON(w, http.StatusOK, submitResponse{
		Status: string(domain.JobProcessing),
		JobID:  res.JobID,
		Data:   submitData{Title: res.Title, SimplifiedParagraphs: paragraphs},
	})
}

type reportResponse struct {
	Status   string              `json:"status"`
	Analysis *readability.Report `json:"analysis,omitempty"`
	Details  string              `json:"details,omitempty"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	job, err := s.app.Report(r.Context(), caller, r.URL.Query().Get("jobId"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	switch job.Status {
	case domain.JobCompleted:
		writeJSON(w, http.StatusOK, reportResponse{Status: string(job.Status), Analysis: job.Analysis})
	case domain.JobFailed:
		writeJSON(w, http.StatusInternalServerError, reportResponse{Status: string(job.Status), Details: job.Error})
	default:
		writeJSON(w, http.StatusAccepted, reportResponse{Status: string(domain.JobProcessing)})
	}
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	switch r.Method {
	case http.MethodGet:
		profile, err := s.app.Profile(r.Context(), caller.UID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	case http.MethodPut:
		var req app.ProfileUpdate
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body", codeFor(app.KindValidation))
			return
		}
		profile, err := s.app.UpdateProfile(r.Context(), caller.UID, req)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	default:
		methodNotAllowed(w)
	}
}

// statusForKind is the single mapping from error kind to HTTP status.
func statusForKind(kind app.Kind) int {
	switch kind {
	case app.KindUnauthorized:
		return http.StatusUnauthorized
	case app.KindValidation, app.KindRejected:
		return http.StatusBadRequest
	case app.KindForbidden:
		return http.StatusForbidden
	case app.KindProfileNotFound, app.KindJobNotFound:
		return http.StatusNotFound
	case app.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func codeFor(kind app.Kind) string {
	return "ADAPT_" + strings.ToUpper(kind.String())
}

func writeAppError(w http.ResponseWriter, err error) {
	kind := app.KindOf(err)
	writeError(w, statusForKind(kind), app.PublicMessage(err), codeFor(kind))
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed", "SYSTEM_METHOD_NOT_ALLOWED")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: strings.TrimSpace(w.Header().Get(util.RequestIDHeader)),
	})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
