package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/PabloGalante/brandlab/internal/app/exploration"
	"github.com/PabloGalante/brandlab/internal/app/itemtype"
	"github.com/PabloGalante/brandlab/internal/domain"
	"github.com/PabloGalante/brandlab/internal/observability"
)

// ScopeHeader carries the caller's tenant scope when the body has none.
const ScopeHeader = "X-Scope-ID"

type Server struct {
	svc   *exploration.Service
	kinds *itemtype.Registry
}

func NewServer(svc *exploration.Service, kinds *itemtype.Registry) http.Handler {
	s := &Server{svc: svc, kinds: kinds}

	r := chi.NewRouter()
	r.Use(withRequestID, withLogging, middleware.Recoverer, withCORS)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/kinds", s.handleKinds)

	r.Route("/explorations", func(r chi.Router) {
		r.Post("/", s.handleStart)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Post("/answers", s.handleAnswer)
			r.Post("/complete", s.handleComplete)
			r.Post("/report", s.handleReport)
			r.Post("/lock", s.handleLock)
		})
	})

	return r
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type startRequest struct {
	ItemType string `json:"item_type"`
	ItemID   string `json:"item_id"`
	ScopeID  string `json:"scope_id,omitempty"`
}

type answerRequest struct {
	Content string `json:"content"`
}

type sessionResponse struct {
	ID                    string          `json:"id"`
	ItemType              string          `json:"item_type"`
	ItemID                string          `json:"item_id"`
	ScopeID               string          `json:"scope_id"`
	Backend               string          `json:"backend"`
	ModelID               string          `json:"model_id"`
	Status                string          `json:"status"`
	AnsweredQuestions     int             `json:"answered_questions"`
	TotalQuestions        int             `json:"total_questions"`
	CurrentDimensionIndex int             `json:"current_dimension_index"`
	Progress              int             `json:"progress"`
	Locked                bool            `json:"locked"`
	LastError             string          `json:"last_error,omitempty"`
	Report                *reportResponse `json:"report,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

type messageResponse struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Content      string    `json:"content"`
	OrderIndex   int       `json:"order_index"`
	DimensionKey string    `json:"dimension_key,omitempty"`
	Bonus        bool      `json:"bonus,omitempty"`
	Fallback     bool      `json:"fallback,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type findingResponse struct {
	Key         string `json:"key"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type recommendationResponse struct {
	Number      int    `json:"number"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

type suggestionResponse struct {
	Field          string `json:"field"`
	Label          string `json:"label"`
	CurrentValue   string `json:"current_value"`
	SuggestedValue string `json:"suggested_value"`
	Reason         string `json:"reason"`
	Status         string `json:"status"`
}

type reportResponse struct {
	ExecutiveSummary        string                   `json:"executive_summary"`
	Findings                []findingResponse        `json:"findings"`
	Recommendations         []recommendationResponse `json:"recommendations"`
	FieldSuggestions        []suggestionResponse     `json:"field_suggestions"`
	ResearchBoostPercentage int                      `json:"research_boost_percentage"`
	CompletedAt             time.Time                `json:"completed_at"`
}

type sessionViewResponse struct {
	Session  sessionResponse   `json:"session"`
	Messages []messageResponse `json:"messages"`
}

type answerResponse struct {
	Feedback          messageResponse  `json:"feedback"`
	NextQuestion      *messageResponse `json:"next_question,omitempty"`
	Progress          int              `json:"progress"`
	AnsweredQuestions int              `json:"answered_questions"`
	TotalQuestions    int              `json:"total_questions"`
	Session           sessionResponse  `json:"session"`
}

type kindResponse struct {
	Kind   string   `json:"kind"`
	Label  string   `json:"label"`
	Fields []string `json:"fields"`
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleKinds(w http.ResponseWriter, _ *http.Request) {
	configs := s.kinds.Kinds()
	out := make([]kindResponse, 0, len(configs))
	for _, c := range configs {
		fields := make([]string, 0)
		for _, f := range itemtype.Fields(c) {
			fields = append(fields, f.Key)
		}
		out = append(out, kindResponse{Kind: string(c.Kind()), Label: c.Label(), Fields: fields})
	}
	writeJSON(w, http.StatusOK, map[string]any{"kinds": out})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.ItemType) == "" {
		badRequest(w, "item_type is required")
		return
	}
	scope := req.ScopeID
	if scope == "" {
		scope = r.Header.Get(ScopeHeader)
	}

	view, err := s.svc.StartSession(r.Context(), exploration.StartSessionInput{
		ItemType: domain.ItemKind(strings.TrimSpace(req.ItemType)),
		ItemID:   domain.ItemID(strings.TrimSpace(req.ItemID)),
		ScopeID:  domain.ScopeID(strings.TrimSpace(scope)),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if view.Resumed {
		status = http.StatusOK
	}
	writeJSON(w, status, toSessionViewResponse(view))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.GetSession(r.Context(), sessionID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionViewResponse(view))
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	out, err := s.svc.SubmitAnswer(r.Context(), exploration.SubmitAnswerInput{
		SessionID: sessionID(r),
		Content:   req.Content,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := answerResponse{
		Feedback:          toMessageResponse(out.Feedback),
		Progress:          out.Progress,
		AnsweredQuestions: out.AnsweredQuestions,
		TotalQuestions:    out.TotalQuestions,
		Session:           toSessionResponse(out.Session),
	}
	if out.NextQuestion != nil {
		m := toMessageResponse(out.NextQuestion)
		resp.NextQuestion = &m
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, http.StatusOK, s.svc.CompleteSession)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, http.StatusAccepted, s.svc.GenerateReport)
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, http.StatusOK, s.svc.LockSession)
}

// mutate runs a status operation and answers with the session as it is
// afterwards.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, status int, fn func(context.Context, domain.SessionID) error) {
	id := sessionID(r)
	if err := fn(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.svc.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, toSessionViewResponse(view))
}

func sessionID(r *http.Request) domain.SessionID {
	return domain.SessionID(chi.URLParam(r, "id"))
}

// ─────────────────────────────────────────────
// Conversion helpers
// ─────────────────────────────────────────────

func toSessionViewResponse(v *exploration.SessionView) sessionViewResponse {
	return sessionViewResponse{
		Session:  toSessionResponse(v.Session),
		Messages: toMessagesResponse(v.Messages),
	}
}

func toSessionResponse(s *domain.ExplorationSession) sessionResponse {
	return sessionResponse{
		ID:                    string(s.ID),
		ItemType:              string(s.ItemType),
		ItemID:                string(s.ItemID),
		ScopeID:               string(s.ScopeID),
		Backend:               string(s.Backend),
		ModelID:               s.ModelID,
		Status:                string(s.Status),
		AnsweredQuestions:     s.AnsweredQuestions,
		TotalQuestions:        s.TotalQuestions,
		CurrentDimensionIndex: s.CurrentDimensionIndex,
		Progress:              s.Progress,
		Locked:                s.Locked,
		LastError:             s.LastError,
		Report:                toReportResponse(s.Report),
		CreatedAt:             s.CreatedAt,
		UpdatedAt:             s.UpdatedAt,
	}
}

func toMessageResponse(m *domain.ExplorationMessage) messageResponse {
	resp := messageResponse{
		ID:         string(m.ID),
		Type:       string(m.Type),
		Content:    m.Content,
		OrderIndex: m.OrderIndex,
		CreatedAt:  m.CreatedAt,
	}
	if m.Metadata != nil {
		resp.DimensionKey = m.Metadata.DimensionKey
		resp.Bonus = m.Metadata.Bonus
		resp.Fallback = m.Metadata.Fallback
	}
	return resp
}

func toMessagesResponse(msgs []*domain.ExplorationMessage) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return out
}

func toReportResponse(r *domain.InsightReport) *reportResponse {
	if r == nil {
		return nil
	}
	resp := &reportResponse{
		ExecutiveSummary:        r.ExecutiveSummary,
		Findings:                make([]findingResponse, 0, len(r.Findings)),
		Recommendations:         make([]recommendationResponse, 0, len(r.Recommendations)),
		FieldSuggestions:        make([]suggestionResponse, 0, len(r.FieldSuggestions)),
		ResearchBoostPercentage: r.ResearchBoostPercentage,
		CompletedAt:             r.CompletedAt,
	}
	for _, f := range r.Findings {
		resp.Findings = append(resp.Findings, findingResponse(f))
	}
	for _, rec := range r.Recommendations {
		resp.Recommendations = append(resp.Recommendations, recommendationResponse{
			Number:      rec.Number,
			Title:       rec.Title,
			Description: rec.Description,
			Priority:    string(rec.Priority),
		})
	}
	for _, fs := range r.FieldSuggestions {
		resp.FieldSuggestions = append(resp.FieldSuggestions, suggestionResponse{
			Field:          fs.Field,
			Label:          fs.Label,
			CurrentValue:   fs.CurrentValue,
			SuggestedValue: fs.SuggestedValue,
			Reason:         fs.Reason,
			Status:         string(fs.Status),
		})
	}
	return resp
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindClient:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindSynthesis:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	kind := domain.KindOf(err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error("request failed", "error", err, "kind", kind.String())
		msg = "internal server error"
	}
	if errors.Is(err, domain.ErrSessionBusy) {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, map[string]string{
		"error": msg,
		"kind":  kind.String(),
	})
}
