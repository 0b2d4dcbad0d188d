package httpapi

import (
	"net/http"

	"github.com/mcare/mcare-backend/internal/feedback"
	"github.com/mcare/mcare-backend/pkg/errors"
	"github.com/mcare/mcare-backend/pkg/logger"
	"github.com/mcare/mcare-backend/pkg/tenant"
)

type feedbackHandler struct {
	svc *feedback.Service
	log *logger.Logger
}

func newFeedbackHandler(svc *feedback.Service, log *logger.Logger) *feedbackHandler {
	return &feedbackHandler{svc: svc, log: log}
}

type insertFeedbackRequest struct {
	CaseID        *string                `json:"case_id,omitempty"`
	RequestID     *string                `json:"request_id,omitempty"`
	Locale        *string                `json:"locale,omitempty"`
	Narrative     *string                `json:"narrative,omitempty"`
	PredictedTop1 string                 `json:"predicted_top1"`
	PredictedTop3 []string               `json:"predicted_top3"`
	ChosenRemedy  string                 `json:"chosen_remedy"`
	OutcomeType   string                 `json:"outcome_type"`
	OutcomeScore  *int                   `json:"outcome_score,omitempty"`
	Notes         *string                `json:"notes,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

type insertFeedbackResponse struct {
	ID        string `json:"id"`
	IsCorrect bool   `json:"is_correct"`
}

// Insert handles POST /mcare/feedback.
func (h *feedbackHandler) Insert(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenant.TenantID(r.Context())
	if err != nil {
		RespondError(h.log, w, r, errors.Internal("tenant missing from context"))
		return
	}

	var req insertFeedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(h.log, w, r, err)
		return
	}

	result, err := h.svc.Insert(r.Context(), tenantID, feedback.InsertInput{
		CaseID:        req.CaseID,
		RequestID:     req.RequestID,
		Locale:        req.Locale,
		Narrative:     req.Narrative,
		PredictedTop1: req.PredictedTop1,
		PredictedTop3: req.PredictedTop3,
		ChosenRemedy:  req.ChosenRemedy,
		OutcomeType:   req.OutcomeType,
		OutcomeScore:  req.OutcomeScore,
		Notes:         req.Notes,
		Metadata:      req.Metadata,
	})
	if err != nil {
		RespondError(h.log, w, r, err)
		return
	}

	Respond(w, http.StatusOK, insertFeedbackResponse{ID: result.Record.ID, IsCorrect: result.IsCorrect})
}

// Summary handles GET /mcare/feedback/summary?days=N.
func (h *feedbackHandler) Summary(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenant.TenantID(r.Context())
	if err != nil {
		RespondError(h.log, w, r, errors.Internal("tenant missing from context"))
		return
	}

	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, parseErr := parsePositiveInt(raw)
		if parseErr != nil {
			RespondError(h.log, w, r, errors.BadRequest("days must be a positive integer"))
			return
		}
		days = parsed
	}

	summary, err := h.svc.Summary(r.Context(), tenantID, days)
	if err != nil {
		RespondError(h.log, w, r, err)
		return
	}

	Respond(w, http.StatusOK, summary)
}
