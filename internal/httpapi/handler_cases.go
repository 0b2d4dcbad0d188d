package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mcare/mcare-backend/internal/casemgmt"
	"github.com/mcare/mcare-backend/pkg/errors"
	"github.com/mcare/mcare-backend/pkg/logger"
	"github.com/mcare/mcare-backend/pkg/tenant"
)

type casesHandler struct {
	svc *casemgmt.Service
	log *logger.Logger
}

func newCasesHandler(svc *casemgmt.Service, log *logger.Logger) *casesHandler {
	return &casesHandler{svc: svc, log: log}
}

type createCaseRequest struct {
	PatientFullName string          `json:"patient_full_name"`
	InputPayload    json.RawMessage `json:"input_payload"`
	RandomSeed      string          `json:"random_seed,omitempty"`
}

type caseView struct {
	ID              string           `json:"id"`
	PatientID       string           `json:"patient_id"`
	Status          string           `json:"status"`
	InputPayload    json.RawMessage  `json:"input_payload"`
	RandomSeed      string           `json:"random_seed"`
	RankingSnapshot *json.RawMessage `json:"ranking_snapshot,omitempty"`
	ResultSignature *string          `json:"result_signature,omitempty"`
	CreatedAt       string           `json:"created_at"`
	UpdatedAt       string           `json:"updated_at"`
}

func toCaseView(c *casemgmt.Case) caseView {
	return caseView{
		ID:              c.ID,
		PatientID:       c.PatientID,
		Status:          c.Status,
		InputPayload:    c.InputPayload,
		RandomSeed:      c.RandomSeed,
		RankingSnapshot: c.RankingSnapshot,
		ResultSignature: c.ResultSignature,
		CreatedAt:       c.CreatedAt.Format(timeLayout),
		UpdatedAt:       c.UpdatedAt.Format(timeLayout),
	}
}

// Create handles POST /cases.
func (h *casesHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenant.TenantID(r.Context())
	if err != nil {
		RespondError(h.log, w, r, errors.Internal("tenant missing from context"))
		return
	}

	var req createCaseRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(h.log, w, r, err)
		return
	}
	c, err := h.svc.Create(r.Context(), tenantID, req.PatientFullName, req.InputPayload, req.RandomSeed)
	if err != nil {
		RespondError(h.log, w, r, err)
		return
	}

	Respond(w, http.StatusOK, toCaseView(c))
}

// Finalize handles POST /cases/{id}/finalize.
func (h *casesHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenant.TenantID(r.Context())
	if err != nil {
		RespondError(h.log, w, r, errors.Internal("tenant missing from context"))
		return
	}
	caseID := chi.URLParam(r, "id")

	c, err := h.svc.Finalize(r.Context(), tenantID, caseID)
	if err != nil {
		RespondError(h.log, w, r, err)
		return
	}

	Respond(w, http.StatusOK, toCaseView(c))
}

// VerifyReplay handles POST /cases/{id}/verify-replay.
func (h *casesHandler) VerifyReplay(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenant.TenantID(r.Context())
	if err != nil {
		RespondError(h.log, w, r, errors.Internal("tenant missing from context"))
		return
	}
	caseID := chi.URLParam(r, "id")

	result, err := h.svc.VerifyReplay(r.Context(), tenantID, caseID)
	if err != nil {
		RespondError(h.log, w, r, err)
		return
	}

	Respond(w, http.StatusOK, result)
}

// Get handles GET /cases/{id}.
func (h *casesHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenant.TenantID(r.Context())
	if err != nil {
		RespondError(h.log, w, r, errors.Internal("tenant missing from context"))
		return
	}
	caseID := chi.URLParam(r, "id")

	c, err := h.svc.Get(r.Context(), tenantID, caseID)
	if err != nil {
		RespondError(h.log, w, r, err)
		return
	}

	Respond(w, http.StatusOK, toCaseView(c))
}
