package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"privaudit/internal/compliance"
	"privaudit/internal/disclosure"
	"privaudit/internal/domain"
	"privaudit/internal/viewingkey"
	"privaudit/pkg/logger"
	"privaudit/pkg/validator"
)

// DisclosureHandler exposes disclosure issuance and decryption. The
// decrypt path is the auditor-facing surface: every lifecycle refusal
// maps through respondServiceError onto the same generic 403.
type DisclosureHandler struct {
	compliance  *compliance.Service
	disclosures *disclosure.Service
	keys        *viewingkey.Service
	validator   *validator.Validator
	logger      logger.Logger
}

// NewDisclosureHandler creates a DisclosureHandler.
func NewDisclosureHandler(
	comp *compliance.Service,
	disc *disclosure.Service,
	keys *viewingkey.Service,
	val *validator.Validator,
	log logger.Logger,
) *DisclosureHandler {
	return &DisclosureHandler{
		compliance:  comp,
		disclosures: disc,
		keys:        keys,
		validator:   val,
		logger:      log,
	}
}

type createDisclosureRequest struct {
	TransactionID uuid.UUID `json:"transaction_id" validate:"required"`
	AuditorID     string    `json:"auditor_id" validate:"required"`
	Role          string    `json:"role" validate:"required,audit_role"`
}

// Create discloses a transaction to an auditor at a role.
func (h *DisclosureHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDisclosureRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(h.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		respondError(h.logger, w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.compliance.DiscloseToAuditor(r.Context(), req.TransactionID, req.AuditorID, role)
	if err != nil {
		respondServiceError(h.logger, w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusCreated, result)
}

type decryptDisclosureRequest struct {
	ViewingKeyHash string `json:"viewing_key_hash" validate:"required"`
}

// Decrypt opens a disclosure with the auditor's viewing key.
func (h *DisclosureHandler) Decrypt(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(h.logger, w, http.StatusBadRequest, "invalid disclosure id")
		return
	}

	var req decryptDisclosureRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(h.logger, w, http.StatusBadRequest, err.Error())
		return
	}

	key, err := h.keys.GetByHash(r.Context(), req.ViewingKeyHash)
	if err != nil {
		respondServiceError(h.logger, w, err)
		return
	}

	view, err := h.disclosures.Decrypt(r.Context(), id, key)
	if err != nil {
		respondServiceError(h.logger, w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, map[string]interface{}{
		"disclosure_id": id,
		"fields":        view,
	})
}

// ListByAuditor lists an auditor's disclosures.
func (h *DisclosureHandler) ListByAuditor(w http.ResponseWriter, r *http.Request) {
	auditorID := mux.Vars(r)["auditorId"]
	includeRevoked := r.URL.Query().Get("includeRevoked") == "true"

	list, err := h.disclosures.List(r.Context(), auditorID, includeRevoked)
	if err != nil {
		respondServiceError(h.logger, w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, map[string]interface{}{
		"disclosures": list,
		"total":       len(list),
	})
}

// Revoke closes a disclosure immediately.
func (h *DisclosureHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(h.logger, w, http.StatusBadRequest, "invalid disclosure id")
		return
	}

	if err := h.disclosures.Revoke(r.Context(), id); err != nil {
		respondServiceError(h.logger, w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, map[string]string{"status": "revoked"})
}
