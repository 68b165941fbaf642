package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"privaudit/internal/viewingkey"
	"privaudit/pkg/logger"
	"privaudit/pkg/validator"
)

// ViewingKeyHandler exposes hierarchy management. Key material never
// appears in any response; records serialize only their public fields.
type ViewingKeyHandler struct {
	service   *viewingkey.Service
	validator *validator.Validator
	logger    logger.Logger
}

// NewViewingKeyHandler creates a ViewingKeyHandler.
func NewViewingKeyHandler(service *viewingkey.Service, val *validator.Validator, log logger.Logger) *ViewingKeyHandler {
	return &ViewingKeyHandler{
		service:   service,
		validator: val,
		logger:    log,
	}
}

type generateMasterRequest struct {
	ApprovalID uuid.UUID `json:"approval_id" validate:"required"`
}

// GenerateMaster creates the master viewing key. Requires an approved
// multisig request.
func (h *ViewingKeyHandler) GenerateMaster(w http.ResponseWriter, r *http.Request) {
	var req generateMasterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	key, err := h.service.GenerateMaster(r.Context(), req.ApprovalID)
	if err != nil {
		respondServiceError(h.logger, w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusCreated, key)
}

type deriveRequest struct {
	ParentID uuid.UUID `json:"parent_id" validate:"required"`
	Segment  string    `json:"segment" validate:"required,path_segment"`
}

// Derive creates a child key one level below the parent.
func (h *ViewingKeyHandler) Derive(w http.ResponseWriter, r *http.Request) {
	var req deriveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(h.logger, w, http.StatusBadRequest, err.Error())
		return
	}

	key, err := h.service.Derive(r.Context(), req.ParentID, req.Segment)
	if err != nil {
		respondServiceError(h.logger, w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusCreated, key)
}

type verifyHierarchyRequest struct {
	ParentID uuid.UUID `json:"parent_id" validate:"required"`
	ChildID  uuid.UUID `json:"child_id" validate:"required"`
}

// VerifyHierarchy checks cryptographic ancestry between two keys.
func (h *ViewingKeyHandler) VerifyHierarchy(w http.ResponseWriter, r *http.Request) {
	var req verifyHierarchyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	valid, err := h.service.VerifyHierarchy(r.Context(), req.ParentID, req.ChildID)
	if err != nil {
		respondServiceError(h.logger, w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, map[string]bool{"valid": valid})
}

type rotateRequest struct {
	Reason          string    `json:"reason" validate:"required"`
	GracePeriodDays int       `json:"grace_period_days" validate:"gte=0,lte=90"`
	ApprovalID      uuid.UUID `json:"approval_id"`
}

// Rotate replaces a key in place with a grace period for the old one.
func (h *ViewingKeyHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(h.logger, w, http.StatusBadRequest, "invalid key id")
		return
	}

	var req rotateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(h.logger, w, http.StatusBadRequest, err.Error())
		return
	}

	replacement, err := h.service.Rotate(r.Context(), id, req.Reason, req.GracePeriodDays, req.ApprovalID)
	if err != nil {
		respondServiceError(h.logger, w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, replacement)
}

type revokeKeyRequest struct {
	ApprovalID uuid.UUID `json:"approval_id"`
}

// Revoke revokes a key immediately and permanently.
func (h *ViewingKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(h.logger, w, http.StatusBadRequest, "invalid key id")
		return
	}

	var req revokeKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.Revoke(r.Context(), id, req.ApprovalID); err != nil {
		respondServiceError(h.logger, w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, map[string]string{"status": "revoked"})
}

// Get returns a key's public record.
func (h *ViewingKeyHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(h.logger, w, http.StatusBadRequest, "invalid key id")
		return
	}

	key, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		respondServiceError(h.logger, w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, key)
}
