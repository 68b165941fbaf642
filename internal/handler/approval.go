package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"privaudit/internal/multisig"
	"privaudit/pkg/logger"
	"privaudit/pkg/validator"
)

// ApprovalHandler exposes the multisig approval workflow that gates
// master-key operations.
type ApprovalHandler struct {
	service   *multisig.Service
	validator *validator.Validator
	logger    logger.Logger
}

// NewApprovalHandler creates an ApprovalHandler.
func NewApprovalHandler(service *multisig.Service, val *validator.Validator, log logger.Logger) *ApprovalHandler {
	return &ApprovalHandler{service: service, validator: val, logger: log}
}

type registerSignerRequest struct {
	Signer    string `json:"signer" validate:"required"`
	PublicKey string `json:"public_key" validate:"required,hexadecimal,len=64"`
}

// RegisterSigner stores a signer's Ed25519 public key.
func (h *ApprovalHandler) RegisterSigner(w http.ResponseWriter, r *http.Request) {
	var req registerSignerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(h.logger, w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.RegisterSigner(r.Context(), req.Signer, req.PublicKey); err != nil {
		respondServiceError(h.logger, w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusCreated, map[string]string{"signer": req.Signer})
}

type createApprovalRequest struct {
	Requester string `json:"requester" validate:"required"`
}

// CreateRequest opens a new approval request.
func (h *ApprovalHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var req createApprovalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(h.logger, w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.service.CreateRequest(r.Context(), req.Requester)
	if err != nil {
		respondServiceError(h.logger, w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusCreated, created)
}

type addSignatureRequest struct {
	Signer    string `json:"signer" validate:"required"`
	Signature string `json:"signature" validate:"required,hexadecimal"`
}

// AddSignature records one signer's approval of a request.
func (h *ApprovalHandler) AddSignature(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(h.logger, w, http.StatusBadRequest, "invalid request id")
		return
	}

	var req addSignatureRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(h.logger, w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.service.AddSignature(r.Context(), id, req.Signer, req.Signature)
	if err != nil {
		respondServiceError(h.logger, w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, updated)
}

// GetRequest returns a request with its signature count.
func (h *ApprovalHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(h.logger, w, http.StatusBadRequest, "invalid request id")
		return
	}

	req, count, err := h.service.GetRequest(r.Context(), id)
	if err != nil {
		respondServiceError(h.logger, w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, map[string]interface{}{
		"request":    req,
		"signatures": count,
	})
}
