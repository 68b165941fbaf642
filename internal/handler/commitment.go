package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"privaudit/internal/commitment"
	"privaudit/pkg/logger"
)

// CommitmentHandler exposes Pedersen commitment operations to the
// transfer protocol. This surface is protocol-facing, not
// auditor-facing; it is the only place a blinding factor ever leaves
// the service, and only for a commitment the caller created.
type CommitmentHandler struct {
	service *commitment.Service
	logger  logger.Logger
}

// NewCommitmentHandler creates a CommitmentHandler.
func NewCommitmentHandler(service *commitment.Service, log logger.Logger) *CommitmentHandler {
	return &CommitmentHandler{service: service, logger: log}
}

type createCommitmentRequest struct {
	Value uint64 `json:"value"`
}

type commitmentResponse struct {
	ID              uuid.UUID `json:"id"`
	CommitmentPoint string    `json:"commitment_point"`
	BlindingFactor  string    `json:"blinding_factor,omitempty"`
}

// Create commits to a value with a fresh blinding factor. The blinding
// factor is returned once so the protocol caller can later open the
// commitment; it is stored only encrypted.
func (h *CommitmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createCommitmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.service.Create(r.Context(), req.Value)
	if err != nil {
		respondServiceError(h.logger, w, err)
		return
	}
	blinding, err := h.service.BlindingFactor(r.Context(), c.ID)
	if err != nil {
		respondServiceError(h.logger, w, err)
		return
	}

	respondJSON(h.logger, w, http.StatusCreated, commitmentResponse{
		ID:              c.ID,
		CommitmentPoint: c.CommitmentPoint,
		BlindingFactor:  blinding,
	})
}

type batchCreateRequest struct {
	Values []uint64 `json:"values"`
}

// BatchCreate commits to a list of values atomically; one failure rolls
// back the whole batch.
func (h *CommitmentHandler) BatchCreate(w http.ResponseWriter, r *http.Request) {
	var req batchCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Values) == 0 {
		respondError(h.logger, w, http.StatusBadRequest, "values must not be empty")
		return
	}

	created, err := h.service.BatchCreate(r.Context(), req.Values)
	if err != nil {
		respondServiceError(h.logger, w, err)
		return
	}

	out := make([]commitmentResponse, len(created))
	for i, c := range created {
		blinding, err := h.service.BlindingFactor(r.Context(), c.ID)
		if err != nil {
			respondServiceError(h.logger, w, err)
			return
		}
		out[i] = commitmentResponse{
			ID:              c.ID,
			CommitmentPoint: c.CommitmentPoint,
			BlindingFactor:  blinding,
		}
	}
	respondJSON(h.logger, w, http.StatusCreated, map[string]interface{}{
		"commitments": out,
	})
}

type verifyCommitmentRequest struct {
	ID             uuid.UUID `json:"id"`
	Value          uint64    `json:"value"`
	BlindingFactor string    `json:"blinding_factor"`
}

// Verify opens a commitment against a claimed value and blinding.
// Malformed input verifies as false, never as an error.
func (h *CommitmentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyCommitmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	valid, err := h.service.Verify(r.Context(), req.ID, req.Value, req.BlindingFactor)
	if err != nil {
		respondServiceError(h.logger, w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, map[string]bool{"valid": valid})
}

type addCommitmentsRequest struct {
	A uuid.UUID `json:"a"`
	B uuid.UUID `json:"b"`
}

// Add returns a new commitment to the sum of two committed values
// without revealing either.
func (h *CommitmentHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addCommitmentsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sum, err := h.service.Add(r.Context(), req.A, req.B)
	if err != nil {
		respondServiceError(h.logger, w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusCreated, commitmentResponse{
		ID:              sum.ID,
		CommitmentPoint: sum.CommitmentPoint,
	})
}

// Get returns a commitment's public record.
func (h *CommitmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(h.logger, w, http.StatusBadRequest, "invalid commitment id")
		return
	}

	c, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		respondServiceError(h.logger, w, err)
		return
	}
	respondJSON(h.logger, w, http.StatusOK, commitmentResponse{
		ID:              c.ID,
		CommitmentPoint: c.CommitmentPoint,
	})
}
