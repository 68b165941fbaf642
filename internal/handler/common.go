// Package handler exposes the compliance engine over HTTP. Handlers
// translate between the JSON API and the services; all policy lives in
// the service layer.
package handler

import (
	"encoding/json"
	"net/http"

	"privaudit/pkg/errors"
	"privaudit/pkg/logger"
)

func respondJSON(log logger.Logger, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error("json encode failed", map[string]interface{}{"error": err.Error()})
	}
}

func respondError(log logger.Logger, w http.ResponseWriter, status int, message string) {
	respondJSON(log, w, status, map[string]string{"error": message})
}

// respondServiceError maps service errors onto the external surface.
// Every lifecycle refusal (expired, revoked, wrong key) collapses onto
// the same 403 so auditors cannot distinguish why access was denied.
func respondServiceError(log logger.Logger, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errors.ErrKeyNotFound),
		errors.Is(err, errors.ErrDisclosureNotFound),
		errors.Is(err, errors.ErrCommitmentNotFound),
		errors.Is(err, errors.ErrRequestNotFound),
		errors.Is(err, errors.ErrTransactionNotFound):
		respondError(log, w, http.StatusNotFound, "not found")

	case errors.Is(err, errors.ErrAccessDenied),
		errors.Is(err, errors.ErrKeyExpired),
		errors.Is(err, errors.ErrKeyRevoked),
		errors.Is(err, errors.ErrDisclosureExpired),
		errors.Is(err, errors.ErrDisclosureRevoked),
		errors.Is(err, errors.ErrAuthenticationFailed):
		respondError(log, w, http.StatusForbidden, "access denied")

	case errors.Is(err, errors.ErrApprovalRequired):
		respondError(log, w, http.StatusForbidden, "approved multisig request required")

	case errors.Is(err, errors.ErrKeyRotated),
		errors.Is(err, errors.ErrRequestExpired):
		respondError(log, w, http.StatusConflict, err.Error())

	case errors.Is(err, errors.ErrMaxDepthExceeded),
		errors.Is(err, errors.ErrInvalidCommitment),
		errors.Is(err, errors.ErrInvalidBlindingValue),
		errors.Is(err, errors.ErrSignatureInvalid),
		errors.Is(err, errors.ErrSignerNotRegistered),
		errors.Is(err, errors.ErrThresholdNotMet):
		respondError(log, w, http.StatusBadRequest, err.Error())

	default:
		log.Error("unhandled service error", map[string]interface{}{"error": err.Error()})
		respondError(log, w, http.StatusInternalServerError, "Internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid request body"}`))
		return false
	}
	return true
}
