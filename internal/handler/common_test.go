package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"privaudit/pkg/errors"
	"privaudit/pkg/logger"
)

func record(t *testing.T, err error) (int, map[string]string) {
	t.Helper()
	rec := httptest.NewRecorder()
	respondServiceError(logger.NewNop(), rec, err)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

// Every lifecycle refusal must produce the same status and body, so a
// caller cannot learn whether a key exists, expired, or was revoked.
func TestServiceErrorsCollapseToAccessDenied(t *testing.T) {
	lifecycle := []error{
		errors.ErrAccessDenied,
		errors.ErrKeyExpired,
		errors.ErrKeyRevoked,
		errors.ErrDisclosureExpired,
		errors.ErrDisclosureRevoked,
		errors.ErrAuthenticationFailed,
		errors.Wrap(errors.ErrKeyRevoked, "key abc123"),
	}
	for _, err := range lifecycle {
		code, body := record(t, err)
		assert.Equal(t, http.StatusForbidden, code, "%v", err)
		assert.Equal(t, "access denied", body["error"], "%v", err)
	}
}

func TestNotFoundErrors(t *testing.T) {
	for _, err := range []error{
		errors.ErrKeyNotFound,
		errors.ErrDisclosureNotFound,
		errors.ErrCommitmentNotFound,
		errors.ErrRequestNotFound,
		errors.ErrTransactionNotFound,
	} {
		code, body := record(t, err)
		assert.Equal(t, http.StatusNotFound, code, "%v", err)
		// Uniform body: no hint about which entity type was missed.
		assert.Equal(t, "not found", body["error"], "%v", err)
	}
}

func TestApprovalRequiredIsForbiddenButExplicit(t *testing.T) {
	code, body := record(t, errors.ErrApprovalRequired)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "approved multisig request required", body["error"])
}

func TestValidationErrorsAreBadRequests(t *testing.T) {
	for _, err := range []error{
		errors.ErrMaxDepthExceeded,
		errors.ErrInvalidCommitment,
		errors.ErrInvalidBlindingValue,
		errors.ErrSignatureInvalid,
		errors.ErrSignerNotRegistered,
		errors.ErrThresholdNotMet,
	} {
		code, _ := record(t, err)
		assert.Equal(t, http.StatusBadRequest, code, "%v", err)
	}
}

func TestUnknownErrorIsOpaque500(t *testing.T) {
	code, body := record(t, errors.New("pq: connection reset"))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.NotContains(t, body["error"], "pq:")
}
