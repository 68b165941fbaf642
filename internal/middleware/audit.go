package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"privaudit/internal/domain"
	"privaudit/pkg/logger"
)

// AuditRepository defines the interface for persisting audit logs.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// AuditMiddleware records every compliance API action in the
// append-only audit log.
type AuditMiddleware struct {
	repo   AuditRepository
	logger logger.Logger
}

// NewAuditMiddleware creates a new AuditMiddleware.
func NewAuditMiddleware(repo AuditRepository, log logger.Logger) *AuditMiddleware {
	return &AuditMiddleware{repo: repo, logger: log}
}

// Audit records the request in the audit log.
func (m *AuditMiddleware) Audit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped, ok := w.(*responseWriter)
		if !ok {
			wrapped = &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		}

		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if path == "/health" {
			return
		}

		actor := "anonymous"
		if auditorID, ok := AuditorIDFromContext(r.Context()); ok {
			actor = auditorID
		}
		requestID := CorrelationIDFromContext(r.Context())

		// Audit persistence is off the request path; a slow audit
		// store must not slow auditors down.
		go func(method, path, actor, requestID string, status int) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			entry := &domain.AuditLog{
				ID:         uuid.New(),
				Actor:      actor,
				Action:     method + " " + path,
				EntityType: "http_request",
				EntityID:   path,
				RequestID:  requestID,
				StatusCode: status,
				CreatedAt:  time.Now().UTC(),
			}
			if err := m.repo.Create(ctx, entry); err != nil {
				m.logger.Error("Failed to create audit log", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}(r.Method, path, actor, requestID, wrapped.statusCode)
	})
}
