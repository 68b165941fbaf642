package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"privaudit/internal/repository/postgres"
	"privaudit/pkg/logger"
)

// SystemHandler serves health, readiness, and audit log queries.
type SystemHandler struct {
	db          *sqlx.DB
	redisClient *redis.Client
	auditRepo   *postgres.AuditRepository
	logger      logger.Logger
	startTime   time.Time
}

// NewSystemHandler creates a SystemHandler.
func NewSystemHandler(db *sqlx.DB, redisClient *redis.Client, auditRepo *postgres.AuditRepository, log logger.Logger) *SystemHandler {
	return &SystemHandler{
		db:          db,
		redisClient: redisClient,
		auditRepo:   auditRepo,
		logger:      log,
		startTime:   time.Now(),
	}
}

// Health reports liveness.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(h.logger, w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"service":        "compliance",
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready reports readiness: both backing stores must answer.
func (h *SystemHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		respondJSON(h.logger, w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database unavailable",
		})
		return
	}
	if err := h.redisClient.Ping(r.Context()).Err(); err != nil {
		respondJSON(h.logger, w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "redis unavailable",
		})
		return
	}
	respondJSON(h.logger, w, http.StatusOK, map[string]string{
		"status":  "ready",
		"service": "compliance",
	})
}

// GetAuditLogs returns the audit trail, newest first.
func (h *SystemHandler) GetAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	logs, err := h.auditRepo.FindAll(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Failed to fetch audit logs", map[string]interface{}{"error": err.Error()})
		respondError(h.logger, w, http.StatusInternalServerError, "Failed to fetch audit logs")
		return
	}

	total, err := h.auditRepo.CountAll(r.Context())
	if err != nil {
		// Log but don't fail, just return 0 total
		h.logger.Warn("Failed to count audit logs", map[string]interface{}{"error": err.Error()})
	}

	respondJSON(h.logger, w, http.StatusOK, map[string]interface{}{
		"logs":   logs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}
