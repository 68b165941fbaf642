package handler

import (
	"fmt"
	"net/http"
	"time"

	"privaudit/internal/compliance"
	"privaudit/internal/domain"
	"privaudit/pkg/cache"
	"privaudit/pkg/logger"
	"privaudit/pkg/validator"
)

// reportCacheTTL bounds staleness: revocations landing after a report
// is cached stay invisible for at most this long.
const reportCacheTTL = 5 * time.Minute

// ReportHandler exposes compliance report generation.
type ReportHandler struct {
	service   *compliance.Service
	cache     *cache.RedisCache
	validator *validator.Validator
	logger    logger.Logger
}

// NewReportHandler creates a ReportHandler. A nil cache disables
// report caching.
func NewReportHandler(service *compliance.Service, c *cache.RedisCache, val *validator.Validator, log logger.Logger) *ReportHandler {
	return &ReportHandler{service: service, cache: c, validator: val, logger: log}
}

type generateReportRequest struct {
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
	Role      string `json:"role" validate:"required,audit_role"`
}

// Generate builds a per-role disclosure report for a period.
func (h *ReportHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateReportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(h.logger, w, http.StatusBadRequest, err.Error())
		return
	}

	from, err := time.Parse(time.RFC3339, req.StartDate)
	if err != nil {
		respondError(h.logger, w, http.StatusBadRequest, "start_date must be RFC3339")
		return
	}
	to, err := time.Parse(time.RFC3339, req.EndDate)
	if err != nil {
		respondError(h.logger, w, http.StatusBadRequest, "end_date must be RFC3339")
		return
	}
	if !to.After(from) {
		respondError(h.logger, w, http.StatusBadRequest, "end_date must be after start_date")
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		respondError(h.logger, w, http.StatusBadRequest, err.Error())
		return
	}

	cacheKey := fmt.Sprintf("report:%s:%d:%d", role, from.UnixNano(), to.UnixNano())
	if h.cache != nil {
		var cached compliance.Report
		if err := h.cache.Get(r.Context(), cacheKey, &cached); err == nil {
			respondJSON(h.logger, w, http.StatusOK, cached)
			return
		}
	}

	report, err := h.service.GenerateReport(r.Context(), from, to, role)
	if err != nil {
		respondServiceError(h.logger, w, err)
		return
	}

	if h.cache != nil {
		if err := h.cache.Set(r.Context(), cacheKey, report, reportCacheTTL); err != nil {
			h.logger.Warn("Failed to cache report", map[string]interface{}{
				"key":   cacheKey,
				"error": err.Error(),
			})
		}
	}
	respondJSON(h.logger, w, http.StatusOK, report)
}
