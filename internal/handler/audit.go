package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TaroHarado/copytrade-key/internal/pkg/apperrors"
	"github.com/TaroHarado/copytrade-key/internal/service"
)

type AuditHandler struct {
	audit *service.AuditRecorder
}

func NewAuditHandler(audit *service.AuditRecorder) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// List returns recent signing attempts, newest first.
func (h *AuditHandler) List(c *gin.Context) {
	filter := service.AuditFilter{
		SignatureType: c.Query("signature_type"),
	}

	if raw := c.Query("user_id"); raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			_ = c.Error(apperrors.Wrap(apperrors.ReasonInvalidRequest, "invalid user_id", err))
			return
		}
		filter.UserID = userID
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			_ = c.Error(apperrors.Wrap(apperrors.ReasonInvalidRequest, "invalid limit", err))
			return
		}
		filter.Limit = limit
	}
	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			_ = c.Error(apperrors.Wrap(apperrors.ReasonInvalidRequest, "invalid from timestamp", err))
			return
		}
		filter.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			_ = c.Error(apperrors.Wrap(apperrors.ReasonInvalidRequest, "invalid to timestamp", err))
			return
		}
		filter.To = &to
	}

	records, err := h.audit.List(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(apperrors.Wrap(apperrors.ReasonInternal, "audit query failed", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(records),
		"records": records,
	})
}
