package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TaroHarado/copytrade-key/internal/middleware"
	"github.com/TaroHarado/copytrade-key/internal/model"
	"github.com/TaroHarado/copytrade-key/internal/pkg/apperrors"
	"github.com/TaroHarado/copytrade-key/internal/service"
	"github.com/TaroHarado/copytrade-key/internal/signer"
)

type SignHandler struct {
	orchestrator *service.Orchestrator
	privy        *signer.PrivyClient
}

func NewSignHandler(orchestrator *service.Orchestrator, privy *signer.PrivyClient) *SignHandler {
	return &SignHandler{orchestrator: orchestrator, privy: privy}
}

func (h *SignHandler) SignOrder(c *gin.Context) {
	var req model.SignOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Wrap(apperrors.ReasonInvalidRequest, "invalid request body", err))
		return
	}

	outcome := h.orchestrator.SignOrder(c.Request.Context(), req, callerMeta(c))
	writeOutcome(c, outcome)
}

func (h *SignHandler) SignAllowance(c *gin.Context) {
	var req model.SignAllowanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Wrap(apperrors.ReasonInvalidRequest, "invalid request body", err))
		return
	}

	outcome := h.orchestrator.SignAllowance(c.Request.Context(), req, callerMeta(c))
	writeOutcome(c, outcome)
}

func (h *SignHandler) SignTransfer(c *gin.Context) {
	var req model.SignTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Wrap(apperrors.ReasonInvalidRequest, "invalid request body", err))
		return
	}

	outcome := h.orchestrator.SignTransfer(c.Request.Context(), req, callerMeta(c))
	writeOutcome(c, outcome)
}

// VerifyToken resolves a Privy access token to the user's embedded wallet.
func (h *SignHandler) VerifyToken(c *gin.Context) {
	var req model.VerifyTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Wrap(apperrors.ReasonInvalidRequest, "invalid request body", err))
		return
	}

	identity, err := h.privy.VerifyToken(c.Request.Context(), req.PrivyToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, model.VerifyTokenResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, model.VerifyTokenResponse{
		Success:       true,
		PrivyUserID:   identity.UserID,
		WalletAddress: identity.WalletAddress,
		WalletID:      identity.WalletID,
	})
}

func callerMeta(c *gin.Context) service.CallerMeta {
	return service.CallerMeta{
		IPAddress:   c.ClientIP(),
		ServiceName: middleware.CallerName(c),
	}
}

// writeOutcome maps the pipeline result onto the wire. Failures still
// return a full response body: the caller always gets the audit id.
func writeOutcome(c *gin.Context, outcome service.Outcome) {
	resp := model.SignatureResponse{
		Success:   outcome.Success,
		Signature: outcome.Signature,
		Error:     outcome.Message(),
		AuditID:   outcome.AuditID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	status := http.StatusOK
	if outcome.Err != nil {
		status = apperrors.HTTPStatus(outcome.Err.Reason)
	}
	c.JSON(status, resp)
}
