package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TaroHarado/copytrade-key/internal/config"
	"github.com/TaroHarado/copytrade-key/internal/middleware"
	"github.com/TaroHarado/copytrade-key/internal/model"
	"github.com/TaroHarado/copytrade-key/internal/pkg/apperrors"
	"github.com/TaroHarado/copytrade-key/internal/service"
	"github.com/TaroHarado/copytrade-key/internal/signer"
)

const (
	wiredExchange = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	wiredWallet   = "0x4444444444444444444444444444444444444444"
	wiredTarget   = "0x3333333333333333333333333333333333333333"
)

type stubLedger struct{}

func (stubLedger) GetTargetActivity(context.Context, int64) (*model.TargetActivity, error) {
	return &model.TargetActivity{
		ID:            7,
		WalletAddress: wiredTarget,
		TokenID:       "token-1",
		Side:          "BUY",
	}, nil
}

func (stubLedger) GetMonitoringSession(context.Context, int64, string) (*model.MonitoringSession, error) {
	return &model.MonitoringSession{
		UserID:                42,
		TargetAddress:         wiredTarget,
		InternalWalletAddress: sql.NullString{String: wiredWallet, Valid: true},
		IsActive:              true,
	}, nil
}

func (stubLedger) GetUserActivity(context.Context, int64, int64) (*model.UserActivity, error) {
	return nil, nil
}

func (stubLedger) SetOrderSigned(context.Context, int64, int64) (bool, error) { return true, nil }

func (stubLedger) SetCommissionSigned(context.Context, int64, int64) (bool, error) {
	return true, nil
}

type stubSigner struct{}

func (stubSigner) SignTypedData(context.Context, string, signer.TypedData) (string, error) {
	return "0xSIG1", nil
}

type stubAuditRepo struct{}

func (stubAuditRepo) Insert(context.Context, *model.SignatureAudit) (int64, error) { return 11, nil }

func (stubAuditRepo) List(context.Context, service.AuditFilter) ([]*model.SignatureAudit, error) {
	return nil, nil
}

func (stubAuditRepo) Cleanup(context.Context, time.Duration) error { return nil }

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	whitelist := service.NewWhitelist(config.WhitelistConfig{
		ExchangeContracts: wiredExchange,
		StableTokens:      "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		TeamWallets:       "0x1111111111111111111111111111111111111111",
		ChainID:           137,
	})
	guard := service.NewGuard(config.GuardConfig{}, nil, nil)
	validator := service.NewActivityValidator(stubLedger{}, config.CommissionConfig{Percent: 1, Tolerance: 0.05})
	orchestrator := service.NewOrchestrator(
		whitelist, guard, validator, stubLedger{}, stubSigner{},
		service.NewAuditRecorder(stubAuditRepo{}))

	h := NewSignHandler(orchestrator, nil)
	r := gin.New()
	r.Use(middleware.ErrorHandler())
	r.POST("/sign/order", h.SignOrder)
	return r
}

func postOrder(t *testing.T, r *gin.Engine, req model.SignOrderRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	httpReq := httptest.NewRequest(http.MethodPost, "/sign/order", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, httpReq)
	return w
}

func orderRequest() model.SignOrderRequest {
	return model.SignOrderRequest{
		UserID:            42,
		PrivyWalletID:     "wallet-123456",
		WalletAddress:     wiredWallet,
		TokenID:           "token-1",
		Side:              model.SideBuy,
		MakerAmount:       100_000_000,
		TakerAmount:       50_000_000,
		TargetActivityID:  7,
		VerifyingContract: wiredExchange,
		ChainID:           137,
	}
}

func TestSignOrderEndpoint(t *testing.T) {
	r := newTestRouter()

	w := postOrder(t, r, orderRequest())
	assert.Equal(t, http.StatusOK, w.Code)

	var resp model.SignatureResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "0xSIG1", resp.Signature)
	assert.Equal(t, int64(11), resp.AuditID)
	assert.Empty(t, resp.Error)
}

func TestSignOrderEndpointForbiddenContract(t *testing.T) {
	r := newTestRouter()

	req := orderRequest()
	req.VerifyingContract = "0x2222222222222222222222222222222222222222"
	w := postOrder(t, r, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	var resp model.SignatureResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
	// A rejected attempt still carries its audit reference.
	assert.Equal(t, int64(11), resp.AuditID)
}

func TestSignOrderEndpointBadRequest(t *testing.T) {
	r := newTestRouter()

	req := orderRequest()
	req.UserID = 0
	w := postOrder(t, r, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(apperrors.ReasonInvalidRequest), body["reason"])

	// Malformed body.
	w = httptest.NewRecorder()
	httpReq := httptest.NewRequest(http.MethodPost, "/sign/order", bytes.NewReader([]byte("{")))
	r.ServeHTTP(w, httpReq)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
