package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/TaroHarado/copytrade-key/internal/config"
	"github.com/TaroHarado/copytrade-key/internal/model"
	"github.com/TaroHarado/copytrade-key/internal/pkg/apperrors"
	"github.com/TaroHarado/copytrade-key/internal/pkg/metrics"
)

// LedgerStore is the read side of the external activity ledger plus the two
// conditional replay-flag updates. Get methods return (nil, nil) when no
// row matches; errors are infrastructure faults only.
type LedgerStore interface {
	GetTargetActivity(ctx context.Context, id int64) (*model.TargetActivity, error)
	GetMonitoringSession(ctx context.Context, userID int64, targetAddress string) (*model.MonitoringSession, error)
	GetUserActivity(ctx context.Context, userID, targetActivityID int64) (*model.UserActivity, error)

	// SetOrderSigned / SetCommissionSigned flip the flag only if it is
	// currently false and report whether a row actually changed. This is
	// the sole correctness boundary against double-signing.
	SetOrderSigned(ctx context.Context, userID, targetActivityID int64) (bool, error)
	SetCommissionSigned(ctx context.Context, userID, targetActivityID int64) (bool, error)
}

// ActivityValidator cross-checks signing requests against the activity
// ledger. All checks here are read-only; the replay flag is committed by
// the orchestrator after the signature exists.
type ActivityValidator struct {
	ledger     LedgerStore
	commission config.CommissionConfig
}

func NewActivityValidator(ledger LedgerStore, commission config.CommissionConfig) *ActivityValidator {
	return &ActivityValidator{ledger: ledger, commission: commission}
}

// ValidateOrder confirms the referenced target activity exists, matches the
// requested parameters, belongs to an active monitoring session of this
// user, and has not been signed for this user yet.
func (v *ActivityValidator) ValidateOrder(ctx context.Context, req model.SignOrderRequest) error {
	target, err := v.ledger.GetTargetActivity(ctx, req.TargetActivityID)
	if err != nil {
		return apperrors.Wrap(apperrors.ReasonInternal, "ledger lookup failed", err)
	}
	if target == nil {
		return v.reject(apperrors.Newf(apperrors.ReasonActivityNotFound,
			"target activity %d not found", req.TargetActivityID))
	}

	if target.TokenID != req.TokenID {
		return v.reject(apperrors.Newf(apperrors.ReasonParameterMismatch,
			"token id mismatch: expected %s, got %s", target.TokenID, req.TokenID))
	}
	if target.Side != model.SideString(req.Side) {
		return v.reject(apperrors.Newf(apperrors.ReasonParameterMismatch,
			"side mismatch: expected %s, got %s", target.Side, model.SideString(req.Side)))
	}

	session, err := v.ledger.GetMonitoringSession(ctx, req.UserID, model.NormalizeAddress(target.WalletAddress))
	if err != nil {
		return apperrors.Wrap(apperrors.ReasonInternal, "ledger lookup failed", err)
	}
	if session == nil {
		return v.reject(apperrors.Newf(apperrors.ReasonNoActiveRelationship,
			"no active monitoring session for user %d and target %s", req.UserID, target.WalletAddress))
	}
	if session.InternalWalletAddress.Valid &&
		model.NormalizeAddress(session.InternalWalletAddress.String) != model.NormalizeAddress(req.WalletAddress) {
		return v.reject(apperrors.New(apperrors.ReasonWalletMismatch,
			"wallet address does not match the monitoring session"))
	}

	activity, err := v.ledger.GetUserActivity(ctx, req.UserID, req.TargetActivityID)
	if err != nil {
		return apperrors.Wrap(apperrors.ReasonInternal, "ledger lookup failed", err)
	}
	if activity != nil && activity.IsOrderSigned {
		return v.reject(apperrors.Newf(apperrors.ReasonAlreadySigned,
			"order for target activity %d already signed", req.TargetActivityID))
	}

	return nil
}

// ValidateTransfer confirms the commission transfer is anchored to a signed
// order of this user and the amount lies within the tolerance band of the
// expected platform commission.
func (v *ActivityValidator) ValidateTransfer(ctx context.Context, req model.SignTransferRequest) error {
	activity, err := v.ledger.GetUserActivity(ctx, req.UserID, req.TargetActivityID)
	if err != nil {
		return apperrors.Wrap(apperrors.ReasonInternal, "ledger lookup failed", err)
	}
	if activity == nil {
		return v.reject(apperrors.Newf(apperrors.ReasonActivityNotFound,
			"user activity %d not found for user %d", req.TargetActivityID, req.UserID))
	}
	if activity.IsCommissionSigned {
		return v.reject(apperrors.Newf(apperrors.ReasonAlreadySigned,
			"commission for target activity %d already signed", req.TargetActivityID))
	}
	if !activity.IsOrderSigned {
		return v.reject(apperrors.New(apperrors.ReasonOrderNotYetSigned,
			"order must be signed before the commission transfer"))
	}
	if !activity.USDCAmount.Valid {
		return v.reject(apperrors.New(apperrors.ReasonAmountUnavailable,
			"trade amount not available"))
	}

	expected := decimal.NewFromFloat(activity.USDCAmount.Float64).
		Mul(decimal.NewFromFloat(v.commission.Percent)).
		Div(decimal.NewFromInt(100))
	actual := decimal.New(req.Amount, -6) // minor units to USDC

	tolerance := decimal.NewFromFloat(v.commission.Tolerance)
	one := decimal.NewFromInt(1)
	lower := expected.Mul(one.Sub(tolerance))
	upper := expected.Mul(one.Add(tolerance))

	// Boundary values are accepted.
	if actual.LessThan(lower) || actual.GreaterThan(upper) {
		return v.reject(apperrors.Newf(apperrors.ReasonCommissionMismatch,
			"commission amount %s USDC does not match expected %s%% of trade (%s USDC)",
			actual.StringFixed(2),
			fmt.Sprintf("%g", v.commission.Percent),
			expected.StringFixed(2)))
	}

	return nil
}

func (v *ActivityValidator) reject(err *apperrors.AppError) error {
	metrics.ValidationRejects.WithLabelValues(string(err.Reason)).Inc()
	return err
}
