package service

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/TaroHarado/copytrade-key/internal/model"
	"github.com/TaroHarado/copytrade-key/internal/pkg/apperrors"
	"github.com/TaroHarado/copytrade-key/internal/pkg/logger"
	"github.com/TaroHarado/copytrade-key/internal/pkg/metrics"
	"github.com/TaroHarado/copytrade-key/internal/signer"
)

// RemoteSigner is the delegated signing capability. It either returns a
// signature or fails within its own bounded timeout; this process never
// holds key material.
type RemoteSigner interface {
	SignTypedData(ctx context.Context, walletID string, typedData signer.TypedData) (string, error)
}

// CallerMeta identifies the boundary-layer caller for the audit trail.
type CallerMeta struct {
	IPAddress   string
	ServiceName string
}

// Outcome is the terminal result of one signing attempt. AuditID is valid
// for every outcome, success or failure, so callers can always reference
// what happened.
type Outcome struct {
	Success   bool
	Signature string
	Err       *apperrors.AppError
	AuditID   int64
}

func (o Outcome) Message() string {
	if o.Err != nil {
		return o.Err.Message
	}
	return ""
}

// Orchestrator sequences one signing request through the full pipeline:
// whitelist, activity validation, guards, remote signer, replay-flag
// commit, audit write. Each step's failure short-circuits the rest; exactly
// one audit record is written per attempt regardless of outcome.
type Orchestrator struct {
	whitelist *Whitelist
	guard     *Guard
	validator *ActivityValidator
	ledger    LedgerStore
	signer    RemoteSigner
	audit     *AuditRecorder
}

func NewOrchestrator(
	whitelist *Whitelist,
	guard *Guard,
	validator *ActivityValidator,
	ledger LedgerStore,
	remote RemoteSigner,
	audit *AuditRecorder,
) *Orchestrator {
	return &Orchestrator{
		whitelist: whitelist,
		guard:     guard,
		validator: validator,
		ledger:    ledger,
		signer:    remote,
		audit:     audit,
	}
}

// SignOrder authorizes and signs a CTF exchange order.
func (o *Orchestrator) SignOrder(ctx context.Context, req model.SignOrderRequest, meta CallerMeta) Outcome {
	log := logger.With(
		"signature_type", model.SignatureTypeOrder,
		"user_id", req.UserID,
		"target_activity_id", req.TargetActivityID,
		"service", meta.ServiceName,
	)
	log.Info("order signature request",
		"token_id", req.TokenID,
		"side", model.SideString(req.Side),
		"amount_usdc", req.USDCAmount())

	entry := &model.SignatureAudit{
		SignatureType:    model.SignatureTypeOrder,
		UserID:           req.UserID,
		WalletAddress:    model.NormalizeAddress(req.WalletAddress),
		TargetActivityID: sql.NullInt64{Int64: req.TargetActivityID, Valid: true},
		IPAddress:        nullString(meta.IPAddress),
		ServiceName:      nullString(meta.ServiceName),
		TokenID:          nullString(req.TokenID),
		AmountUSDC:       sql.NullFloat64{Float64: req.USDCAmount(), Valid: true},
	}

	// Whitelist is enforced at the boundary too; re-affirmed here as the
	// pipeline's first gate.
	if err := o.whitelist.AuthorizeOrder(req.VerifyingContract, req.ChainID); err != nil {
		return o.fail(ctx, entry, err, log)
	}

	if err := o.validator.ValidateOrder(ctx, req); err != nil {
		entry.ValidationFailed = isValidationReason(apperrors.ReasonOf(err))
		log.Error("SECURITY: order activity validation failed",
			"reason", apperrors.ReasonOf(err),
			"ip", meta.IPAddress)
		return o.fail(ctx, entry, err, log)
	}

	if err := o.guard.Allow(ctx, req.UserID, req.USDCAmount()); err != nil {
		markGuardFlags(entry, apperrors.ReasonOf(err))
		return o.fail(ctx, entry, err, log)
	}

	typedData := signer.BuildOrderTypedData(signer.OrderParams{
		MakerAddress:      req.WalletAddress,
		TokenID:           req.TokenID,
		MakerAmount:       req.MakerAmount,
		TakerAmount:       req.TakerAmount,
		Side:              req.Side,
		VerifyingContract: req.VerifyingContract,
		FeeRateBps:        req.FeeRateBps,
		Nonce:             req.Nonce,
		Expiration:        req.Expiration,
	})

	signature, err := o.sign(ctx, req.PrivyWalletID, typedData)
	if err != nil {
		return o.fail(ctx, entry, err, log)
	}
	entry.Signature = nullString(signature)

	// The conditional update is the only thing standing between two
	// concurrent duplicates and two signatures; losing it is surfaced
	// loudly, never swallowed.
	committed, err := o.ledger.SetOrderSigned(ctx, req.UserID, req.TargetActivityID)
	if err != nil {
		return o.fail(ctx, entry,
			apperrors.Wrap(apperrors.ReasonInternal, "failed to commit replay flag", err), log)
	}
	if !committed {
		metrics.ReplayConflicts.Inc()
		log.Error("concurrent replay detected after signing",
			"signature", signature)
		return o.fail(ctx, entry,
			apperrors.Newf(apperrors.ReasonConcurrentReplay,
				"lost replay-flag race for target activity %d: a signature was produced but not authorized",
				req.TargetActivityID), log)
	}
	entry.IsOrderSigned = true

	return o.succeed(ctx, entry, signature, log)
}

// SignAllowance authorizes and signs an ERC-20 permit. Allowances carry no
// activity anchor: only the block and rate gates apply.
func (o *Orchestrator) SignAllowance(ctx context.Context, req model.SignAllowanceRequest, meta CallerMeta) Outcome {
	log := logger.With(
		"signature_type", model.SignatureTypeAllowance,
		"user_id", req.UserID,
		"service", meta.ServiceName,
	)
	log.Info("allowance signature request",
		"token", req.TokenAddress,
		"spender", req.SpenderAddress,
		"amount_usdc", req.USDCAmount())

	entry := &model.SignatureAudit{
		SignatureType: model.SignatureTypeAllowance,
		UserID:        req.UserID,
		WalletAddress: model.NormalizeAddress(req.WalletAddress),
		IPAddress:     nullString(meta.IPAddress),
		ServiceName:   nullString(meta.ServiceName),
		TokenAddress:  nullString(model.NormalizeAddress(req.TokenAddress)),
		AmountUSDC:    sql.NullFloat64{Float64: req.USDCAmount(), Valid: true},
	}

	if err := o.whitelist.AuthorizeAllowance(req.TokenAddress, req.SpenderAddress); err != nil {
		return o.fail(ctx, entry, err, log)
	}

	if err := o.guard.AllowRateOnly(ctx, req.UserID); err != nil {
		markGuardFlags(entry, apperrors.ReasonOf(err))
		return o.fail(ctx, entry, err, log)
	}

	typedData := signer.BuildPermitTypedData(
		req.WalletAddress, req.SpenderAddress, req.TokenAddress, req.Amount)

	signature, err := o.sign(ctx, req.PrivyWalletID, typedData)
	if err != nil {
		return o.fail(ctx, entry, err, log)
	}
	entry.Signature = nullString(signature)

	return o.succeed(ctx, entry, signature, log)
}

// SignTransfer authorizes and signs a commission transfer to a team wallet.
func (o *Orchestrator) SignTransfer(ctx context.Context, req model.SignTransferRequest, meta CallerMeta) Outcome {
	log := logger.With(
		"signature_type", model.SignatureTypeTransfer,
		"user_id", req.UserID,
		"target_activity_id", req.TargetActivityID,
		"service", meta.ServiceName,
	)
	log.Info("transfer signature request",
		"token", req.TokenAddress,
		"recipient", req.RecipientAddress,
		"amount_usdc", req.USDCAmount())

	entry := &model.SignatureAudit{
		SignatureType:    model.SignatureTypeTransfer,
		UserID:           req.UserID,
		WalletAddress:    model.NormalizeAddress(req.WalletAddress),
		TargetActivityID: sql.NullInt64{Int64: req.TargetActivityID, Valid: true},
		IPAddress:        nullString(meta.IPAddress),
		ServiceName:      nullString(meta.ServiceName),
		TokenAddress:     nullString(model.NormalizeAddress(req.TokenAddress)),
		AmountUSDC:       sql.NullFloat64{Float64: req.USDCAmount(), Valid: true},
	}

	if err := o.whitelist.AuthorizeTransfer(req.TokenAddress, req.RecipientAddress); err != nil {
		return o.fail(ctx, entry, err, log)
	}

	if err := o.validator.ValidateTransfer(ctx, req); err != nil {
		entry.ValidationFailed = isValidationReason(apperrors.ReasonOf(err))
		log.Error("SECURITY: commission validation failed",
			"reason", apperrors.ReasonOf(err),
			"recipient", req.RecipientAddress,
			"ip", meta.IPAddress)
		return o.fail(ctx, entry, err, log)
	}

	if err := o.guard.Allow(ctx, req.UserID, req.USDCAmount()); err != nil {
		markGuardFlags(entry, apperrors.ReasonOf(err))
		return o.fail(ctx, entry, err, log)
	}

	payload := signer.BuildTransferPayload(
		req.WalletAddress, req.RecipientAddress, req.TokenAddress, req.Amount)

	signature, err := o.sign(ctx, req.PrivyWalletID, payload)
	if err != nil {
		return o.fail(ctx, entry, err, log)
	}
	entry.Signature = nullString(signature)

	committed, err := o.ledger.SetCommissionSigned(ctx, req.UserID, req.TargetActivityID)
	if err != nil {
		return o.fail(ctx, entry,
			apperrors.Wrap(apperrors.ReasonInternal, "failed to commit replay flag", err), log)
	}
	if !committed {
		metrics.ReplayConflicts.Inc()
		log.Error("concurrent replay detected after signing",
			"signature", signature)
		return o.fail(ctx, entry,
			apperrors.Newf(apperrors.ReasonConcurrentReplay,
				"lost replay-flag race for target activity %d: a signature was produced but not authorized",
				req.TargetActivityID), log)
	}
	entry.IsCommissionSigned = true

	return o.succeed(ctx, entry, signature, log)
}

// sign calls the remote signer; the guard locks were released before this
// point, so a slow round trip never serializes other users.
func (o *Orchestrator) sign(ctx context.Context, walletID string, payload signer.TypedData) (string, error) {
	signature, err := o.signer.SignTypedData(ctx, walletID, payload)
	if err != nil {
		metrics.SignerErrors.Inc()
		return "", apperrors.Wrap(apperrors.ReasonSignerError, "remote signer call failed", err)
	}
	if signature == "" {
		metrics.SignerErrors.Inc()
		return "", apperrors.New(apperrors.ReasonSignerError, "remote signer returned an empty signature")
	}
	return signature, nil
}

func (o *Orchestrator) succeed(ctx context.Context, entry *model.SignatureAudit, signature string, log *slog.Logger) Outcome {
	entry.Success = true
	auditID := o.audit.Record(ctx, entry)
	metrics.SignaturesTotal.WithLabelValues(entry.SignatureType, "success").Inc()
	log.Info("signature produced", "audit_id", auditID)
	return Outcome{Success: true, Signature: signature, AuditID: auditID}
}

func (o *Orchestrator) fail(ctx context.Context, entry *model.SignatureAudit, err error, log *slog.Logger) Outcome {
	appErr := asAppError(err)
	entry.Success = false
	entry.Error = nullString(appErr.Message)
	auditID := o.audit.Record(ctx, entry)
	metrics.SignaturesTotal.WithLabelValues(entry.SignatureType, "failure").Inc()
	log.Warn("signature request rejected",
		"reason", appErr.Reason,
		"audit_id", auditID)
	return Outcome{Success: false, Err: appErr, AuditID: auditID}
}

func asAppError(err error) *apperrors.AppError {
	if appErr, ok := err.(*apperrors.AppError); ok {
		return appErr
	}
	return apperrors.Wrap(apperrors.ReasonInternal, err.Error(), err)
}

func markGuardFlags(entry *model.SignatureAudit, reason apperrors.Reason) {
	switch reason {
	case apperrors.ReasonRateLimitExceeded, apperrors.ReasonUserBlocked:
		entry.RateLimited = true
	case apperrors.ReasonVolumeLimitExceeded:
		entry.VolumeLimited = true
	}
}

func isValidationReason(reason apperrors.Reason) bool {
	switch reason {
	case apperrors.ReasonActivityNotFound,
		apperrors.ReasonParameterMismatch,
		apperrors.ReasonNoActiveRelationship,
		apperrors.ReasonWalletMismatch,
		apperrors.ReasonAlreadySigned,
		apperrors.ReasonOrderNotYetSigned,
		apperrors.ReasonAmountUnavailable,
		apperrors.ReasonCommissionMismatch:
		return true
	}
	return false
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
