package model

import (
	"database/sql"
	"time"
)

// SignatureAudit is one append-only row per signing attempt, success or
// not. Rows are never updated or deleted on the request path; the id is
// returned to the caller for correlation.
type SignatureAudit struct {
	ID int64 `db:"id" json:"id"`

	SignatureType string `db:"signature_type" json:"signature_type"` // order, allowance, transfer
	UserID        int64  `db:"user_id" json:"user_id"`
	WalletAddress string `db:"wallet_address" json:"wallet_address"`

	TargetActivityID sql.NullInt64 `db:"target_activity_id" json:"target_activity_id,omitempty"`

	Signature sql.NullString `db:"signature" json:"signature,omitempty"`
	Success   bool           `db:"success" json:"success"`
	Error     sql.NullString `db:"error" json:"error,omitempty"`

	// Replay flags as committed by this attempt.
	IsOrderSigned      bool `db:"is_order_signed" json:"is_order_signed"`
	IsCommissionSigned bool `db:"is_commission_signed" json:"is_commission_signed"`

	// Which gates fired.
	IPAddress        sql.NullString `db:"ip_address" json:"ip_address,omitempty"`
	ServiceName      sql.NullString `db:"service_name" json:"service_name,omitempty"`
	RateLimited      bool           `db:"rate_limited" json:"rate_limited"`
	VolumeLimited    bool           `db:"volume_limited" json:"volume_limited"`
	ValidationFailed bool           `db:"validation_failed" json:"validation_failed"`

	TokenID      sql.NullString  `db:"token_id" json:"token_id,omitempty"`
	TokenAddress sql.NullString  `db:"token_address" json:"token_address,omitempty"`
	AmountUSDC   sql.NullFloat64 `db:"amount_usdc" json:"amount_usdc,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
