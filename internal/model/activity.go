package model

import (
	"database/sql"
	"time"
)

// Activity ledger rows. The copytrading service owns these tables; this
// process reads them for validation and updates nothing except the two
// replay-protection flags on UserActivity.

// TargetActivity is a trade event observed on a monitored wallet.
type TargetActivity struct {
	ID            int64           `db:"id"`
	ActivityID    string          `db:"activity_id"`
	WalletAddress string          `db:"wallet_address"`
	TokenID       string          `db:"token_id"`
	Side          string          `db:"side"` // "BUY" or "SELL"
	Amount        float64         `db:"amount"`
	Price         sql.NullFloat64 `db:"price"`
	USDCAmount    sql.NullFloat64 `db:"usdc_amount"`
	CreatedAt     time.Time       `db:"created_at"`
}

// MonitoringSession links a user to a target wallet they are copying.
type MonitoringSession struct {
	ID                    int64          `db:"id"`
	UserID                int64          `db:"user_id"`
	TargetAddress         string         `db:"target_address"`
	InternalWalletAddress sql.NullString `db:"internal_wallet_address"`
	IsActive              bool           `db:"is_active"`
	StartedAt             time.Time      `db:"started_at"`
	StoppedAt             sql.NullTime   `db:"stopped_at"`
}

// UserActivity is the user's copy of a target trade. IsOrderSigned and
// IsCommissionSigned are set exactly once each, via conditional updates;
// they never flip back.
type UserActivity struct {
	ID                 int64           `db:"id"`
	UserID             int64           `db:"user_id"`
	TargetActivityID   int64           `db:"target_activity_id"`
	USDCAmount         sql.NullFloat64 `db:"usdc_amount"`
	TokenAmount        sql.NullFloat64 `db:"token_amount"`
	Price              sql.NullFloat64 `db:"price"`
	IsOrderSigned      bool            `db:"is_order_signed"`
	IsCommissionSigned bool            `db:"is_commission_signed"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          sql.NullTime    `db:"updated_at"`
}
