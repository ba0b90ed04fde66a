package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/TaroHarado/copytrade-key/internal/model"
)

// PostgresLedgerRepo reads the copytrading activity ledger. The tables are
// owned by the copytrading service; nothing here creates or drops schema,
// and the only writes are the two conditional replay-flag updates.
type PostgresLedgerRepo struct {
	db *sqlx.DB
}

func NewPostgresLedgerRepo(db *sqlx.DB) *PostgresLedgerRepo {
	return &PostgresLedgerRepo{db: db}
}

func (r *PostgresLedgerRepo) GetTargetActivity(ctx context.Context, id int64) (*model.TargetActivity, error) {
	var activity model.TargetActivity
	err := r.db.GetContext(ctx, &activity, `
		SELECT id, activity_id, wallet_address, token_id, side, amount, price, usdc_amount, created_at
		FROM target_activities
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

func (r *PostgresLedgerRepo) GetMonitoringSession(ctx context.Context, userID int64, targetAddress string) (*model.MonitoringSession, error) {
	var session model.MonitoringSession
	err := r.db.GetContext(ctx, &session, `
		SELECT id, user_id, target_address, internal_wallet_address, is_active, started_at, stopped_at
		FROM monitoring_sessions
		WHERE user_id = $1 AND LOWER(target_address) = $2 AND is_active = TRUE
		ORDER BY started_at DESC
		LIMIT 1
	`, userID, targetAddress)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *PostgresLedgerRepo) GetUserActivity(ctx context.Context, userID, targetActivityID int64) (*model.UserActivity, error) {
	var activity model.UserActivity
	err := r.db.GetContext(ctx, &activity, `
		SELECT id, user_id, target_activity_id, usdc_amount, token_amount, price,
		       is_order_signed, is_commission_signed, created_at, updated_at
		FROM user_activities
		WHERE user_id = $1 AND target_activity_id = $2
	`, userID, targetActivityID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

// SetOrderSigned flips is_order_signed for exactly one concurrent caller.
// The WHERE clause on the current flag value makes the row count the
// arbiter: zero rows means someone else already won.
func (r *PostgresLedgerRepo) SetOrderSigned(ctx context.Context, userID, targetActivityID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE user_activities
		SET is_order_signed = TRUE, updated_at = NOW()
		WHERE user_id = $1 AND target_activity_id = $2 AND is_order_signed = FALSE
	`, userID, targetActivityID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *PostgresLedgerRepo) SetCommissionSigned(ctx context.Context, userID, targetActivityID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE user_activities
		SET is_commission_signed = TRUE, updated_at = NOW()
		WHERE user_id = $1 AND target_activity_id = $2 AND is_commission_signed = FALSE
	`, userID, targetActivityID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
