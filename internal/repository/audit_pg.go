package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/TaroHarado/copytrade-key/internal/model"
	"github.com/TaroHarado/copytrade-key/internal/service"
)

type PostgresAuditRepo struct {
	db *sqlx.DB
}

func NewPostgresAuditRepo(db *sqlx.DB) *PostgresAuditRepo {
	repo := &PostgresAuditRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

func (r *PostgresAuditRepo) Insert(ctx context.Context, entry *model.SignatureAudit) (int64, error) {
	if entry == nil {
		return 0, nil
	}
	var id int64
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO signature_audit (
			signature_type, user_id, wallet_address, target_activity_id,
			signature, success, error,
			is_order_signed, is_commission_signed,
			ip_address, service_name,
			rate_limited, volume_limited, validation_failed,
			token_id, token_address, amount_usdc, created_at
		) VALUES (
			$1,$2,$3,$4,
			$5,$6,$7,
			$8,$9,
			$10,$11,
			$12,$13,$14,
			$15,$16,$17,$18
		)
		RETURNING id
	`, entry.SignatureType, entry.UserID, entry.WalletAddress, entry.TargetActivityID,
		entry.Signature, entry.Success, entry.Error,
		entry.IsOrderSigned, entry.IsCommissionSigned,
		entry.IPAddress, entry.ServiceName,
		entry.RateLimited, entry.VolumeLimited, entry.ValidationFailed,
		entry.TokenID, entry.TokenAddress, entry.AmountUSDC, entry.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *PostgresAuditRepo) List(ctx context.Context, filter service.AuditFilter) ([]*model.SignatureAudit, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `SELECT * FROM signature_audit`
	clauses := []string{}
	args := []interface{}{}
	idx := 1

	if filter.UserID != 0 {
		clauses = append(clauses, fmt.Sprintf("user_id = $%d", idx))
		args = append(args, filter.UserID)
		idx++
	}
	if filter.SignatureType != "" {
		clauses = append(clauses, fmt.Sprintf("signature_type = $%d", idx))
		args = append(args, filter.SignatureType)
		idx++
	}
	if filter.From != nil {
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", idx))
		args = append(args, *filter.From)
		idx++
	}
	if filter.To != nil {
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", idx))
		args = append(args, *filter.To)
		idx++
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", idx)
	args = append(args, limit)

	records := make([]*model.SignatureAudit, 0, limit)
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *PostgresAuditRepo) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	_, err := r.db.ExecContext(ctx, `DELETE FROM signature_audit WHERE created_at < $1`, cutoff)
	return err
}

func (r *PostgresAuditRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS signature_audit (
			id BIGSERIAL PRIMARY KEY,
			signature_type TEXT NOT NULL,
			user_id BIGINT NOT NULL,
			wallet_address TEXT NOT NULL,
			target_activity_id BIGINT,
			signature TEXT,
			success BOOLEAN NOT NULL DEFAULT FALSE,
			error TEXT,
			is_order_signed BOOLEAN NOT NULL DEFAULT FALSE,
			is_commission_signed BOOLEAN NOT NULL DEFAULT FALSE,
			ip_address TEXT,
			service_name TEXT,
			rate_limited BOOLEAN NOT NULL DEFAULT FALSE,
			volume_limited BOOLEAN NOT NULL DEFAULT FALSE,
			validation_failed BOOLEAN NOT NULL DEFAULT FALSE,
			token_id TEXT,
			token_address TEXT,
			amount_usdc DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_signature_audit_user ON signature_audit(user_id, created_at DESC)`)
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_signature_audit_created ON signature_audit(created_at DESC)`)
	return nil
}
