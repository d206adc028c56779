package orders

import (
	"context"
	"time"
)

// MirrorRepo persists the "ledger is behind" bookkeeping: mirror failures waiting for reconciliation and drift reports.
type MirrorRepo struct{ DB DB }

func (r *MirrorRepo) RecordFailure(ctx context.Context, orderID int64, op MirrorOperation, reason string) (int64, error) {
	var id int64
	err := r.DB.QueryRow(ctx, `
		INSERT INTO ledger_mirror_failures(order_id, operation, reason)
		VALUES ($1, $2, $3)
		RETURNING id`, orderID, string(op), reason).Scan(&id)
	return id, err
}

// Pending returns the unreconciled failures of an order, oldest first.
func (r *MirrorRepo) Pending(ctx context.Context, orderID int64) ([]MirrorFailure, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, operation, reason, created_at
		FROM ledger_mirror_failures
		WHERE order_id = $1 AND reconciled_at IS NULL
		ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MirrorFailure
	for rows.Next() {
		var (
			f  MirrorFailure
			op string
		)
		if err := rows.Scan(&f.ID, &f.OrderID, &op, &f.Reason, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.Operation = MirrorOperation(op)
		out = append(out, f)
	}
	return out, rows.Err()
}

// OpenOrders returns up to limit order ids that still have unreconciled failures, lowest id first.
func (r *MirrorRepo) OpenOrders(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT DISTINCT order_id
		FROM ledger_mirror_failures
		WHERE reconciled_at IS NULL
		ORDER BY order_id
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// MarkReconciled flags every open failure of the order as resolved and returns how many were closed.
func (r *MirrorRepo) MarkReconciled(ctx context.Context, orderID int64, at time.Time) (int64, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE ledger_mirror_failures SET reconciled_at = $2
		WHERE order_id = $1 AND reconciled_at IS NULL`, orderID, at)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

// RecordDrift inserts all reports in one transaction.
func (r *MirrorRepo) RecordDrift(ctx context.Context, reports []DriftReport) error {
	if len(reports) == 0 {
		return nil
	}
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, d := range reports {
		if _, err := tx.Exec(ctx, `
			INSERT INTO ledger_drift_reports(order_id, check_type, details)
			VALUES ($1, $2, $3)`, d.OrderID, d.CheckType, d.Details); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
