// Package oracles holds the SQL invariant checks the stress test runs against
// a live schema. Each oracle selects violating rows; an empty result means the
// invariant held.
package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_one_active_contract_per_room",
			SQL: `SELECT room_id, COUNT(*) FROM contracts
                  WHERE status = 'active'
                  GROUP BY room_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_room_contract_consistency",
			SQL: `SELECT r.id FROM rooms r
                  WHERE (r.status = 'occupied' AND NOT EXISTS (
                          SELECT 1 FROM contracts c WHERE c.room_id = r.id AND c.status = 'active'))
                     OR (r.status = 'available' AND EXISTS (
                          SELECT 1 FROM contracts c WHERE c.room_id = r.id AND c.status = 'active'))`,
		},
		{
			Name: "O3_active_contract_signed",
			SQL: `SELECT id FROM contracts
                  WHERE status = 'active' AND NOT (tenant_signature OR owner_signature)`,
		},
		{
			Name: "O4_ledger_unique_gateway_id",
			SQL: `SELECT app_trans_id, COUNT(*) FROM transactions
                  GROUP BY app_trans_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O5_refund_write_once_shape",
			SQL: `SELECT id FROM transactions
                  WHERE (m_refund_id IS NOT NULL) <> (refund_status IS NOT NULL)
                     OR (m_refund_id IS NOT NULL AND refund_amount IS NULL)
                     OR (refund_amount IS NOT NULL AND refund_amount > amount)`,
		},
		{
			Name: "O6_one_pending_dispute_per_contract",
			SQL: `SELECT contract_id, COUNT(*) FROM disputes
                  WHERE status = 'pending'
                  GROUP BY contract_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O7_resolution_write_once_shape",
			SQL: `SELECT id FROM disputes
                  WHERE (status IN ('resolved', 'rejected') AND (decision IS NULL OR resolved_by IS NULL OR resolved_at IS NULL))
                     OR (status = 'pending' AND (decision IS NOT NULL OR resolved_by IS NOT NULL OR resolved_at IS NOT NULL))`,
		},
		{
			Name: "O8_extension_slot_wholeness",
			SQL: `SELECT id FROM contracts
                  WHERE pending_end_date IS NULL
                    AND (pending_tenant_signature OR pending_owner_signature)`,
		},
		{
			Name: "O9_outbox_no_stale_pending",
			SQL: `SELECT id FROM outbox
                  WHERE status = 'pending' AND now() - created_at > interval '5 minutes'`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row
// text) or an empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
