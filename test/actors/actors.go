// Package actors holds the concurrent workloads the stress test throws at the
// schema. Each actor loops until stopped, exercising one contention point the
// way the production code paths do.
package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ContractCreator opens competing pending contracts for the same room. The
// tenant side is pre-signed on creation.
func ContractCreator(ctx context.Context, pool *pgxpool.Pool, roomID, tenantID, ownerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `INSERT INTO contracts (room_id, tenant_id, owner_id, status, end_date, tenant_signature)
                                   VALUES ($1,$2,$3,'pending', NOW() + interval '30 days', true)`, roomID, tenantID, ownerID)
		if err != nil && !isUniqueViolation(err) {
			return fmt.Errorf("contract creator: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Signer flips owner signatures on pending contracts, idempotently.
func Signer(ctx context.Context, pool *pgxpool.Pool, roomID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, _ = pool.Exec(ctx, `UPDATE contracts SET owner_signature = true, updated_at = NOW()
                                WHERE id = (SELECT id FROM contracts WHERE room_id = $1 AND status = 'pending' LIMIT 1)`, roomID)
		time.Sleep(time.Duration(20+rand.Intn(30)) * time.Millisecond)
	}
}

// Activator simulates the deposit callback: it records a ledger row under a
// fresh gateway transaction id, occupies the room, activates one signed
// pending contract and discards its competitors, all in one transaction.
// Unique violations and empty guarded updates are the expected contention
// outcomes.
func Activator(ctx context.Context, pool *pgxpool.Pool, roomID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		err := func() error {
			tx, err := pool.Begin(ctx)
			if err != nil {
				return err
			}
			defer tx.Rollback(ctx)

			var contractID string
			err = tx.QueryRow(ctx, `SELECT id FROM contracts
                                     WHERE room_id = $1 AND status = 'pending'
                                       AND (tenant_signature OR owner_signature)
                                     LIMIT 1 FOR UPDATE SKIP LOCKED`, roomID).Scan(&contractID)
			if err != nil {
				return nil
			}

			appTransID := fmt.Sprintf("%s_%d", time.Now().Format("060102"), rand.Int63())
			if _, err := tx.Exec(ctx, `INSERT INTO transactions (app_trans_id, zp_trans_id, type, contract_id, amount, callback_received)
                                        VALUES ($1, $2, 'deposit', $3, 500000, true)`, appTransID, rand.Int63(), contractID); err != nil {
				return err
			}

			tag, err := tx.Exec(ctx, `UPDATE rooms SET status = 'occupied', updated_at = NOW()
                                       WHERE id = $1 AND status = 'available'`, roomID)
			if err != nil || tag.RowsAffected() == 0 {
				return err
			}

			if _, err := tx.Exec(ctx, `DELETE FROM contracts WHERE room_id = $1 AND status = 'pending' AND id <> $2`, roomID, contractID); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `UPDATE contracts SET status = 'active', updated_at = NOW() WHERE id = $1`, contractID); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `INSERT INTO contract_events (contract_id, type) VALUES ($1, 'DEPOSIT_CONFIRMED')`, contractID); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ('contract.activated', jsonb_build_object('contract_id', $1))`, contractID); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err != nil && !isUniqueViolation(err) {
			return fmt.Errorf("activator: %w", err)
		}
		time.Sleep(time.Duration(25+rand.Intn(40)) * time.Millisecond)
	}
}

// Terminator closes active contracts and releases their rooms, racing the
// activator for the room row.
func Terminator(ctx context.Context, pool *pgxpool.Pool, roomID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		err := func() error {
			tx, err := pool.Begin(ctx)
			if err != nil {
				return err
			}
			defer tx.Rollback(ctx)

			var contractID string
			err = tx.QueryRow(ctx, `SELECT id FROM contracts WHERE room_id = $1 AND status = 'active'
                                     LIMIT 1 FOR UPDATE SKIP LOCKED`, roomID).Scan(&contractID)
			if err != nil {
				return nil
			}

			tag, err := tx.Exec(ctx, `UPDATE rooms SET status = 'available', updated_at = NOW()
                                       WHERE id = $1 AND status = 'occupied'`, roomID)
			if err != nil || tag.RowsAffected() == 0 {
				return err
			}
			if _, err := tx.Exec(ctx, `UPDATE contracts SET status = 'terminated', updated_at = NOW() WHERE id = $1`, contractID); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `INSERT INTO contract_events (contract_id, type) VALUES ($1, 'CONTRACT_TERMINATED')`, contractID); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err != nil && !isUniqueViolation(err) {
			return fmt.Errorf("terminator: %w", err)
		}
		time.Sleep(time.Duration(100+rand.Intn(150)) * time.Millisecond)
	}
}

// CallbackReplayer hammers the ledger with the same gateway transaction id.
// Exactly one insert may ever land; every other attempt must hit the unique
// index.
func CallbackReplayer(ctx context.Context, pool *pgxpool.Pool, appTransID, contractID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `INSERT INTO transactions (app_trans_id, zp_trans_id, type, contract_id, amount, callback_received)
                                   VALUES ($1, 42, 'deposit', $2, 500000, true)`, appTransID, contractID)
		if err != nil && !isUniqueViolation(err) {
			return fmt.Errorf("callback replayer: %w", err)
		}
		time.Sleep(time.Duration(15+rand.Intn(25)) * time.Millisecond)
	}
}

// Disputer files disputes against a contract and resolves them with the
// write-once guard. The partial unique index keeps concurrent filers down to
// one pending dispute.
func Disputer(ctx context.Context, pool *pgxpool.Pool, contractID, disputerID, transactionID, adminID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var dispID string
		err := pool.QueryRow(ctx, `INSERT INTO disputes (contract_id, disputer_id, transaction_id, reason)
                                    VALUES ($1, $2, $3, 'deposit not returned') RETURNING id`, contractID, disputerID, transactionID).Scan(&dispID)
		if err != nil && !isUniqueViolation(err) {
			return fmt.Errorf("disputer file: %w", err)
		}
		if dispID != "" {
			status, decision := "resolved", "disputer_wins"
			if rand.Intn(2) == 0 {
				status, decision = "rejected", "rejected"
			}
			_, err = pool.Exec(ctx, `UPDATE disputes SET status = $2::dispute_status, decision = $3::dispute_decision,
                                      resolved_by = $4, resolution_reason = 'reviewed', resolved_at = NOW(), updated_at = NOW()
                                      WHERE id = $1 AND status = 'pending'`, dispID, status, decision, adminID)
			if err != nil {
				return fmt.Errorf("disputer resolve: %w", err)
			}
		}
		time.Sleep(time.Duration(150+rand.Intn(150)) * time.Millisecond)
	}
}

// Refunder attaches refund outcomes to settled transactions with the
// write-once guard; a second attach on the same row must affect nothing.
func Refunder(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		status := "success"
		if rand.Intn(4) == 0 {
			status = "failed"
		}
		mRefundID := fmt.Sprintf("%s_1_%d", time.Now().Format("060102"), rand.Int63())
		_, err := pool.Exec(ctx, `UPDATE transactions
                                   SET m_refund_id = $1, refund_amount = amount, refund_status = $2::refund_status, updated_at = NOW()
                                   WHERE id = (SELECT t.id FROM transactions t
                                               JOIN disputes d ON d.transaction_id = t.id
                                               WHERE d.status = 'resolved' AND d.decision = 'disputer_wins' AND t.m_refund_id IS NULL
                                               LIMIT 1)
                                     AND m_refund_id IS NULL`, mRefundID, status)
		if err != nil {
			return fmt.Errorf("refunder: %w", err)
		}
		time.Sleep(time.Duration(120+rand.Intn(120)) * time.Millisecond)
	}
}

// OutboxWorker drains pending outbox messages with SKIP LOCKED, marking them
// processed or retrying, the way the relay does.
func OutboxWorker(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT id FROM outbox WHERE status='pending' ORDER BY created_at FOR UPDATE SKIP LOCKED LIMIT 10`)
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		ids := make([]string, 0, 10)
		for rows.Next() {
			var id string
			_ = rows.Scan(&id)
			ids = append(ids, id)
		}
		rows.Close()
		for _, id := range ids {
			// simulate random delivery failure
			if rand.Intn(10) == 0 {
				_, _ = tx.Exec(ctx, `UPDATE outbox SET attempts = attempts + 1 WHERE id = $1`, id)
				continue
			}
			_, _ = tx.Exec(ctx, `UPDATE outbox SET status = 'processed', processed_at = NOW() WHERE id = $1`, id)
		}
		_ = tx.Commit(ctx)
		time.Sleep(100 * time.Millisecond)
	}
}
