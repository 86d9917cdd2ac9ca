package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrDuplicateTransaction signals the gateway transaction id is already recorded.
	ErrDuplicateTransaction = errors.New("ledger: duplicate transaction")
	// ErrNotFound is returned when no transaction row matches.
	ErrNotFound = errors.New("ledger: transaction not found")
	// ErrRefundExists signals a refund record is already attached to the transaction.
	ErrRefundExists = errors.New("ledger: refund already recorded")
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const transactionColumns = `
	id, app_trans_id, zp_trans_id, app_id, type::text,
	contract_id::text, housing_area_id::text, room_id::text,
	amount, channel, app_time, app_user, callback_received,
	m_refund_id, refund_amount, refund_status::text, created_at, updated_at`

// InsertTx appends a transaction inside the caller's unit of work. A unique
// violation on app_trans_id yields ErrDuplicateTransaction so callback replays
// can be acknowledged without re-applying effects.
func (r *Repository) InsertTx(ctx context.Context, tx pgx.Tx, params InsertParams) (Transaction, error) {
	if params.AppTransID == "" {
		return Transaction{}, fmt.Errorf("ledger: empty app_trans_id")
	}

	const query = `
		INSERT INTO transactions
			(app_trans_id, zp_trans_id, app_id, type, contract_id, housing_area_id, room_id,
			 amount, channel, app_time, app_user, callback_received)
		VALUES ($1,$2,$3,$4::transaction_type,$5,$6,$7,$8,$9,$10,$11,true)
		RETURNING ` + transactionColumns

	rec, err := scanTransaction(tx.QueryRow(ctx, query,
		params.AppTransID, params.ZPTransID, params.AppID, params.Type,
		params.ContractID, params.HousingAreaID, params.RoomID,
		params.Amount, params.Channel, params.AppTime, params.AppUser,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Transaction{}, ErrDuplicateTransaction
		}
		return Transaction{}, fmt.Errorf("ledger: insert: %w", err)
	}
	return rec, nil
}

// GetByID fetches a single transaction.
func (r *Repository) GetByID(ctx context.Context, id string) (Transaction, error) {
	const query = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	rec, err := scanTransaction(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, fmt.Errorf("ledger: get: %w", err)
	}
	return rec, nil
}

// DepositForContract returns the recorded deposit transaction for a contract.
func (r *Repository) DepositForContract(ctx context.Context, contractID string) (Transaction, error) {
	const query = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE contract_id = $1 AND type = 'deposit'
		ORDER BY created_at DESC
		LIMIT 1`
	rec, err := scanTransaction(r.pool.QueryRow(ctx, query, contractID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, fmt.Errorf("ledger: deposit for contract: %w", err)
	}
	return rec, nil
}

// AttachRefund records the terminal outcome of a refund. The m_refund_id IS
// NULL guard makes the attachment write-once.
func (r *Repository) AttachRefund(ctx context.Context, rec RefundRecord) error {
	const query = `
		UPDATE transactions
		SET m_refund_id = $2,
		    refund_amount = $3,
		    refund_status = $4::refund_status,
		    updated_at = now()
		WHERE id = $1 AND m_refund_id IS NULL`

	tag, err := r.pool.Exec(ctx, query, rec.TransactionID, rec.MRefundID, rec.Amount, rec.Status)
	if err != nil {
		return fmt.Errorf("ledger: attach refund: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT m_refund_id IS NOT NULL FROM transactions WHERE id = $1`, rec.TransactionID).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("ledger: attach refund fetch: %w", err)
	}
	if exists {
		return ErrRefundExists
	}
	return ErrNotFound
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var rec Transaction
	err := row.Scan(
		&rec.ID, &rec.AppTransID, &rec.ZPTransID, &rec.AppID, &rec.Type,
		&rec.ContractID, &rec.HousingAreaID, &rec.RoomID,
		&rec.Amount, &rec.Channel, &rec.AppTime, &rec.AppUser, &rec.CallbackReceived,
		&rec.MRefundID, &rec.RefundAmount, &rec.RefundStatus, &rec.CreatedAt, &rec.UpdatedAt,
	)
	return rec, err
}
