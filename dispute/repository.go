package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"rentflow/contract"
	"rentflow/notify"
)

var (
	ErrNotFound  = errors.New("dispute: not found")
	ErrForbidden = errors.New("dispute: forbidden")
	// ErrConflict signals a state guard rejected the operation (already
	// resolved, contract no longer active, or an unresolved dispute exists).
	ErrConflict     = errors.New("dispute: state conflict")
	ErrInvalidInput = errors.New("dispute: invalid input")
)

type Repository struct {
	pool      *pgxpool.Pool
	contracts *contract.Repository
}

func NewRepository(pool *pgxpool.Pool, contracts *contract.Repository) *Repository {
	return &Repository{pool: pool, contracts: contracts}
}

const disputeColumns = `
	id, contract_id, disputer_id, transaction_id, reason, evidence, status::text,
	resolved_by::text, decision::text, resolution_reason, resolved_at,
	created_at, updated_at`

// CreateParams carries a validated filing.
type CreateParams struct {
	ContractID    string
	DisputerID    string
	TransactionID string
	Reason        string
	Evidence      string
}

// Create files a pending dispute. The partial unique index on
// (contract_id) WHERE status='pending' turns a concurrent second filing into
// ErrConflict.
func (r *Repository) Create(ctx context.Context, params CreateParams) (Record, error) {
	const query = `
		INSERT INTO disputes (contract_id, disputer_id, transaction_id, reason, evidence)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + disputeColumns

	rec, err := scanRecord(r.pool.QueryRow(ctx, query,
		params.ContractID, params.DisputerID, params.TransactionID, params.Reason, params.Evidence))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrConflict
		}
		return Record{}, fmt.Errorf("dispute: create: %w", err)
	}
	return rec, nil
}

// ResolveParams carries the admin's decision.
type ResolveParams struct {
	DisputeID string
	AdminID   string
	Decision  Decision
	Reason    string
}

// Resolve applies the authoritative decision in one transaction: the
// write-once resolution record plus, when the disputer wins, the contract
// termination and room release. Settlement (refund) happens outside, after
// commit.
func (r *Repository) Resolve(ctx context.Context, params ResolveParams) (Record, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("dispute: begin resolve: %w", err)
	}
	defer tx.Rollback(ctx)

	cur, err := r.getForUpdateTx(ctx, tx, params.DisputeID)
	if err != nil {
		return Record{}, err
	}
	if cur.Status != StatusPending {
		return Record{}, ErrConflict
	}

	var contractStatus contract.Status
	if err := tx.QueryRow(ctx,
		`SELECT status::text FROM contracts WHERE id = $1 FOR UPDATE`, cur.ContractID).
		Scan(&contractStatus); err != nil {
		return Record{}, fmt.Errorf("dispute: fetch contract status: %w", err)
	}
	if contractStatus != contract.StatusActive {
		return Record{}, ErrConflict
	}

	next := StatusRejected
	if params.Decision == DecisionDisputerWins {
		next = StatusResolved
	}

	updateSQL := `
		UPDATE disputes
		SET status = $2::dispute_status,
		    decision = $3::dispute_decision,
		    resolved_by = $4,
		    resolution_reason = $5,
		    resolved_at = now(),
		    updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + disputeColumns
	rec, err := scanRecord(tx.QueryRow(ctx, updateSQL,
		cur.ID, next, params.Decision, params.AdminID, params.Reason))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrConflict
		}
		return Record{}, fmt.Errorf("dispute: resolve: %w", err)
	}

	if params.Decision == DecisionDisputerWins {
		if err := r.contracts.TerminateTx(ctx, tx, rec.ContractID, &params.AdminID); err != nil {
			if errors.Is(err, contract.ErrConflict) {
				return Record{}, ErrConflict
			}
			return Record{}, err
		}
	}

	if err := notify.EnqueueTx(ctx, tx, TopicResolved, map[string]any{
		"dispute_id":  rec.ID,
		"contract_id": rec.ContractID,
		"disputer_id": rec.DisputerID,
		"decision":    string(params.Decision),
	}); err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("dispute: commit resolve: %w", err)
	}
	return rec, nil
}

// GetByID fetches a dispute.
func (r *Repository) GetByID(ctx context.Context, id string) (Record, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1`
	rec, err := scanRecord(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("dispute: get: %w", err)
	}
	return rec, nil
}

// ListByContract returns the dispute history of a contract.
func (r *Repository) ListByContract(ctx context.Context, contractID string) ([]Record, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE contract_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, contractID)
	if err != nil {
		return nil, fmt.Errorf("dispute: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 4)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate: %w", err)
	}
	return out, nil
}

func (r *Repository) getForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (Record, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1 FOR UPDATE`
	rec, err := scanRecord(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("dispute: get for update: %w", err)
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var resolvedBy, decision, reason *string
	var resolvedAt *time.Time
	err := row.Scan(
		&rec.ID, &rec.ContractID, &rec.DisputerID, &rec.TransactionID,
		&rec.Reason, &rec.Evidence, &rec.Status,
		&resolvedBy, &decision, &reason, &resolvedAt,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	if resolvedBy != nil && decision != nil && resolvedAt != nil {
		res := &Resolution{
			ResolvedBy: *resolvedBy,
			Decision:   Decision(*decision),
			ResolvedAt: *resolvedAt,
		}
		if reason != nil {
			res.Reason = *reason
		}
		rec.Resolution = res
	}
	return rec, nil
}
