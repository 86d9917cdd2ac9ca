package contract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rentflow/notify"
	"rentflow/room"
)

// Repository executes the guarded state transitions. Every mutation re-checks
// the current status inside its transaction and returns ErrConflict instead of
// overwriting when a precondition no longer holds.
type Repository struct {
	pool  *pgxpool.Pool
	rooms *room.Repository
}

func NewRepository(pool *pgxpool.Pool, rooms *room.Repository) *Repository {
	return &Repository{pool: pool, rooms: rooms}
}

const contractColumns = `
	id, room_id, tenant_id, owner_id, status::text, start_date, end_date,
	tenant_signature, owner_signature,
	pending_end_date, pending_tenant_signature, pending_owner_signature,
	created_at, updated_at`

// CreateParams carries a tenant's request for a new contract.
type CreateParams struct {
	RoomID   string
	TenantID string
	EndDate  time.Time
}

// Create inserts a pending contract for an available room. The tenant's
// signature is recorded at creation: requesting the contract is signing it.
func (r *Repository) Create(ctx context.Context, params CreateParams) (Contract, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Contract{}, fmt.Errorf("contract: begin create: %w", err)
	}
	defer tx.Rollback(ctx)

	rm, err := r.rooms.GetForUpdateTx(ctx, tx, params.RoomID)
	if err != nil {
		if errors.Is(err, room.ErrNotFound) {
			return Contract{}, ErrNotFound
		}
		return Contract{}, err
	}
	if rm.Status != room.StatusAvailable {
		return Contract{}, ErrRoomUnavailable
	}
	if rm.OwnerID == params.TenantID {
		return Contract{}, fmt.Errorf("%w: tenant owns the room", ErrInvalidInput)
	}

	insertSQL := `
		INSERT INTO contracts (room_id, tenant_id, owner_id, end_date, tenant_signature)
		VALUES ($1, $2, $3, $4, true)
		RETURNING ` + contractColumns
	rec, err := scanContract(tx.QueryRow(ctx, insertSQL, params.RoomID, params.TenantID, rm.OwnerID, params.EndDate))
	if err != nil {
		return Contract{}, fmt.Errorf("contract: insert: %w", err)
	}

	if err := appendEventTx(ctx, tx, rec.ID, EventCreated, &params.TenantID, map[string]any{
		"room_id":  rec.RoomID,
		"end_date": rec.EndDate.UTC(),
	}); err != nil {
		return Contract{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Contract{}, fmt.Errorf("contract: commit create: %w", err)
	}
	return rec, nil
}

// SignByOwner records the owner's counter-signature on a pending contract.
func (r *Repository) SignByOwner(ctx context.Context, contractID, callerID string) (Contract, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Contract{}, fmt.Errorf("contract: begin sign: %w", err)
	}
	defer tx.Rollback(ctx)

	updateSQL := `
		UPDATE contracts
		SET owner_signature = true, updated_at = now()
		WHERE id = $1 AND owner_id = $2 AND status = 'pending' AND owner_signature = false
		RETURNING ` + contractColumns
	rec, err := scanContract(tx.QueryRow(ctx, updateSQL, contractID, callerID))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return Contract{}, fmt.Errorf("contract: sign: %w", err)
		}
		return Contract{}, r.classifySignFailure(ctx, contractID, callerID)
	}

	if err := appendEventTx(ctx, tx, rec.ID, EventOwnerSigned, &callerID, nil); err != nil {
		return Contract{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Contract{}, fmt.Errorf("contract: commit sign: %w", err)
	}
	return rec, nil
}

func (r *Repository) classifySignFailure(ctx context.Context, contractID, callerID string) error {
	var ownerID string
	var status Status
	var signed bool
	err := r.pool.QueryRow(ctx,
		`SELECT owner_id, status::text, owner_signature FROM contracts WHERE id = $1`, contractID).
		Scan(&ownerID, &status, &signed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("contract: sign fetch: %w", err)
	}
	if ownerID != callerID {
		return ErrForbidden
	}
	return ErrConflict
}

// ActivateTx confirms the deposit inside the caller's transaction: the
// contract goes active, the room flips to occupied, and every other pending
// contract on the room is discarded.
func (r *Repository) ActivateTx(ctx context.Context, tx pgx.Tx, contractID string, now time.Time) (Contract, error) {
	rec, err := r.getForUpdateTx(ctx, tx, contractID)
	if err != nil {
		return Contract{}, err
	}
	if rec.Status != StatusPending {
		return Contract{}, ErrConflict
	}
	if !rec.EndDate.After(now) {
		return Contract{}, ErrConflict
	}
	if !rec.Signed() {
		return Contract{}, ErrConflict
	}

	if err := r.rooms.OccupyTx(ctx, tx, rec.RoomID); err != nil {
		if errors.Is(err, room.ErrBadStatus) || errors.Is(err, room.ErrNotFound) {
			return Contract{}, ErrRoomUnavailable
		}
		return Contract{}, err
	}

	// Losing bidders for the same room are discarded.
	if _, err := tx.Exec(ctx, `
		DELETE FROM contracts
		WHERE room_id = $1 AND status = 'pending' AND id <> $2`, rec.RoomID, rec.ID); err != nil {
		return Contract{}, fmt.Errorf("contract: discard competitors: %w", err)
	}

	updateSQL := `
		UPDATE contracts SET status = 'active', updated_at = now()
		WHERE id = $1
		RETURNING ` + contractColumns
	rec, err = scanContract(tx.QueryRow(ctx, updateSQL, rec.ID))
	if err != nil {
		return Contract{}, fmt.Errorf("contract: activate: %w", err)
	}

	if err := appendEventTx(ctx, tx, rec.ID, EventActivated, nil, map[string]any{
		"room_id": rec.RoomID,
	}); err != nil {
		return Contract{}, err
	}
	if err := notify.EnqueueTx(ctx, tx, TopicActivated, map[string]any{
		"contract_id": rec.ID,
		"room_id":     rec.RoomID,
		"tenant_id":   rec.TenantID,
		"owner_id":    rec.OwnerID,
	}); err != nil {
		return Contract{}, err
	}
	return rec, nil
}

// RequestExtension fills the single pending-update slot with the requester's
// side pre-signed.
func (r *Repository) RequestExtension(ctx context.Context, contractID, requesterID string, newEndDate, now time.Time) (Contract, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Contract{}, fmt.Errorf("contract: begin extension request: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := r.getForUpdateTx(ctx, tx, contractID)
	if err != nil {
		return Contract{}, err
	}
	if !rec.IsParty(requesterID) {
		return Contract{}, ErrForbidden
	}
	if rec.Status != StatusActive || rec.PendingUpdate != nil {
		return Contract{}, ErrConflict
	}
	if !newEndDate.After(now) || !newEndDate.After(rec.EndDate) {
		return Contract{}, fmt.Errorf("%w: new end date must extend the contract", ErrInvalidInput)
	}

	updateSQL := `
		UPDATE contracts
		SET pending_end_date = $2,
		    pending_tenant_signature = $3,
		    pending_owner_signature = $4,
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + contractColumns
	rec, err = scanContract(tx.QueryRow(ctx, updateSQL, rec.ID, newEndDate,
		requesterID == rec.TenantID, requesterID == rec.OwnerID))
	if err != nil {
		return Contract{}, fmt.Errorf("contract: request extension: %w", err)
	}

	if err := appendEventTx(ctx, tx, rec.ID, EventExtensionRequested, &requesterID, map[string]any{
		"new_end_date": newEndDate.UTC(),
	}); err != nil {
		return Contract{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Contract{}, fmt.Errorf("contract: commit extension request: %w", err)
	}
	return rec, nil
}

// ConfirmExtension sets the confirmer's signature bit on the pending update.
// The second signature applies the extension in the same transaction: the end
// date advances and the slot is cleared.
func (r *Repository) ConfirmExtension(ctx context.Context, contractID, confirmerID string) (Contract, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Contract{}, fmt.Errorf("contract: begin extension confirm: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := r.getForUpdateTx(ctx, tx, contractID)
	if err != nil {
		return Contract{}, err
	}
	if !rec.IsParty(confirmerID) {
		return Contract{}, ErrForbidden
	}
	if rec.Status != StatusActive || rec.PendingUpdate == nil {
		return Contract{}, ErrConflict
	}

	tenantBit := rec.PendingUpdate.TenantSignature || confirmerID == rec.TenantID
	ownerBit := rec.PendingUpdate.OwnerSignature || confirmerID == rec.OwnerID
	if tenantBit == rec.PendingUpdate.TenantSignature && ownerBit == rec.PendingUpdate.OwnerSignature {
		// Confirmer's side already signed.
		return Contract{}, ErrConflict
	}

	applied := tenantBit && ownerBit
	var updated Contract
	if applied {
		applySQL := `
			UPDATE contracts
			SET end_date = pending_end_date,
			    pending_end_date = NULL,
			    pending_tenant_signature = false,
			    pending_owner_signature = false,
			    updated_at = now()
			WHERE id = $1
			RETURNING ` + contractColumns
		updated, err = scanContract(tx.QueryRow(ctx, applySQL, rec.ID))
	} else {
		confirmSQL := `
			UPDATE contracts
			SET pending_tenant_signature = $2,
			    pending_owner_signature = $3,
			    updated_at = now()
			WHERE id = $1
			RETURNING ` + contractColumns
		updated, err = scanContract(tx.QueryRow(ctx, confirmSQL, rec.ID, tenantBit, ownerBit))
	}
	if err != nil {
		return Contract{}, fmt.Errorf("contract: confirm extension: %w", err)
	}

	if err := appendEventTx(ctx, tx, updated.ID, EventExtensionConfirmed, &confirmerID, nil); err != nil {
		return Contract{}, err
	}
	if applied {
		if err := appendEventTx(ctx, tx, updated.ID, EventExtensionApplied, &confirmerID, map[string]any{
			"end_date": updated.EndDate.UTC(),
		}); err != nil {
			return Contract{}, err
		}
		if err := notify.EnqueueTx(ctx, tx, TopicExtended, map[string]any{
			"contract_id": updated.ID,
			"end_date":    updated.EndDate.UTC(),
		}); err != nil {
			return Contract{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Contract{}, fmt.Errorf("contract: commit extension confirm: %w", err)
	}
	return updated, nil
}

// Expire closes an active contract whose term has ended and releases the
// room. The end date is re-checked under the row lock: an extension confirmed
// after the contract was listed as due wins with ErrConflict.
func (r *Repository) Expire(ctx context.Context, contractID string, now time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("contract: begin expire: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := r.getForUpdateTx(ctx, tx, contractID)
	if err != nil {
		return err
	}
	if rec.Status != StatusActive || rec.EndDate.After(now) {
		return ErrConflict
	}

	if err := r.closeTx(ctx, tx, rec, StatusExpired, EventExpired, TopicExpired, nil); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("contract: commit expire: %w", err)
	}
	return nil
}

// TerminateTx terminates an active contract inside the caller's transaction
// (the dispute resolution path) and releases the room.
func (r *Repository) TerminateTx(ctx context.Context, tx pgx.Tx, contractID string, actorID *string) error {
	rec, err := r.getForUpdateTx(ctx, tx, contractID)
	if err != nil {
		return err
	}
	if rec.Status != StatusActive {
		return ErrConflict
	}
	return r.closeTx(ctx, tx, rec, StatusTerminated, EventTerminated, TopicTerminated, actorID)
}

func (r *Repository) closeTx(ctx context.Context, tx pgx.Tx, rec Contract, to Status, event, topic string, actorID *string) error {
	if err := r.rooms.ReleaseTx(ctx, tx, rec.RoomID); err != nil {
		if errors.Is(err, room.ErrBadStatus) {
			// Room already released; the guarded flip keeps this single-shot.
			return ErrConflict
		}
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE contracts SET status = $2::contract_status, updated_at = now()
		WHERE id = $1`, rec.ID, to); err != nil {
		return fmt.Errorf("contract: close %s: %w", to, err)
	}

	if err := appendEventTx(ctx, tx, rec.ID, event, actorID, map[string]any{
		"room_id": rec.RoomID,
	}); err != nil {
		return err
	}
	return notify.EnqueueTx(ctx, tx, topic, map[string]any{
		"contract_id": rec.ID,
		"room_id":     rec.RoomID,
		"tenant_id":   rec.TenantID,
		"owner_id":    rec.OwnerID,
	})
}

// ExpireDue expires every active contract whose end date has passed. Each
// contract closes in its own transaction; races with concurrent transitions
// surface as ErrConflict and are skipped.
func (r *Repository) ExpireDue(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM contracts WHERE status = 'active' AND end_date < $1`, now)
	if err != nil {
		return nil, fmt.Errorf("contract: list due: %w", err)
	}
	var due []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("contract: scan due: %w", err)
		}
		due = append(due, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contract: iterate due: %w", err)
	}

	expired := make([]string, 0, len(due))
	for _, id := range due {
		switch err := r.Expire(ctx, id, now); {
		case err == nil:
			expired = append(expired, id)
		case errors.Is(err, ErrConflict):
			// Lost a race with a termination or another sweeper run.
		default:
			return expired, err
		}
	}
	return expired, nil
}

// GetByID fetches a contract.
func (r *Repository) GetByID(ctx context.Context, id string) (Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE id = $1`
	rec, err := scanContract(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contract{}, ErrNotFound
		}
		return Contract{}, fmt.Errorf("contract: get: %w", err)
	}
	return rec, nil
}

// ListByParty returns contracts where the user is tenant or owner.
func (r *Repository) ListByParty(ctx context.Context, userID string) ([]Contract, error) {
	query := `
		SELECT ` + contractColumns + `
		FROM contracts
		WHERE tenant_id = $1 OR owner_id = $1
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("contract: list: %w", err)
	}
	defer rows.Close()

	out := make([]Contract, 0, 8)
	for rows.Next() {
		rec, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("contract: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contract: iterate: %w", err)
	}
	return out, nil
}

func (r *Repository) getForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE id = $1 FOR UPDATE`
	rec, err := scanContract(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contract{}, ErrNotFound
		}
		return Contract{}, fmt.Errorf("contract: get for update: %w", err)
	}
	return rec, nil
}

func scanContract(row pgx.Row) (Contract, error) {
	var rec Contract
	var pendingEnd *time.Time
	var pendingTenant, pendingOwner bool
	err := row.Scan(
		&rec.ID, &rec.RoomID, &rec.TenantID, &rec.OwnerID, &rec.Status,
		&rec.StartDate, &rec.EndDate, &rec.TenantSignature, &rec.OwnerSignature,
		&pendingEnd, &pendingTenant, &pendingOwner,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return Contract{}, err
	}
	if pendingEnd != nil {
		rec.PendingUpdate = &PendingUpdate{
			NewEndDate:      *pendingEnd,
			TenantSignature: pendingTenant,
			OwnerSignature:  pendingOwner,
		}
	}
	return rec, nil
}

func appendEventTx(ctx context.Context, tx pgx.Tx, contractID, eventType string, actorID *string, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("contract: marshal event payload: %w", err)
	}
	var actor any
	if actorID != nil && *actorID != "" {
		actor = *actorID
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO contract_events (contract_id, type, actor_id, payload)
		VALUES ($1, $2, $3, $4::jsonb)`, contractID, eventType, actor, body); err != nil {
		return fmt.Errorf("contract: insert event: %w", err)
	}
	return nil
}
