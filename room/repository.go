package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("room: not found")
	// ErrBadStatus signals the room is not in the state the transition requires.
	ErrBadStatus = errors.New("room: invalid status transition")
	// ErrAlreadyBoosted signals boosting was already applied.
	ErrAlreadyBoosted = errors.New("room: already boosted")
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roomColumns = `id, housing_area_id, owner_id, name, price, status::text, boosted, created_at, updated_at`

// CreateParams contains write parameters for listing a room.
type CreateParams struct {
	HousingAreaID string
	OwnerID       string
	Name          string
	Price         int64
}

// Create lists a room as available.
func (r *Repository) Create(ctx context.Context, params CreateParams) (Room, error) {
	query := `
		INSERT INTO rooms (housing_area_id, owner_id, name, price)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + roomColumns

	rec, err := scanRoom(r.pool.QueryRow(ctx, query, params.HousingAreaID, params.OwnerID, params.Name, params.Price))
	if err != nil {
		return Room{}, fmt.Errorf("room: create: %w", err)
	}
	return rec, nil
}

// ListAvailable lists rooms open for rent, boosted listings first.
func (r *Repository) ListAvailable(ctx context.Context) ([]Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms
		WHERE status = 'available'
		ORDER BY boosted DESC, created_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("room: list available: %w", err)
	}
	defer rows.Close()

	var out []Room
	for rows.Next() {
		rec, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("room: list available scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repository) GetByID(ctx context.Context, id string) (Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1`
	rec, err := scanRoom(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Room{}, ErrNotFound
		}
		return Room{}, fmt.Errorf("room: get: %w", err)
	}
	return rec, nil
}

// Price resolves the room's monthly price, which doubles as its deposit amount.
func (r *Repository) Price(ctx context.Context, id string) (int64, error) {
	var price int64
	if err := r.pool.QueryRow(ctx, `SELECT price FROM rooms WHERE id = $1`, id).Scan(&price); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("room: price: %w", err)
	}
	return price, nil
}

// GetForUpdateTx reads a room inside the caller's transaction with a row lock.
func (r *Repository) GetForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1 FOR UPDATE`
	rec, err := scanRoom(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Room{}, ErrNotFound
		}
		return Room{}, fmt.Errorf("room: get for update: %w", err)
	}
	return rec, nil
}

// OccupyTx flips an available room to occupied. ErrBadStatus when the room is
// not available anymore.
func (r *Repository) OccupyTx(ctx context.Context, tx pgx.Tx, id string) error {
	return r.flipTx(ctx, tx, id, StatusAvailable, StatusOccupied)
}

// ReleaseTx flips an occupied room back to available.
func (r *Repository) ReleaseTx(ctx context.Context, tx pgx.Tx, id string) error {
	return r.flipTx(ctx, tx, id, StatusOccupied, StatusAvailable)
}

func (r *Repository) flipTx(ctx context.Context, tx pgx.Tx, id string, from, to Status) error {
	tag, err := tx.Exec(ctx, `
		UPDATE rooms SET status = $3::room_status, updated_at = now()
		WHERE id = $1 AND status = $2::room_status`, id, from, to)
	if err != nil {
		return fmt.Errorf("room: flip %s->%s: %w", from, to, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT true FROM rooms WHERE id = $1`, id).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("room: flip fetch: %w", err)
	}
	return ErrBadStatus
}

// BoostTx applies boosting to an available, not-yet-boosted room.
func (r *Repository) BoostTx(ctx context.Context, tx pgx.Tx, id string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE rooms SET boosted = true, updated_at = now()
		WHERE id = $1 AND boosted = false AND status = 'available'`, id)
	if err != nil {
		return fmt.Errorf("room: boost: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var boosted bool
	var status Status
	if err := tx.QueryRow(ctx, `SELECT boosted, status::text FROM rooms WHERE id = $1`, id).Scan(&boosted, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("room: boost fetch: %w", err)
	}
	if boosted {
		return ErrAlreadyBoosted
	}
	return ErrBadStatus
}

func scanRoom(row pgx.Row) (Room, error) {
	var rec Room
	err := row.Scan(&rec.ID, &rec.HousingAreaID, &rec.OwnerID, &rec.Name, &rec.Price,
		&rec.Status, &rec.Boosted, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}
