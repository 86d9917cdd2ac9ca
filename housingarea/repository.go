package housingarea

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("housingarea: not found")
	// ErrAlreadyPaid signals the service fee was already settled.
	ErrAlreadyPaid = errors.New("housingarea: already paid")
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateParams contains write parameters for registering a housing area.
type CreateParams struct {
	OwnerID string
	Name    string
	Address string
}

const areaColumns = `id, owner_id, name, address, paid, created_at, updated_at`

// Create registers a housing area with the service fee outstanding.
func (r *Repository) Create(ctx context.Context, params CreateParams) (HousingArea, error) {
	query := `
		INSERT INTO housing_areas (owner_id, name, address)
		VALUES ($1, $2, $3)
		RETURNING ` + areaColumns

	rec, err := scanArea(r.pool.QueryRow(ctx, query, params.OwnerID, params.Name, params.Address))
	if err != nil {
		return HousingArea{}, fmt.Errorf("housingarea: create: %w", err)
	}
	return rec, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (HousingArea, error) {
	query := `SELECT ` + areaColumns + ` FROM housing_areas WHERE id = $1`

	rec, err := scanArea(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return HousingArea{}, ErrNotFound
		}
		return HousingArea{}, fmt.Errorf("housingarea: get: %w", err)
	}
	return rec, nil
}

// ListByOwner lists the owner's housing areas, newest first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]HousingArea, error) {
	query := `SELECT ` + areaColumns + ` FROM housing_areas WHERE owner_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("housingarea: list by owner: %w", err)
	}
	defer rows.Close()

	var out []HousingArea
	for rows.Next() {
		rec, err := scanArea(rows)
		if err != nil {
			return nil, fmt.Errorf("housingarea: list by owner scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// IsPaid reports the area's owner and whether its service fee is settled.
func (r *Repository) IsPaid(ctx context.Context, id string) (string, bool, error) {
	var (
		ownerID string
		paid    bool
	)
	err := r.pool.QueryRow(ctx, `SELECT owner_id, paid FROM housing_areas WHERE id = $1`, id).Scan(&ownerID, &paid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, ErrNotFound
		}
		return "", false, fmt.Errorf("housingarea: is paid: %w", err)
	}
	return ownerID, paid, nil
}

// MarkPaidTx flips the paid flag inside the caller's transaction. ErrAlreadyPaid
// when a previous service payment already settled the fee.
func (r *Repository) MarkPaidTx(ctx context.Context, tx pgx.Tx, id string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE housing_areas SET paid = true, updated_at = now()
		WHERE id = $1 AND paid = false`, id)
	if err != nil {
		return fmt.Errorf("housingarea: mark paid: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var paid bool
	if err := tx.QueryRow(ctx, `SELECT paid FROM housing_areas WHERE id = $1`, id).Scan(&paid); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("housingarea: mark paid fetch: %w", err)
	}
	if paid {
		return ErrAlreadyPaid
	}
	return ErrNotFound
}

func scanArea(row pgx.Row) (HousingArea, error) {
	var rec HousingArea
	err := row.Scan(&rec.ID, &rec.OwnerID, &rec.Name, &rec.Address, &rec.Paid, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}
