package contract

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"rentflow/room"
)

// Integration tests run against a migrated database named by DATABASE_URL and
// are skipped otherwise.

func integrationPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

type testWorld struct {
	tenantID   string
	tenant2ID  string
	landlordID string
	roomID     string
}

func seedWorld(t *testing.T, ctx context.Context, pool *pgxpool.Pool) testWorld {
	t.Helper()
	var w testWorld
	mustScan := func(dst *string, sql string, args ...any) {
		t.Helper()
		if err := pool.QueryRow(ctx, sql, args...).Scan(dst); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	suffix := rand.Int63()
	mustScan(&w.tenantID, `INSERT INTO users (email, full_name, role) VALUES ($1, 'Tenant One', 'tenant') RETURNING id`,
		fmt.Sprintf("tenant1.%d@example.com", suffix))
	mustScan(&w.tenant2ID, `INSERT INTO users (email, full_name, role) VALUES ($1, 'Tenant Two', 'tenant') RETURNING id`,
		fmt.Sprintf("tenant2.%d@example.com", suffix))
	mustScan(&w.landlordID, `INSERT INTO users (email, full_name, role) VALUES ($1, 'Landlord', 'landlord') RETURNING id`,
		fmt.Sprintf("landlord.%d@example.com", suffix))

	var areaID string
	mustScan(&areaID, `INSERT INTO housing_areas (owner_id, name, paid) VALUES ($1, 'Area', true) RETURNING id`, w.landlordID)
	mustScan(&w.roomID, `INSERT INTO rooms (housing_area_id, owner_id, name, price) VALUES ($1, $2, 'Room A', 500000) RETURNING id`,
		areaID, w.landlordID)
	return w
}

func TestIntegration_ContractLifecycle(t *testing.T) {
	pool := integrationPool(t)
	ctx := context.Background()
	w := seedWorld(t, ctx, pool)

	rooms := room.NewRepository(pool)
	repo := NewRepository(pool, rooms)
	end := time.Now().AddDate(0, 6, 0)

	rec, err := repo.Create(ctx, CreateParams{RoomID: w.roomID, TenantID: w.tenantID, EndDate: end})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !rec.TenantSignature || rec.OwnerSignature {
		t.Fatalf("expected tenant-only signature after create, got %+v", rec)
	}

	// a competitor opens a second pending contract on the same room
	competitor, err := repo.Create(ctx, CreateParams{RoomID: w.roomID, TenantID: w.tenant2ID, EndDate: end})
	if err != nil {
		t.Fatalf("create competitor: %v", err)
	}

	if _, err := repo.SignByOwner(ctx, rec.ID, w.tenantID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("tenant signing as owner: expected ErrForbidden, got %v", err)
	}
	rec, err = repo.SignByOwner(ctx, rec.ID, w.landlordID)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !rec.OwnerSignature {
		t.Fatal("owner signature not recorded")
	}
	if _, err := repo.SignByOwner(ctx, rec.ID, w.landlordID); !errors.Is(err, ErrConflict) {
		t.Fatalf("double sign: expected ErrConflict, got %v", err)
	}

	// deposit confirmation activates the contract and discards the competitor
	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	rec, err = repo.ActivateTx(ctx, tx, rec.ID, time.Now())
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if rec.Status != StatusActive {
		t.Fatalf("expected active, got %s", rec.Status)
	}

	if _, err := repo.GetByID(ctx, competitor.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("competitor should be discarded, got %v", err)
	}
	rm, err := rooms.GetByID(ctx, w.roomID)
	if err != nil {
		t.Fatalf("room get: %v", err)
	}
	if rm.Status != room.StatusOccupied {
		t.Fatalf("expected occupied room, got %s", rm.Status)
	}

	// a third pending contract on an occupied room is refused
	if _, err := repo.Create(ctx, CreateParams{RoomID: w.roomID, TenantID: w.tenant2ID, EndDate: end}); !errors.Is(err, ErrRoomUnavailable) {
		t.Fatalf("expected ErrRoomUnavailable, got %v", err)
	}

	// extension: request by tenant, confirm by owner applies it
	newEnd := end.AddDate(0, 3, 0)
	rec, err = repo.RequestExtension(ctx, rec.ID, w.tenantID, newEnd, time.Now())
	if err != nil {
		t.Fatalf("request extension: %v", err)
	}
	if rec.PendingUpdate == nil || !rec.PendingUpdate.TenantSignature || rec.PendingUpdate.OwnerSignature {
		t.Fatalf("expected tenant-signed pending update, got %+v", rec.PendingUpdate)
	}
	if _, err := repo.ConfirmExtension(ctx, rec.ID, w.tenantID); !errors.Is(err, ErrConflict) {
		t.Fatalf("requester confirming own extension: expected ErrConflict, got %v", err)
	}
	rec, err = repo.ConfirmExtension(ctx, rec.ID, w.landlordID)
	if err != nil {
		t.Fatalf("confirm extension: %v", err)
	}
	if rec.PendingUpdate != nil {
		t.Fatalf("pending update should clear after apply, got %+v", rec.PendingUpdate)
	}
	if d := rec.EndDate.Sub(newEnd); d < -time.Millisecond || d > time.Millisecond {
		t.Fatalf("end date not extended: got %s want %s", rec.EndDate, newEnd)
	}

	// termination releases the room
	tx, err = pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin terminate: %v", err)
	}
	if err := repo.TerminateTx(ctx, tx, rec.ID, nil); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit terminate: %v", err)
	}
	rm, _ = rooms.GetByID(ctx, w.roomID)
	if rm.Status != room.StatusAvailable {
		t.Fatalf("expected released room, got %s", rm.Status)
	}
}

func TestIntegration_ActivateRequiresSignature(t *testing.T) {
	pool := integrationPool(t)
	ctx := context.Background()
	w := seedWorld(t, ctx, pool)

	repo := NewRepository(pool, room.NewRepository(pool))
	rec, err := repo.Create(ctx, CreateParams{RoomID: w.roomID, TenantID: w.tenantID, EndDate: time.Now().AddDate(0, 1, 0)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// strip the tenant pre-signature to simulate an unsigned contract
	if _, err := pool.Exec(ctx, `UPDATE contracts SET tenant_signature = false WHERE id = $1`, rec.ID); err != nil {
		t.Fatalf("strip signature: %v", err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(ctx)
	if _, err := repo.ActivateTx(ctx, tx, rec.ID, time.Now()); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict activating unsigned contract, got %v", err)
	}
}

func TestIntegration_ExpireSkipsExtendedContract(t *testing.T) {
	pool := integrationPool(t)
	ctx := context.Background()
	w := seedWorld(t, ctx, pool)

	rooms := room.NewRepository(pool)
	repo := NewRepository(pool, rooms)

	end := time.Now().Add(time.Hour)
	rec, err := repo.Create(ctx, CreateParams{RoomID: w.roomID, TenantID: w.tenantID, EndDate: end})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	tx, _ := pool.Begin(ctx)
	if _, err := repo.ActivateTx(ctx, tx, rec.ID, time.Now()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// the sweep judged the contract due at this instant
	due := end.Add(time.Minute)

	// an extension lands between the due listing and the expire transaction
	if _, err := repo.RequestExtension(ctx, rec.ID, w.tenantID, end.AddDate(0, 6, 0), time.Now()); err != nil {
		t.Fatalf("request extension: %v", err)
	}
	if _, err := repo.ConfirmExtension(ctx, rec.ID, w.landlordID); err != nil {
		t.Fatalf("confirm extension: %v", err)
	}

	// the stale sweep must lose to the extension, not override it
	if err := repo.Expire(ctx, rec.ID, due); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict expiring an extended contract, got %v", err)
	}

	got, err := repo.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusActive {
		t.Fatalf("extended contract must stay active, got %s", got.Status)
	}
	rm, _ := rooms.GetByID(ctx, w.roomID)
	if rm.Status != room.StatusOccupied {
		t.Fatalf("room must stay occupied, got %s", rm.Status)
	}
}

func TestIntegration_ExpireDue(t *testing.T) {
	pool := integrationPool(t)
	ctx := context.Background()
	w := seedWorld(t, ctx, pool)

	rooms := room.NewRepository(pool)
	repo := NewRepository(pool, rooms)

	rec, err := repo.Create(ctx, CreateParams{RoomID: w.roomID, TenantID: w.tenantID, EndDate: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	tx, _ := pool.Begin(ctx)
	if _, err := repo.ActivateTx(ctx, tx, rec.ID, time.Now()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// nothing due yet
	expired, err := repo.ExpireDue(ctx, time.Now())
	if err != nil {
		t.Fatalf("expire due: %v", err)
	}
	for _, id := range expired {
		if id == rec.ID {
			t.Fatal("contract expired before its end date")
		}
	}

	// past the end date the sweep picks it up
	expired, err = repo.ExpireDue(ctx, time.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatalf("expire due: %v", err)
	}
	found := false
	for _, id := range expired {
		if id == rec.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("due contract not expired by sweep")
	}

	got, err := repo.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusExpired {
		t.Fatalf("expected expired, got %s", got.Status)
	}
	rm, _ := rooms.GetByID(ctx, w.roomID)
	if rm.Status != room.StatusAvailable {
		t.Fatalf("expected released room after expiry, got %s", rm.Status)
	}
}
