package callback

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"rentflow/contract"
	"rentflow/housingarea"
	"rentflow/ledger"
	"rentflow/room"
)

type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { return f, nil }
func (f *fakeTx) Commit(ctx context.Context) error          { f.committed = true; return nil }
func (f *fakeTx) Rollback(ctx context.Context) error        { f.rolledBack = true; return nil }
func (f *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (f *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (f *fakeTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (f *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (f *fakeTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (f *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (f *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (f *fakeTx) Conn() *pgx.Conn                                               { return nil }

type fakePool struct {
	tx       *fakeTx
	beginErr error
	begun    int
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	f.begun++
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeVerifier struct{ ok bool }

func (f fakeVerifier) VerifyCallback(data, mac string) bool { return f.ok }

type fakeLedger struct {
	insertErr error
	inserted  []ledger.InsertParams
}

func (f *fakeLedger) InsertTx(_ context.Context, _ pgx.Tx, params ledger.InsertParams) (ledger.Transaction, error) {
	if f.insertErr != nil {
		return ledger.Transaction{}, f.insertErr
	}
	f.inserted = append(f.inserted, params)
	return ledger.Transaction{ID: "txn-1", AppTransID: params.AppTransID}, nil
}

type fakeContracts struct {
	contract    contract.Contract
	getErr      error
	activateErr error
	activated   []string
}

func (f *fakeContracts) GetByID(_ context.Context, id string) (contract.Contract, error) {
	if f.getErr != nil {
		return contract.Contract{}, f.getErr
	}
	return f.contract, nil
}

func (f *fakeContracts) ActivateTx(_ context.Context, _ pgx.Tx, contractID string, _ time.Time) (contract.Contract, error) {
	if f.activateErr != nil {
		return contract.Contract{}, f.activateErr
	}
	f.activated = append(f.activated, contractID)
	return f.contract, nil
}

type fakeRooms struct {
	room     room.Room
	getErr   error
	boostErr error
	boosted  []string
}

func (f *fakeRooms) GetByID(_ context.Context, id string) (room.Room, error) {
	if f.getErr != nil {
		return room.Room{}, f.getErr
	}
	return f.room, nil
}

func (f *fakeRooms) BoostTx(_ context.Context, _ pgx.Tx, id string) error {
	if f.boostErr != nil {
		return f.boostErr
	}
	f.boosted = append(f.boosted, id)
	return nil
}

type fakeAreas struct {
	markErr error
	marked  []string
}

func (f *fakeAreas) MarkPaidTx(_ context.Context, _ pgx.Tx, id string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.marked = append(f.marked, id)
	return nil
}

type fixture struct {
	pool      *fakePool
	ledger    *fakeLedger
	contracts *fakeContracts
	rooms     *fakeRooms
	areas     *fakeAreas
	d         *Dispatcher
}

func newFixture(macOK bool) *fixture {
	f := &fixture{
		pool:   &fakePool{},
		ledger: &fakeLedger{},
		contracts: &fakeContracts{contract: contract.Contract{
			ID:       "c1",
			RoomID:   "r1",
			TenantID: "tenant-1",
			Status:   contract.StatusPending,
		}},
		rooms: &fakeRooms{room: room.Room{ID: "r1", Price: 500000, Status: room.StatusAvailable}},
		areas: &fakeAreas{},
	}
	f.d = NewDispatcher(f.pool, fakeVerifier{ok: macOK}, f.ledger, f.contracts, f.rooms, f.areas, nil)
	return f
}

func callbackRequest(t *testing.T, meta Metadata, amount int64) Request {
	t.Helper()
	embed, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("marshal embed: %v", err)
	}
	data, err := json.Marshal(Payload{
		AppID:      553,
		AppTransID: "240101_abc",
		AppUser:    "tenant-1",
		Amount:     amount,
		EmbedData:  string(embed),
		ZPTransID:  987654,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return Request{Data: string(data), Mac: "whatever"}
}

func TestHandle_RejectsBadMac(t *testing.T) {
	f := newFixture(false)
	ack := f.d.Handle(context.Background(), Request{Data: "{}", Mac: "bad"})
	if ack.ReturnCode != AckCodeFailure {
		t.Fatalf("expected negative ack, got %+v", ack)
	}
	if f.pool.begun != 0 {
		t.Fatal("no transaction may be opened for an unauthenticated callback")
	}
}

func TestHandle_RejectsMalformedPayload(t *testing.T) {
	f := newFixture(true)
	ack := f.d.Handle(context.Background(), Request{Data: "not json", Mac: "ok"})
	if ack.ReturnCode != AckCodeFailure {
		t.Fatalf("expected negative ack, got %+v", ack)
	}
}

func TestHandle_RejectsUnknownType(t *testing.T) {
	f := newFixture(true)
	ack := f.d.Handle(context.Background(), callbackRequest(t, Metadata{Type: "mystery"}, 100))
	if ack.ReturnCode != AckCodeFailure {
		t.Fatalf("expected negative ack, got %+v", ack)
	}
	if f.pool.begun != 0 {
		t.Fatal("no transaction may be opened for an unknown payment type")
	}
}

func TestHandle_DepositActivatesContract(t *testing.T) {
	f := newFixture(true)
	ack := f.d.Handle(context.Background(), callbackRequest(t, Metadata{Type: TypeDeposit, ContractID: "c1"}, 500000))
	if ack.ReturnCode != AckCodeSuccess {
		t.Fatalf("expected positive ack, got %+v", ack)
	}
	if len(f.ledger.inserted) != 1 {
		t.Fatalf("expected 1 ledger insert, got %d", len(f.ledger.inserted))
	}
	if f.ledger.inserted[0].Type != ledger.TypeDeposit {
		t.Fatalf("unexpected ledger type %s", f.ledger.inserted[0].Type)
	}
	if len(f.contracts.activated) != 1 || f.contracts.activated[0] != "c1" {
		t.Fatalf("expected activation of c1, got %v", f.contracts.activated)
	}
	if !f.pool.tx.committed {
		t.Fatal("effect transaction was not committed")
	}
}

func TestHandle_DepositAmountMismatch(t *testing.T) {
	f := newFixture(true)
	ack := f.d.Handle(context.Background(), callbackRequest(t, Metadata{Type: TypeDeposit, ContractID: "c1"}, 1))
	if ack.ReturnCode != AckCodeFailure {
		t.Fatalf("expected negative ack on amount mismatch, got %+v", ack)
	}
	if f.pool.begun != 0 {
		t.Fatal("mismatched amount must not open a transaction")
	}
}

func TestHandle_DepositDuplicateAcksPositively(t *testing.T) {
	f := newFixture(true)
	f.ledger.insertErr = ledger.ErrDuplicateTransaction

	ack := f.d.Handle(context.Background(), callbackRequest(t, Metadata{Type: TypeDeposit, ContractID: "c1"}, 500000))
	if ack.ReturnCode != AckCodeSuccess {
		t.Fatalf("replayed callback must ack positively, got %+v", ack)
	}
	if len(f.contracts.activated) != 0 {
		t.Fatal("replayed callback must not re-activate the contract")
	}
	if f.pool.tx.committed {
		t.Fatal("duplicate detection must roll the transaction back")
	}
	if !f.pool.tx.rolledBack {
		t.Fatal("expected rollback")
	}
}

func TestHandle_DepositContractNotFound(t *testing.T) {
	f := newFixture(true)
	f.contracts.getErr = contract.ErrNotFound

	ack := f.d.Handle(context.Background(), callbackRequest(t, Metadata{Type: TypeDeposit, ContractID: "nope"}, 500000))
	if ack.ReturnCode != AckCodeFailure {
		t.Fatalf("expected negative ack, got %+v", ack)
	}
}

func TestHandle_DepositActivationConflictRollsBack(t *testing.T) {
	f := newFixture(true)
	f.contracts.activateErr = contract.ErrRoomUnavailable

	ack := f.d.Handle(context.Background(), callbackRequest(t, Metadata{Type: TypeDeposit, ContractID: "c1"}, 500000))
	if ack.ReturnCode != AckCodeFailure {
		t.Fatalf("expected negative ack, got %+v", ack)
	}
	if f.pool.tx.committed {
		t.Fatal("failed activation must not commit the ledger insert")
	}
}

func TestHandle_ServiceMarksAreaPaid(t *testing.T) {
	f := newFixture(true)
	ack := f.d.Handle(context.Background(), callbackRequest(t, Metadata{Type: TypeService, HousingAreaID: "ha1"}, 100000))
	if ack.ReturnCode != AckCodeSuccess {
		t.Fatalf("expected positive ack, got %+v", ack)
	}
	if len(f.areas.marked) != 1 || f.areas.marked[0] != "ha1" {
		t.Fatalf("expected area ha1 marked paid, got %v", f.areas.marked)
	}
	if f.ledger.inserted[0].Type != ledger.TypeService {
		t.Fatalf("unexpected ledger type %s", f.ledger.inserted[0].Type)
	}
}

func TestHandle_ServiceAlreadyPaidAcksNegatively(t *testing.T) {
	f := newFixture(true)
	f.areas.markErr = housingarea.ErrAlreadyPaid

	ack := f.d.Handle(context.Background(), callbackRequest(t, Metadata{Type: TypeService, HousingAreaID: "ha1"}, 100000))
	if ack.ReturnCode != AckCodeFailure {
		t.Fatalf("expected negative ack, got %+v", ack)
	}
	if f.pool.tx.committed {
		t.Fatal("already-paid must roll the ledger insert back")
	}
}

func TestHandle_BoostingBoostsRoom(t *testing.T) {
	f := newFixture(true)
	ack := f.d.Handle(context.Background(), callbackRequest(t, Metadata{Type: TypeBoostingAds, RoomID: "r1"}, 50000))
	if ack.ReturnCode != AckCodeSuccess {
		t.Fatalf("expected positive ack, got %+v", ack)
	}
	if len(f.rooms.boosted) != 1 || f.rooms.boosted[0] != "r1" {
		t.Fatalf("expected boost of r1, got %v", f.rooms.boosted)
	}
}

func TestHandle_BoostingAlreadyBoosted(t *testing.T) {
	f := newFixture(true)
	f.rooms.boostErr = room.ErrAlreadyBoosted

	ack := f.d.Handle(context.Background(), callbackRequest(t, Metadata{Type: TypeBoostingAds, RoomID: "r1"}, 50000))
	if ack.ReturnCode != AckCodeFailure {
		t.Fatalf("expected negative ack, got %+v", ack)
	}
}

func TestHandle_MissingRoutingID(t *testing.T) {
	f := newFixture(true)
	for _, meta := range []Metadata{
		{Type: TypeDeposit},
		{Type: TypeService},
		{Type: TypeBoostingAds},
	} {
		ack := f.d.Handle(context.Background(), callbackRequest(t, meta, 100))
		if ack.ReturnCode != AckCodeFailure {
			t.Fatalf("type %s without routing id must ack negatively, got %+v", meta.Type, ack)
		}
	}
	if f.pool.begun != 0 {
		t.Fatal("no transaction may be opened without a routing id")
	}
}

func TestHandle_BeginFailure(t *testing.T) {
	f := newFixture(true)
	f.pool.beginErr = errors.New("pool exhausted")

	ack := f.d.Handle(context.Background(), callbackRequest(t, Metadata{Type: TypeService, HousingAreaID: "ha1"}, 100000))
	if ack.ReturnCode != AckCodeFailure {
		t.Fatalf("expected negative ack, got %+v", ack)
	}
}
