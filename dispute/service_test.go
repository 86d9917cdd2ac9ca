package dispute

import (
	"context"
	"errors"
	"testing"

	"rentflow/contract"
	"rentflow/ledger"
)

type fakeStore struct {
	created    []CreateParams
	createErr  error
	record     Record
	getErr     error
	resolved   []ResolveParams
	resolveErr error
}

func (f *fakeStore) Create(_ context.Context, params CreateParams) (Record, error) {
	if f.createErr != nil {
		return Record{}, f.createErr
	}
	f.created = append(f.created, params)
	return Record{ID: "d1", ContractID: params.ContractID, DisputerID: params.DisputerID,
		TransactionID: params.TransactionID, Reason: params.Reason, Status: StatusPending}, nil
}

func (f *fakeStore) Resolve(_ context.Context, params ResolveParams) (Record, error) {
	if f.resolveErr != nil {
		return Record{}, f.resolveErr
	}
	f.resolved = append(f.resolved, params)
	rec := f.record
	rec.Status = StatusResolved
	return rec, nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (Record, error) {
	if f.getErr != nil {
		return Record{}, f.getErr
	}
	return f.record, nil
}

func (f *fakeStore) ListByContract(_ context.Context, contractID string) ([]Record, error) {
	return []Record{f.record}, nil
}

type fakeContracts struct {
	contract contract.Contract
	err      error
}

func (f *fakeContracts) GetByID(_ context.Context, id string) (contract.Contract, error) {
	if f.err != nil {
		return contract.Contract{}, f.err
	}
	return f.contract, nil
}

type fakeLedger struct {
	deposit    ledger.Transaction
	depositErr error
	txn        ledger.Transaction
	txnErr     error
}

func (f *fakeLedger) DepositForContract(_ context.Context, contractID string) (ledger.Transaction, error) {
	if f.depositErr != nil {
		return ledger.Transaction{}, f.depositErr
	}
	return f.deposit, nil
}

func (f *fakeLedger) GetByID(_ context.Context, id string) (ledger.Transaction, error) {
	if f.txnErr != nil {
		return ledger.Transaction{}, f.txnErr
	}
	return f.txn, nil
}

type fakeSettler struct {
	status   ledger.RefundStatus
	err      error
	refunded []ledger.Transaction
	ctxErr   error
}

func (f *fakeSettler) Refund(ctx context.Context, txn ledger.Transaction) (ledger.RefundStatus, error) {
	f.ctxErr = ctx.Err()
	if f.err != nil {
		return "", f.err
	}
	f.refunded = append(f.refunded, txn)
	return f.status, nil
}

func activeContract() contract.Contract {
	return contract.Contract{ID: "c1", RoomID: "r1", TenantID: "t1", OwnerID: "o1", Status: contract.StatusActive}
}

func TestFile_Success(t *testing.T) {
	store := &fakeStore{}
	ledgerStore := &fakeLedger{deposit: ledger.Transaction{ID: "txn-1", ZPTransID: 42, Amount: 500000}}
	svc := NewService(store, &fakeContracts{contract: activeContract()}, ledgerStore, &fakeSettler{}, nil)

	rec, err := svc.File(context.Background(), "c1", "t1", "deposit withheld", "photos")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.TransactionID != "txn-1" {
		t.Fatalf("dispute must reference the deposit transaction, got %q", rec.TransactionID)
	}
	if len(store.created) != 1 || store.created[0].Evidence != "photos" {
		t.Fatalf("unexpected create params %+v", store.created)
	}
}

func TestFile_EmptyReason(t *testing.T) {
	svc := NewService(&fakeStore{}, &fakeContracts{contract: activeContract()}, &fakeLedger{}, &fakeSettler{}, nil)

	if _, err := svc.File(context.Background(), "c1", "t1", "", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestFile_NonPartyForbidden(t *testing.T) {
	svc := NewService(&fakeStore{}, &fakeContracts{contract: activeContract()}, &fakeLedger{}, &fakeSettler{}, nil)

	if _, err := svc.File(context.Background(), "c1", "stranger", "reason", ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestFile_InactiveContract(t *testing.T) {
	c := activeContract()
	c.Status = contract.StatusPending
	svc := NewService(&fakeStore{}, &fakeContracts{contract: c}, &fakeLedger{}, &fakeSettler{}, nil)

	if _, err := svc.File(context.Background(), "c1", "t1", "reason", ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestFile_NoDepositOnRecord(t *testing.T) {
	ledgerStore := &fakeLedger{depositErr: ledger.ErrNotFound}
	svc := NewService(&fakeStore{}, &fakeContracts{contract: activeContract()}, ledgerStore, &fakeSettler{}, nil)

	if _, err := svc.File(context.Background(), "c1", "t1", "reason", ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict when no deposit exists, got %v", err)
	}
}

func TestFile_ContractNotFound(t *testing.T) {
	svc := NewService(&fakeStore{}, &fakeContracts{err: contract.ErrNotFound}, &fakeLedger{}, &fakeSettler{}, nil)

	if _, err := svc.File(context.Background(), "missing", "t1", "reason", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolve_InvalidDecision(t *testing.T) {
	svc := NewService(&fakeStore{}, &fakeContracts{contract: activeContract()}, &fakeLedger{}, &fakeSettler{}, nil)

	if _, err := svc.Resolve(context.Background(), "d1", "admin-1", Decision("maybe"), "because"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestResolve_TenantWinTriggersRefund(t *testing.T) {
	store := &fakeStore{record: Record{ID: "d1", ContractID: "c1", DisputerID: "t1", TransactionID: "txn-1", Status: StatusPending}}
	ledgerStore := &fakeLedger{txn: ledger.Transaction{ID: "txn-1", ZPTransID: 42, Amount: 500000}}
	settler := &fakeSettler{status: ledger.RefundSuccess}
	svc := NewService(store, &fakeContracts{contract: activeContract()}, ledgerStore, settler, nil)

	rec, err := svc.Resolve(context.Background(), "d1", "admin-1", DecisionDisputerWins, "tenant evidence holds")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != StatusResolved {
		t.Fatalf("expected resolved, got %s", rec.Status)
	}
	if len(settler.refunded) != 1 || settler.refunded[0].ID != "txn-1" {
		t.Fatalf("expected refund of txn-1, got %+v", settler.refunded)
	}
}

func TestResolve_OwnerWinKeepsDeposit(t *testing.T) {
	// The owner filed and won: the deposit stays where it is.
	store := &fakeStore{record: Record{ID: "d1", ContractID: "c1", DisputerID: "o1", TransactionID: "txn-1", Status: StatusPending}}
	settler := &fakeSettler{status: ledger.RefundSuccess}
	svc := NewService(store, &fakeContracts{contract: activeContract()}, &fakeLedger{}, settler, nil)

	if _, err := svc.Resolve(context.Background(), "d1", "admin-1", DecisionDisputerWins, "owner evidence holds"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(settler.refunded) != 0 {
		t.Fatalf("owner win must not refund, got %+v", settler.refunded)
	}
}

func TestResolve_RejectionSkipsRefund(t *testing.T) {
	store := &fakeStore{record: Record{ID: "d1", ContractID: "c1", DisputerID: "t1", TransactionID: "txn-1", Status: StatusPending}}
	settler := &fakeSettler{status: ledger.RefundSuccess}
	svc := NewService(store, &fakeContracts{contract: activeContract()}, &fakeLedger{}, settler, nil)

	if _, err := svc.Resolve(context.Background(), "d1", "admin-1", DecisionRejected, "insufficient evidence"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(settler.refunded) != 0 {
		t.Fatalf("rejection must not refund, got %+v", settler.refunded)
	}
}

func TestResolve_SettlementFailureDoesNotSurface(t *testing.T) {
	store := &fakeStore{record: Record{ID: "d1", ContractID: "c1", DisputerID: "t1", TransactionID: "txn-1", Status: StatusPending}}
	ledgerStore := &fakeLedger{txn: ledger.Transaction{ID: "txn-1", ZPTransID: 42, Amount: 500000}}
	settler := &fakeSettler{err: errors.New("gateway down")}
	svc := NewService(store, &fakeContracts{contract: activeContract()}, ledgerStore, settler, nil)

	rec, err := svc.Resolve(context.Background(), "d1", "admin-1", DecisionDisputerWins, "tenant evidence holds")
	if err != nil {
		t.Fatalf("settlement failure must not surface from Resolve: %v", err)
	}
	if rec.Status != StatusResolved {
		t.Fatalf("decision must stand despite settlement failure, got %s", rec.Status)
	}
}

func TestResolve_SettlementOutlivesCallerContext(t *testing.T) {
	// The decision is committed before settlement starts; a caller hanging
	// up must not cancel the refund.
	store := &fakeStore{record: Record{ID: "d1", ContractID: "c1", DisputerID: "t1", TransactionID: "txn-1", Status: StatusPending}}
	ledgerStore := &fakeLedger{txn: ledger.Transaction{ID: "txn-1", ZPTransID: 42, Amount: 500000}}
	settler := &fakeSettler{status: ledger.RefundSuccess}
	svc := NewService(store, &fakeContracts{contract: activeContract()}, ledgerStore, settler, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Resolve(ctx, "d1", "admin-1", DecisionDisputerWins, "tenant evidence holds"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(settler.refunded) != 1 {
		t.Fatalf("expected one refund attempt, got %d", len(settler.refunded))
	}
	if settler.ctxErr != nil {
		t.Fatalf("settlement context must not carry the caller's cancellation, got %v", settler.ctxErr)
	}
}

func TestResolve_AlreadyResolved(t *testing.T) {
	store := &fakeStore{
		record:     Record{ID: "d1", ContractID: "c1", DisputerID: "t1", Status: StatusResolved},
		resolveErr: ErrConflict,
	}
	svc := NewService(store, &fakeContracts{contract: activeContract()}, &fakeLedger{}, &fakeSettler{}, nil)

	if _, err := svc.Resolve(context.Background(), "d1", "admin-1", DecisionRejected, "again"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}
