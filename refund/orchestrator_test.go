package refund

import (
	"context"
	"errors"
	"testing"
	"time"

	"rentflow/gateway"
	"rentflow/ledger"
)

type fakeGateway struct {
	createResp gateway.RefundResponse
	createErr  error

	queryResps []gateway.RefundResponse
	queryErr   error
	queryCalls int
}

func (f *fakeGateway) CreateRefund(_ context.Context, _ gateway.RefundParams) (gateway.RefundResponse, error) {
	return f.createResp, f.createErr
}

func (f *fakeGateway) QueryRefund(_ context.Context, _ string) (gateway.RefundResponse, error) {
	if f.queryErr != nil {
		f.queryCalls++
		return gateway.RefundResponse{}, f.queryErr
	}
	idx := f.queryCalls
	f.queryCalls++
	if idx >= len(f.queryResps) {
		idx = len(f.queryResps) - 1
	}
	return f.queryResps[idx], nil
}

type fakeRecorder struct {
	recorded []ledger.RefundRecord
	err      error
}

func (f *fakeRecorder) AttachRefund(_ context.Context, rec ledger.RefundRecord) error {
	if f.err != nil {
		return f.err
	}
	f.recorded = append(f.recorded, rec)
	return nil
}

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func testTxn() ledger.Transaction {
	return ledger.Transaction{
		ID:         "txn-1",
		AppTransID: "240101_abc",
		ZPTransID:  987654,
		Amount:     500000,
	}
}

func newTestOrchestrator(gw *fakeGateway, rec *fakeRecorder) *Orchestrator {
	o := NewOrchestrator(gw, rec, 553, 5, time.Millisecond, nil)
	o.WithSleeper(noSleep)
	o.WithRefundIDGenerator(func() string { return "240101_553_test" })
	return o
}

func TestRefund_ImmediateSuccess(t *testing.T) {
	gw := &fakeGateway{createResp: gateway.RefundResponse{ReturnCode: gateway.ReturnCodeSuccess}}
	rec := &fakeRecorder{}

	status, err := newTestOrchestrator(gw, rec).Refund(context.Background(), testTxn())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != ledger.RefundSuccess {
		t.Fatalf("expected success, got %s", status)
	}
	if len(rec.recorded) != 1 {
		t.Fatalf("expected 1 recorded refund, got %d", len(rec.recorded))
	}
	if rec.recorded[0].MRefundID != "240101_553_test" {
		t.Fatalf("unexpected m_refund_id %q", rec.recorded[0].MRefundID)
	}
	if rec.recorded[0].Amount != 500000 {
		t.Fatalf("unexpected amount %d", rec.recorded[0].Amount)
	}
}

func TestRefund_ProcessingThenSuccess(t *testing.T) {
	gw := &fakeGateway{
		createResp: gateway.RefundResponse{ReturnCode: gateway.ReturnCodeProcessing},
		queryResps: []gateway.RefundResponse{
			{ReturnCode: gateway.ReturnCodeProcessing},
			{ReturnCode: gateway.ReturnCodeProcessing},
			{ReturnCode: gateway.ReturnCodeSuccess},
		},
	}
	rec := &fakeRecorder{}

	status, err := newTestOrchestrator(gw, rec).Refund(context.Background(), testTxn())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != ledger.RefundSuccess {
		t.Fatalf("expected success, got %s", status)
	}
	if gw.queryCalls != 3 {
		t.Fatalf("expected 3 poll queries, got %d", gw.queryCalls)
	}
}

func TestRefund_PollExhaustionFails(t *testing.T) {
	gw := &fakeGateway{
		createResp: gateway.RefundResponse{ReturnCode: gateway.ReturnCodeProcessing},
		queryResps: []gateway.RefundResponse{{ReturnCode: gateway.ReturnCodeProcessing}},
	}
	rec := &fakeRecorder{}

	status, err := newTestOrchestrator(gw, rec).Refund(context.Background(), testTxn())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != ledger.RefundFailed {
		t.Fatalf("expected failed after exhaustion, got %s", status)
	}
	if gw.queryCalls != 5 {
		t.Fatalf("expected 5 poll queries, got %d", gw.queryCalls)
	}
	if len(rec.recorded) != 1 || rec.recorded[0].Status != ledger.RefundFailed {
		t.Fatalf("expected recorded failure, got %+v", rec.recorded)
	}
}

func TestRefund_QueryErrorsDoNotAbortPolling(t *testing.T) {
	gw := &fakeGateway{
		createResp: gateway.RefundResponse{ReturnCode: gateway.ReturnCodeProcessing},
		queryErr:   errors.New("gateway unreachable"),
	}
	rec := &fakeRecorder{}

	status, err := newTestOrchestrator(gw, rec).Refund(context.Background(), testTxn())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != ledger.RefundFailed {
		t.Fatalf("expected failed, got %s", status)
	}
	if gw.queryCalls != 5 {
		t.Fatalf("expected 5 query attempts, got %d", gw.queryCalls)
	}
}

func TestRefund_CreateRejected(t *testing.T) {
	gw := &fakeGateway{createResp: gateway.RefundResponse{ReturnCode: -49, ReturnMessage: "exceeds balance"}}
	rec := &fakeRecorder{}

	status, err := newTestOrchestrator(gw, rec).Refund(context.Background(), testTxn())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != ledger.RefundFailed {
		t.Fatalf("expected failed, got %s", status)
	}
}

func TestRefund_CreateTransportError(t *testing.T) {
	gw := &fakeGateway{createErr: errors.New("connection reset")}
	rec := &fakeRecorder{}

	status, err := newTestOrchestrator(gw, rec).Refund(context.Background(), testTxn())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != ledger.RefundFailed {
		t.Fatalf("expected failed, got %s", status)
	}
}

func TestRefund_InvalidInput(t *testing.T) {
	gw := &fakeGateway{}
	rec := &fakeRecorder{}
	o := newTestOrchestrator(gw, rec)

	txn := testTxn()
	txn.ZPTransID = 0
	if _, err := o.Refund(context.Background(), txn); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing zp_trans_id, got %v", err)
	}

	txn = testTxn()
	txn.Amount = 0
	if _, err := o.Refund(context.Background(), txn); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing amount, got %v", err)
	}
	if len(rec.recorded) != 0 {
		t.Fatalf("invalid input must not record anything, got %+v", rec.recorded)
	}
}

func TestRefund_AlreadyRefundedIsNotAnError(t *testing.T) {
	gw := &fakeGateway{createResp: gateway.RefundResponse{ReturnCode: gateway.ReturnCodeSuccess}}
	rec := &fakeRecorder{err: ledger.ErrRefundExists}

	status, err := newTestOrchestrator(gw, rec).Refund(context.Background(), testTxn())
	if err != nil {
		t.Fatalf("expected nil error when refund already attached, got %v", err)
	}
	if status != ledger.RefundSuccess {
		t.Fatalf("expected success, got %s", status)
	}
}

func TestRefund_CanceledContextStopsPolling(t *testing.T) {
	gw := &fakeGateway{
		createResp: gateway.RefundResponse{ReturnCode: gateway.ReturnCodeProcessing},
		queryResps: []gateway.RefundResponse{{ReturnCode: gateway.ReturnCodeProcessing}},
	}
	rec := &fakeRecorder{}
	o := NewOrchestrator(gw, rec, 553, 5, time.Millisecond, nil)
	o.WithRefundIDGenerator(func() string { return "240101_553_test" })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	status, err := o.Refund(ctx, testTxn())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != ledger.RefundFailed {
		t.Fatalf("expected failed on canceled context, got %s", status)
	}
	if gw.queryCalls != 0 {
		t.Fatalf("expected no queries after cancellation, got %d", gw.queryCalls)
	}
}
