// Package refund drives a deposit refund to a terminal outcome against a
// gateway that may answer "in progress" and needs to be polled. A refund that
// ends failed is a recorded, reportable state, not a program error.
package refund

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"rentflow/gateway"
	"rentflow/ledger"
	"rentflow/metrics"
)

// ErrInvalidInput signals the transaction lacks a gateway trans id or amount.
var ErrInvalidInput = errors.New("refund: invalid input")

// GatewayClient is the slice of the payment gateway client used here.
type GatewayClient interface {
	CreateRefund(ctx context.Context, params gateway.RefundParams) (gateway.RefundResponse, error)
	QueryRefund(ctx context.Context, mRefundID string) (gateway.RefundResponse, error)
}

// Recorder attaches the terminal refund outcome to the ledger.
type Recorder interface {
	AttachRefund(ctx context.Context, rec ledger.RefundRecord) error
}

type Orchestrator struct {
	gw       GatewayClient
	recorder Recorder
	logger   *zap.Logger

	appID       int
	maxAttempts int
	pollDelay   time.Duration

	newRefundID func() string
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(gw GatewayClient, recorder Recorder, appID, maxAttempts int, pollDelay time.Duration, logger *zap.Logger) *Orchestrator {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if pollDelay <= 0 {
		pollDelay = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		gw:          gw,
		recorder:    recorder,
		logger:      logger,
		appID:       appID,
		maxAttempts: maxAttempts,
		pollDelay:   pollDelay,
		newRefundID: func() string { return gateway.NewRefundID(time.Now(), appID) },
		sleep:       sleepCtx,
	}
}

// WithRefundIDGenerator overrides refund id generation, mainly for tests.
func (o *Orchestrator) WithRefundIDGenerator(gen func() string) *Orchestrator {
	o.newRefundID = gen
	return o
}

// WithSleeper overrides the inter-poll delay, mainly for tests.
func (o *Orchestrator) WithSleeper(sleep func(ctx context.Context, d time.Duration) error) *Orchestrator {
	o.sleep = sleep
	return o
}

// Refund reverses the transaction's payment: a refund-create call, then a
// bounded poll loop while the gateway reports in-progress. The terminal
// outcome is recorded on the ledger and returned; only input validation and
// ledger failures surface as errors.
func (o *Orchestrator) Refund(ctx context.Context, txn ledger.Transaction) (ledger.RefundStatus, error) {
	if txn.ZPTransID == 0 {
		return "", fmt.Errorf("%w: missing gateway trans id", ErrInvalidInput)
	}
	if txn.Amount <= 0 {
		return "", fmt.Errorf("%w: missing amount", ErrInvalidInput)
	}

	mRefundID := o.newRefundID()
	log := o.logger.With(
		zap.String("m_refund_id", mRefundID),
		zap.String("transaction_id", txn.ID),
		zap.String("app_trans_id", txn.AppTransID),
		zap.Int64("zp_trans_id", txn.ZPTransID),
		zap.Int64("amount", txn.Amount))

	status := o.execute(ctx, log, mRefundID, txn)
	metrics.RefundsTotal.WithLabelValues(string(status)).Inc()

	if err := o.recorder.AttachRefund(ctx, ledger.RefundRecord{
		TransactionID: txn.ID,
		MRefundID:     mRefundID,
		Amount:        txn.Amount,
		Status:        status,
	}); err != nil {
		if errors.Is(err, ledger.ErrRefundExists) {
			log.Warn("refund outcome not recorded: transaction already refunded")
			return status, nil
		}
		return status, err
	}

	log.Info("refund finished", zap.String("refund_status", string(status)))
	return status, nil
}

func (o *Orchestrator) execute(ctx context.Context, log *zap.Logger, mRefundID string, txn ledger.Transaction) ledger.RefundStatus {
	resp, err := o.gw.CreateRefund(ctx, gateway.RefundParams{
		MRefundID:   mRefundID,
		ZPTransID:   txn.ZPTransID,
		Amount:      txn.Amount,
		Description: fmt.Sprintf("Refund for %s", txn.AppTransID),
	})
	if err != nil {
		log.Error("refund create failed", zap.Error(err))
		return ledger.RefundFailed
	}

	switch resp.ReturnCode {
	case gateway.ReturnCodeSuccess:
		return ledger.RefundSuccess
	case gateway.ReturnCodeProcessing:
		return o.poll(ctx, log, mRefundID)
	default:
		log.Warn("refund rejected by gateway",
			zap.Int("return_code", resp.ReturnCode),
			zap.String("return_message", resp.ReturnMessage))
		return ledger.RefundFailed
	}
}

// poll queries the refund up to maxAttempts times with a fixed delay. Only a
// success return code ends the loop early; exhaustion records a failure.
func (o *Orchestrator) poll(ctx context.Context, log *zap.Logger, mRefundID string) ledger.RefundStatus {
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		if err := o.sleep(ctx, o.pollDelay); err != nil {
			log.Warn("refund poll aborted", zap.Int("attempt", attempt), zap.Error(err))
			return ledger.RefundFailed
		}

		resp, err := o.gw.QueryRefund(ctx, mRefundID)
		if err != nil {
			log.Warn("refund query failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		log.Info("refund poll", zap.Int("attempt", attempt), zap.Int("return_code", resp.ReturnCode))
		if resp.ReturnCode == gateway.ReturnCodeSuccess {
			return ledger.RefundSuccess
		}
	}
	return ledger.RefundFailed
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
