// Package callback is the single entry point for inbound payment gateway
// notifications. Notifications are untrusted, possibly duplicated, possibly
// out of order: every effect runs in one transaction whose first write is the
// ledger insert keyed by the gateway transaction id, so a replay is detected
// before any other mutation and acknowledged positively as a no-op.
package callback

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"rentflow/contract"
	"rentflow/housingarea"
	"rentflow/ledger"
	"rentflow/metrics"
	"rentflow/room"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// MacVerifier authenticates the webhook payload.
type MacVerifier interface {
	VerifyCallback(data, mac string) bool
}

// LedgerStore appends transactions inside the dispatcher's unit of work.
type LedgerStore interface {
	InsertTx(ctx context.Context, tx pgx.Tx, params ledger.InsertParams) (ledger.Transaction, error)
}

// ContractStore is the slice of the contract state machine used here.
type ContractStore interface {
	GetByID(ctx context.Context, id string) (contract.Contract, error)
	ActivateTx(ctx context.Context, tx pgx.Tx, contractID string, now time.Time) (contract.Contract, error)
}

// RoomStore resolves deposit amounts and applies boosting.
type RoomStore interface {
	GetByID(ctx context.Context, id string) (room.Room, error)
	BoostTx(ctx context.Context, tx pgx.Tx, id string) error
}

// AreaStore applies the service-payment effect.
type AreaStore interface {
	MarkPaidTx(ctx context.Context, tx pgx.Tx, id string) error
}

type Dispatcher struct {
	pool      TxBeginner
	verifier  MacVerifier
	ledger    LedgerStore
	contracts ContractStore
	rooms     RoomStore
	areas     AreaStore
	logger    *zap.Logger
	now       func() time.Time
}

func NewDispatcher(pool TxBeginner, verifier MacVerifier, ledgerStore LedgerStore,
	contracts ContractStore, rooms RoomStore, areas AreaStore, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		pool:      pool,
		verifier:  verifier,
		ledger:    ledgerStore,
		contracts: contracts,
		rooms:     rooms,
		areas:     areas,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the time source, mainly for tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Handle processes one notification and always answers with a gateway
// acknowledgment; internal failures are logged and acknowledged negatively so
// the gateway's own retry policy applies.
func (d *Dispatcher) Handle(ctx context.Context, req Request) Ack {
	if !d.verifier.VerifyCallback(req.Data, req.Mac) {
		d.logger.Warn("callback rejected: mac mismatch")
		metrics.CallbacksTotal.WithLabelValues("unknown", "bad_mac").Inc()
		return ackErr("mac not equal")
	}

	var payload Payload
	if err := json.Unmarshal([]byte(req.Data), &payload); err != nil {
		d.logger.Warn("callback rejected: malformed payload", zap.Error(err))
		metrics.CallbacksTotal.WithLabelValues("unknown", "malformed").Inc()
		return ackErr("malformed payload")
	}

	var meta Metadata
	if payload.EmbedData == "" {
		metrics.CallbacksTotal.WithLabelValues("unknown", "malformed").Inc()
		return ackErr("missing embed data")
	}
	if err := json.Unmarshal([]byte(payload.EmbedData), &meta); err != nil {
		d.logger.Warn("callback rejected: malformed embed data",
			zap.String("app_trans_id", payload.AppTransID), zap.Error(err))
		metrics.CallbacksTotal.WithLabelValues("unknown", "malformed").Inc()
		return ackErr("malformed embed data")
	}

	log := d.logger.With(
		zap.String("type", meta.Type),
		zap.String("app_trans_id", payload.AppTransID),
		zap.Int64("zp_trans_id", payload.ZPTransID),
		zap.Int64("amount", payload.Amount))

	var ack Ack
	switch meta.Type {
	case TypeDeposit:
		ack = d.handleDeposit(ctx, log, payload, meta)
	case TypeService:
		ack = d.handleService(ctx, log, payload, meta)
	case TypeBoostingAds:
		ack = d.handleBoosting(ctx, log, payload, meta)
	default:
		log.Warn("callback rejected: unknown payment type")
		ack = ackErr("unknown payment type")
	}

	outcome := "ok"
	if ack.ReturnCode != AckCodeSuccess {
		outcome = "failed"
	} else if ack.ReturnMessage == duplicateMessage {
		outcome = "duplicate"
	}
	metrics.CallbacksTotal.WithLabelValues(typeLabel(meta.Type), outcome).Inc()
	log.Info("callback handled", zap.Int("return_code", ack.ReturnCode), zap.String("return_message", ack.ReturnMessage))
	return ack
}

const duplicateMessage = "transaction already recorded"

func (d *Dispatcher) handleDeposit(ctx context.Context, log *zap.Logger, payload Payload, meta Metadata) Ack {
	if meta.ContractID == "" {
		return ackErr("missing contract id")
	}

	rec, err := d.contracts.GetByID(ctx, meta.ContractID)
	if err != nil {
		if errors.Is(err, contract.ErrNotFound) {
			return ackErr("contract not found")
		}
		log.Error("deposit callback: contract lookup failed", zap.Error(err))
		return ackErr("failed to process")
	}

	rm, err := d.rooms.GetByID(ctx, rec.RoomID)
	if err != nil {
		log.Error("deposit callback: room lookup failed", zap.Error(err))
		return ackErr("failed to process")
	}
	if payload.Amount != rm.Price {
		log.Warn("deposit callback: amount mismatch", zap.Int64("expected", rm.Price))
		return ackErr("amount mismatch")
	}

	return d.inTx(ctx, log, func(tx pgx.Tx) (Ack, error) {
		if _, err := d.ledger.InsertTx(ctx, tx, insertParams(payload, ledger.TypeDeposit, &meta.ContractID, nil, nil)); err != nil {
			return Ack{}, err
		}
		if _, err := d.contracts.ActivateTx(ctx, tx, rec.ID, d.now()); err != nil {
			return Ack{}, err
		}
		return ackOK("success"), nil
	})
}

func (d *Dispatcher) handleService(ctx context.Context, log *zap.Logger, payload Payload, meta Metadata) Ack {
	if meta.HousingAreaID == "" {
		return ackErr("missing housing area id")
	}

	return d.inTx(ctx, log, func(tx pgx.Tx) (Ack, error) {
		if _, err := d.ledger.InsertTx(ctx, tx, insertParams(payload, ledger.TypeService, nil, &meta.HousingAreaID, nil)); err != nil {
			return Ack{}, err
		}
		if err := d.areas.MarkPaidTx(ctx, tx, meta.HousingAreaID); err != nil {
			return Ack{}, err
		}
		return ackOK("success"), nil
	})
}

func (d *Dispatcher) handleBoosting(ctx context.Context, log *zap.Logger, payload Payload, meta Metadata) Ack {
	if meta.RoomID == "" {
		return ackErr("missing room id")
	}

	return d.inTx(ctx, log, func(tx pgx.Tx) (Ack, error) {
		if _, err := d.ledger.InsertTx(ctx, tx, insertParams(payload, ledger.TypeBoostingAds, nil, nil, &meta.RoomID)); err != nil {
			return Ack{}, err
		}
		if err := d.rooms.BoostTx(ctx, tx, meta.RoomID); err != nil {
			return Ack{}, err
		}
		return ackOK("success"), nil
	})
}

// inTx runs an effect in one transaction. A duplicate ledger insert rolls the
// transaction back and is acknowledged positively; every other failure rolls
// back and is acknowledged negatively so the gateway retries.
func (d *Dispatcher) inTx(ctx context.Context, log *zap.Logger, effect func(tx pgx.Tx) (Ack, error)) Ack {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		log.Error("callback: begin tx failed", zap.Error(err))
		return ackErr("failed to process")
	}
	defer tx.Rollback(ctx)

	ack, err := effect(tx)
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateTransaction) {
			return ackOK(duplicateMessage)
		}
		log.Warn("callback effect rejected", zap.Error(err))
		return ackErr(effectMessage(err))
	}

	if err := tx.Commit(ctx); err != nil {
		log.Error("callback: commit failed", zap.Error(err))
		return ackErr("failed to process")
	}
	return ack
}

func effectMessage(err error) string {
	switch {
	case errors.Is(err, contract.ErrConflict):
		return "contract not confirmable"
	case errors.Is(err, contract.ErrRoomUnavailable):
		return "room not available"
	case errors.Is(err, housingarea.ErrAlreadyPaid):
		return "failed to process"
	case errors.Is(err, housingarea.ErrNotFound):
		return "housing area not found"
	case errors.Is(err, room.ErrAlreadyBoosted), errors.Is(err, room.ErrBadStatus):
		return "failed to process"
	case errors.Is(err, room.ErrNotFound):
		return "room not found"
	default:
		return "failed to process"
	}
}

func insertParams(payload Payload, t ledger.Type, contractID, areaID, roomID *string) ledger.InsertParams {
	return ledger.InsertParams{
		AppTransID:    payload.AppTransID,
		ZPTransID:     payload.ZPTransID,
		AppID:         payload.AppID,
		Type:          t,
		ContractID:    contractID,
		HousingAreaID: areaID,
		RoomID:        roomID,
		Amount:        payload.Amount,
		Channel:       payload.Channel,
		AppTime:       payload.AppTime,
		AppUser:       payload.AppUser,
	}
}

func typeLabel(t string) string {
	switch t {
	case TypeDeposit, TypeService, TypeBoostingAds:
		return t
	default:
		return "unknown"
	}
}
