package dispute

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"rentflow/contract"
	"rentflow/ledger"
)

// Store defines the repository surface the service depends on.
type Store interface {
	Create(ctx context.Context, params CreateParams) (Record, error)
	Resolve(ctx context.Context, params ResolveParams) (Record, error)
	GetByID(ctx context.Context, id string) (Record, error)
	ListByContract(ctx context.Context, contractID string) ([]Record, error)
}

// ContractGetter resolves the disputed contract.
type ContractGetter interface {
	GetByID(ctx context.Context, id string) (contract.Contract, error)
}

// LedgerStore resolves the deposit transaction backing a dispute.
type LedgerStore interface {
	DepositForContract(ctx context.Context, contractID string) (ledger.Transaction, error)
	GetByID(ctx context.Context, id string) (ledger.Transaction, error)
}

// Settler drives a refund to a terminal outcome. Settlement failures are
// recorded and logged, never returned to the resolution path.
type Settler interface {
	Refund(ctx context.Context, txn ledger.Transaction) (ledger.RefundStatus, error)
}

type Service struct {
	repo      Store
	contracts ContractGetter
	ledger    LedgerStore
	settler   Settler
	logger    *zap.Logger
}

func NewService(repo Store, contracts ContractGetter, ledgerStore LedgerStore, settler Settler, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		contracts: contracts,
		ledger:    ledgerStore,
		settler:   settler,
		logger:    logger,
	}
}

// File opens a dispute against an active contract's deposit.
func (s *Service) File(ctx context.Context, contractID, disputerID, reason, evidence string) (Record, error) {
	if reason == "" {
		return Record{}, ErrInvalidInput
	}

	c, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		if errors.Is(err, contract.ErrNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	if !c.IsParty(disputerID) {
		return Record{}, ErrForbidden
	}
	if c.Status != contract.StatusActive {
		return Record{}, ErrConflict
	}

	deposit, err := s.ledger.DepositForContract(ctx, contractID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			// No deposit on record means nothing to contest.
			return Record{}, ErrConflict
		}
		return Record{}, err
	}

	return s.repo.Create(ctx, CreateParams{
		ContractID:    contractID,
		DisputerID:    disputerID,
		TransactionID: deposit.ID,
		Reason:        reason,
		Evidence:      evidence,
	})
}

// Resolve records the admin's decision, then settles. The decide step commits
// before any settlement is attempted; a refund failure is a recorded outcome,
// not a rollback.
func (s *Service) Resolve(ctx context.Context, disputeID, adminID string, decision Decision, reason string) (Record, error) {
	if decision != DecisionDisputerWins && decision != DecisionRejected {
		return Record{}, ErrInvalidInput
	}

	cur, err := s.repo.GetByID(ctx, disputeID)
	if err != nil {
		return Record{}, err
	}
	c, err := s.contracts.GetByID(ctx, cur.ContractID)
	if err != nil {
		return Record{}, err
	}

	rec, err := s.repo.Resolve(ctx, ResolveParams{
		DisputeID: disputeID,
		AdminID:   adminID,
		Decision:  decision,
		Reason:    reason,
	})
	if err != nil {
		return Record{}, err
	}

	s.logger.Info("dispute resolved",
		zap.String("dispute_id", rec.ID),
		zap.String("contract_id", rec.ContractID),
		zap.String("decision", string(decision)),
		zap.String("resolved_by", adminID))

	// Settlement: only a winning tenant gets the deposit back. A winning
	// owner keeps it. The decision is already committed, so settlement runs
	// detached from the request context: a client disconnect must not cut
	// the refund poll short.
	if decision == DecisionDisputerWins && rec.DisputerID == c.TenantID {
		s.settle(context.WithoutCancel(ctx), rec)
	}

	return rec, nil
}

func (s *Service) settle(ctx context.Context, rec Record) {
	txn, err := s.ledger.GetByID(ctx, rec.TransactionID)
	if err != nil {
		s.logger.Error("settlement skipped: deposit transaction lookup failed",
			zap.String("dispute_id", rec.ID),
			zap.String("transaction_id", rec.TransactionID),
			zap.Error(err))
		return
	}

	status, err := s.settler.Refund(ctx, txn)
	if err != nil {
		s.logger.Error("settlement failed",
			zap.String("dispute_id", rec.ID),
			zap.String("transaction_id", txn.ID),
			zap.String("app_trans_id", txn.AppTransID),
			zap.Error(err))
		return
	}
	s.logger.Info("settlement finished",
		zap.String("dispute_id", rec.ID),
		zap.String("transaction_id", txn.ID),
		zap.String("refund_status", string(status)))
}

// Get fetches a dispute.
func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	return s.repo.GetByID(ctx, id)
}

// ListByContract lists the dispute history of a contract.
func (s *Service) ListByContract(ctx context.Context, contractID string) ([]Record, error) {
	return s.repo.ListByContract(ctx, contractID)
}
