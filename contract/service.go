package contract

import (
	"context"
	"time"

	"go.uber.org/zap"

	"rentflow/gateway"
)

// Store defines the repository surface the service depends on.
type Store interface {
	Create(ctx context.Context, params CreateParams) (Contract, error)
	SignByOwner(ctx context.Context, contractID, callerID string) (Contract, error)
	RequestExtension(ctx context.Context, contractID, requesterID string, newEndDate, now time.Time) (Contract, error)
	ConfirmExtension(ctx context.Context, contractID, confirmerID string) (Contract, error)
	Expire(ctx context.Context, contractID string, now time.Time) error
	ExpireDue(ctx context.Context, now time.Time) ([]string, error)
	GetByID(ctx context.Context, id string) (Contract, error)
	ListByParty(ctx context.Context, userID string) ([]Contract, error)
}

// OrderCreator is the slice of the payment gateway client used here.
type OrderCreator interface {
	CreateOrder(ctx context.Context, params gateway.CreateOrderParams) (gateway.CreateOrderResponse, error)
}

// RoomPricer resolves the deposit amount for a room.
type RoomPricer interface {
	Price(ctx context.Context, roomID string) (int64, error)
}

type Service struct {
	repo   Store
	orders OrderCreator
	rooms  RoomPricer
	logger *zap.Logger

	now        func() time.Time
	newTransID func() string
}

func NewService(repo Store, orders OrderCreator, rooms RoomPricer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:       repo,
		orders:     orders,
		rooms:      rooms,
		logger:     logger,
		now:        time.Now,
		newTransID: func() string { return gateway.NewAppTransID(time.Now()) },
	}
}

// WithClock overrides the time source, mainly for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithTransIDGenerator overrides order id generation, mainly for tests.
func (s *Service) WithTransIDGenerator(gen func() string) *Service {
	s.newTransID = gen
	return s
}

// Create opens a pending contract for the tenant on an available room.
func (s *Service) Create(ctx context.Context, tenantID, roomID string, endDate time.Time) (Contract, error) {
	if tenantID == "" || roomID == "" {
		return Contract{}, ErrInvalidInput
	}
	if !endDate.After(s.now()) {
		return Contract{}, ErrInvalidInput
	}
	return s.repo.Create(ctx, CreateParams{RoomID: roomID, TenantID: tenantID, EndDate: endDate})
}

// SignByOwner records the owner's signature on a pending contract.
func (s *Service) SignByOwner(ctx context.Context, contractID, callerID string) (Contract, error) {
	return s.repo.SignByOwner(ctx, contractID, callerID)
}

// RequestExtension records a new end date proposal with the requester's side
// pre-signed.
func (s *Service) RequestExtension(ctx context.Context, contractID, requesterID string, newEndDate time.Time) (Contract, error) {
	return s.repo.RequestExtension(ctx, contractID, requesterID, newEndDate, s.now())
}

// ConfirmExtension counter-signs the pending extension; the second signature
// applies it.
func (s *Service) ConfirmExtension(ctx context.Context, contractID, confirmerID string) (Contract, error) {
	return s.repo.ConfirmExtension(ctx, contractID, confirmerID)
}

// Expire closes an active contract past its term.
func (s *Service) Expire(ctx context.Context, contractID string) error {
	return s.repo.Expire(ctx, contractID, s.now())
}

// ExpireDue sweeps every active contract whose end date has passed.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	expired, err := s.repo.ExpireDue(ctx, s.now())
	for _, id := range expired {
		s.logger.Info("contract expired", zap.String("contract_id", id))
	}
	return len(expired), err
}

// Get fetches a contract for one of its parties.
func (s *Service) Get(ctx context.Context, contractID, callerID string) (Contract, error) {
	rec, err := s.repo.GetByID(ctx, contractID)
	if err != nil {
		return Contract{}, err
	}
	if !rec.IsParty(callerID) {
		return Contract{}, ErrForbidden
	}
	return rec, nil
}

// ListByParty lists the caller's contracts.
func (s *Service) ListByParty(ctx context.Context, callerID string) ([]Contract, error) {
	return s.repo.ListByParty(ctx, callerID)
}
