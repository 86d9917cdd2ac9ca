package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"rentflow/gateway"
)

// BoostFee is the flat fee, in VND, for promoting a room listing.
const BoostFee int64 = 50_000

var (
	// ErrForbidden signals the caller does not own the room.
	ErrForbidden = errors.New("room: caller is not the owner")
	// ErrInvalidInput signals missing or malformed fields.
	ErrInvalidInput = errors.New("room: invalid input")
	// ErrAreaUnpaid signals the housing area's service fee is outstanding.
	ErrAreaUnpaid = errors.New("room: housing area service fee unpaid")
)

// Store defines the repository surface the service depends on.
type Store interface {
	Create(ctx context.Context, params CreateParams) (Room, error)
	GetByID(ctx context.Context, id string) (Room, error)
	ListAvailable(ctx context.Context) ([]Room, error)
}

// AreaChecker verifies the parent housing area settled its service fee.
type AreaChecker interface {
	IsPaid(ctx context.Context, areaID string) (string, bool, error)
}

// OrderCreator is the slice of the payment gateway client used here.
type OrderCreator interface {
	CreateOrder(ctx context.Context, params gateway.CreateOrderParams) (gateway.CreateOrderResponse, error)
}

// BoostMetadata routes the boosting payment back to the room.
type BoostMetadata struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

// PaymentOrder is what the landlord needs to pay the boosting fee.
type PaymentOrder struct {
	AppTransID string
	OrderURL   string
	Amount     int64
}

type Service struct {
	repo   Store
	areas  AreaChecker
	orders OrderCreator
	logger *zap.Logger

	newTransID func() string
}

func NewService(repo Store, areas AreaChecker, orders OrderCreator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:       repo,
		areas:      areas,
		orders:     orders,
		logger:     logger,
		newTransID: gateway.DefaultAppTransID,
	}
}

// WithTransIDGenerator overrides order id generation, mainly for tests.
func (s *Service) WithTransIDGenerator(gen func() string) *Service {
	s.newTransID = gen
	return s
}

// Create lists a room inside a housing area the caller owns. The area's
// service fee must be settled before rooms go up.
func (s *Service) Create(ctx context.Context, callerID string, params CreateParams) (Room, error) {
	if params.Name == "" || params.Price <= 0 {
		return Room{}, fmt.Errorf("%w: name and positive price are required", ErrInvalidInput)
	}

	ownerID, paid, err := s.areas.IsPaid(ctx, params.HousingAreaID)
	if err != nil {
		return Room{}, err
	}
	if ownerID != callerID {
		return Room{}, ErrForbidden
	}
	if !paid {
		return Room{}, ErrAreaUnpaid
	}

	params.OwnerID = callerID
	return s.repo.Create(ctx, params)
}

// Get fetches a room.
func (s *Service) Get(ctx context.Context, id string) (Room, error) {
	return s.repo.GetByID(ctx, id)
}

// ListAvailable lists rooms open for rent, boosted listings first.
func (s *Service) ListAvailable(ctx context.Context) ([]Room, error) {
	return s.repo.ListAvailable(ctx)
}

// CreateBoostOrder asks the gateway for a boosting payment order. Only the
// owner may boost, and only an available, not-yet-boosted room.
func (s *Service) CreateBoostOrder(ctx context.Context, roomID, callerID string) (PaymentOrder, error) {
	rec, err := s.repo.GetByID(ctx, roomID)
	if err != nil {
		return PaymentOrder{}, err
	}
	if rec.OwnerID != callerID {
		return PaymentOrder{}, ErrForbidden
	}
	if rec.Boosted {
		return PaymentOrder{}, ErrAlreadyBoosted
	}
	if rec.Status != StatusAvailable {
		return PaymentOrder{}, ErrBadStatus
	}

	embed, err := json.Marshal(BoostMetadata{
		Type:   "boosting_ads",
		RoomID: rec.ID,
		UserID: callerID,
	})
	if err != nil {
		return PaymentOrder{}, fmt.Errorf("room: marshal embed data: %w", err)
	}

	appTransID := s.newTransID()
	resp, err := s.orders.CreateOrder(ctx, gateway.CreateOrderParams{
		AppTransID:  appTransID,
		AppUser:     callerID,
		Amount:      BoostFee,
		EmbedData:   string(embed),
		Item:        "[]",
		Description: fmt.Sprintf("Boosting for room %s", rec.ID),
	})
	if err != nil {
		return PaymentOrder{}, err
	}
	if resp.ReturnCode != gateway.ReturnCodeSuccess {
		return PaymentOrder{}, fmt.Errorf("room: gateway rejected order (code %d): %s", resp.ReturnCode, resp.ReturnMessage)
	}

	s.logger.Info("boost order created",
		zap.String("room_id", rec.ID),
		zap.String("app_trans_id", appTransID))

	return PaymentOrder{AppTransID: appTransID, OrderURL: resp.OrderURL, Amount: BoostFee}, nil
}
