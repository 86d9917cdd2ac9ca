package housingarea

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"rentflow/gateway"
)

// ServiceFee is the flat platform fee, in VND, a landlord pays to list a
// housing area.
const ServiceFee int64 = 100_000

var (
	// ErrForbidden signals the caller does not own the housing area.
	ErrForbidden = errors.New("housingarea: caller is not the owner")
	// ErrInvalidInput signals missing or malformed fields.
	ErrInvalidInput = errors.New("housingarea: invalid input")
)

// Store defines the repository surface the service depends on.
type Store interface {
	Create(ctx context.Context, params CreateParams) (HousingArea, error)
	GetByID(ctx context.Context, id string) (HousingArea, error)
	ListByOwner(ctx context.Context, ownerID string) ([]HousingArea, error)
}

// OrderCreator is the slice of the payment gateway client used here.
type OrderCreator interface {
	CreateOrder(ctx context.Context, params gateway.CreateOrderParams) (gateway.CreateOrderResponse, error)
}

// ServiceMetadata routes the service payment back to the housing area.
type ServiceMetadata struct {
	Type          string `json:"type"`
	HousingAreaID string `json:"housing_area_id"`
	UserID        string `json:"user_id"`
}

// PaymentOrder is what the landlord needs to pay the service fee.
type PaymentOrder struct {
	AppTransID string
	OrderURL   string
	Amount     int64
}

type Service struct {
	repo   Store
	orders OrderCreator
	logger *zap.Logger

	newTransID func() string
}

func NewService(repo Store, orders OrderCreator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:       repo,
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

// Create registers a housing area owned by the caller. The area stays unpaid
// until the service fee callback settles it.
func (s *Service) Create(ctx context.Context, ownerID, name, address string) (HousingArea, error) {
	if name == "" {
		return HousingArea{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	return s.repo.Create(ctx, CreateParams{OwnerID: ownerID, Name: name, Address: address})
}

// Get fetches a housing area.
func (s *Service) Get(ctx context.Context, id string) (HousingArea, error) {
	return s.repo.GetByID(ctx, id)
}

// ListByOwner lists the caller's housing areas.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]HousingArea, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// CreateServiceOrder asks the gateway for a service-fee payment order. Only
// the owner may pay, and only while the fee is outstanding.
func (s *Service) CreateServiceOrder(ctx context.Context, areaID, callerID string) (PaymentOrder, error) {
	rec, err := s.repo.GetByID(ctx, areaID)
	if err != nil {
		return PaymentOrder{}, err
	}
	if rec.OwnerID != callerID {
		return PaymentOrder{}, ErrForbidden
	}
	if rec.Paid {
		return PaymentOrder{}, ErrAlreadyPaid
	}

	embed, err := json.Marshal(ServiceMetadata{
		Type:          "service",
		HousingAreaID: rec.ID,
		UserID:        callerID,
	})
	if err != nil {
		return PaymentOrder{}, fmt.Errorf("housingarea: marshal embed data: %w", err)
	}

	appTransID := s.newTransID()
	resp, err := s.orders.CreateOrder(ctx, gateway.CreateOrderParams{
		AppTransID:  appTransID,
		AppUser:     callerID,
		Amount:      ServiceFee,
		EmbedData:   string(embed),
		Item:        "[]",
		Description: fmt.Sprintf("Service fee for housing area %s", rec.ID),
	})
	if err != nil {
		return PaymentOrder{}, err
	}
	if resp.ReturnCode != gateway.ReturnCodeSuccess {
		return PaymentOrder{}, fmt.Errorf("housingarea: gateway rejected order (code %d): %s", resp.ReturnCode, resp.ReturnMessage)
	}

	s.logger.Info("service order created",
		zap.String("housing_area_id", rec.ID),
		zap.String("app_trans_id", appTransID))

	return PaymentOrder{AppTransID: appTransID, OrderURL: resp.OrderURL, Amount: ServiceFee}, nil
}
