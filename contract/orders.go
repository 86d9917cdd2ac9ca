package contract

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"rentflow/gateway"
)

// DepositMetadata is the embedded metadata carried through the gateway
// round-trip; the callback dispatcher uses it to route the payment back to
// the contract.
type DepositMetadata struct {
	Type       string `json:"type"`
	ContractID string `json:"contract_id"`
	UserID     string `json:"user_id"`
}

// DepositOrder is what the tenant needs to pay the deposit.
type DepositOrder struct {
	AppTransID string
	OrderURL   string
	Amount     int64
}

// CreateDepositOrder asks the gateway for a deposit payment order on a pending
// contract. Only the tenant may initiate the payment.
func (s *Service) CreateDepositOrder(ctx context.Context, contractID, callerID string) (DepositOrder, error) {
	rec, err := s.repo.GetByID(ctx, contractID)
	if err != nil {
		return DepositOrder{}, err
	}
	if rec.TenantID != callerID {
		return DepositOrder{}, ErrForbidden
	}
	if rec.Status != StatusPending {
		return DepositOrder{}, ErrConflict
	}

	amount, err := s.rooms.Price(ctx, rec.RoomID)
	if err != nil {
		return DepositOrder{}, err
	}

	embed, err := json.Marshal(DepositMetadata{
		Type:       "deposit",
		ContractID: rec.ID,
		UserID:     callerID,
	})
	if err != nil {
		return DepositOrder{}, fmt.Errorf("contract: marshal embed data: %w", err)
	}

	appTransID := s.newTransID()
	resp, err := s.orders.CreateOrder(ctx, gateway.CreateOrderParams{
		AppTransID:  appTransID,
		AppUser:     callerID,
		Amount:      amount,
		EmbedData:   string(embed),
		Item:        "[]",
		Description: fmt.Sprintf("Deposit for contract %s", rec.ID),
	})
	if err != nil {
		return DepositOrder{}, err
	}
	if resp.ReturnCode != gateway.ReturnCodeSuccess {
		return DepositOrder{}, fmt.Errorf("contract: gateway rejected order (code %d): %s", resp.ReturnCode, resp.ReturnMessage)
	}

	s.logger.Info("deposit order created",
		zap.String("contract_id", rec.ID),
		zap.String("app_trans_id", appTransID),
		zap.Int64("amount", amount))

	return DepositOrder{AppTransID: appTransID, OrderURL: resp.OrderURL, Amount: amount}, nil
}
