package gateway

// Return codes used by the payment gateway on both synchronous calls and
// refund queries.
const (
	ReturnCodeSuccess    = 1
	ReturnCodeProcessing = 3
)

// CreateOrderParams carries a payment order to the gateway. EmbedData and Item
// are JSON-encoded strings carried through the gateway round-trip untouched.
type CreateOrderParams struct {
	AppTransID  string
	AppUser     string
	Amount      int64
	EmbedData   string
	Item        string
	Description string
}

// CreateOrderResponse is the synchronous reply to an order creation.
type CreateOrderResponse struct {
	ReturnCode       int    `json:"return_code"`
	ReturnMessage    string `json:"return_message"`
	SubReturnCode    int    `json:"sub_return_code"`
	SubReturnMessage string `json:"sub_return_message"`
	OrderURL         string `json:"order_url"`
	ZPTransToken     string `json:"zp_trans_token"`
}

// QueryOrderResponse is the reply to an order status query.
type QueryOrderResponse struct {
	ReturnCode    int    `json:"return_code"`
	ReturnMessage string `json:"return_message"`
	IsProcessing  bool   `json:"is_processing"`
	Amount        int64  `json:"amount"`
	ZPTransID     int64  `json:"zp_trans_id"`
}

// RefundParams identifies the gateway-side transaction to reverse.
type RefundParams struct {
	MRefundID   string
	ZPTransID   int64
	Amount      int64
	Description string
}

// RefundResponse is the reply to both refund creation and refund queries.
// ReturnCode 1 means refunded, 3 means still processing, anything else failed.
type RefundResponse struct {
	ReturnCode    int    `json:"return_code"`
	ReturnMessage string `json:"return_message"`
	RefundID      int64  `json:"refund_id"`
}
