package callback

// Request is the webhook body posted by the gateway: a JSON-encoded payload
// plus the mac computed over it with key2.
type Request struct {
	Data string `json:"data"`
	Mac  string `json:"mac"`
}

// Payload is the decoded notification.
type Payload struct {
	AppID      int    `json:"app_id"`
	AppTransID string `json:"app_trans_id"`
	AppTime    int64  `json:"app_time"`
	AppUser    string `json:"app_user"`
	Amount     int64  `json:"amount"`
	EmbedData  string `json:"embed_data"`
	ZPTransID  int64  `json:"zp_trans_id"`
	Channel    int    `json:"channel"`
}

// Metadata is the application-defined routing information carried inside
// embed_data. Exactly one of the correlated ids is set, depending on Type.
type Metadata struct {
	Type          string `json:"type"`
	ContractID    string `json:"contract_id,omitempty"`
	HousingAreaID string `json:"housing_area_id,omitempty"`
	RoomID        string `json:"room_id,omitempty"`
	UserID        string `json:"user_id,omitempty"`
}

// Payment types the dispatcher routes on.
const (
	TypeDeposit     = "deposit"
	TypeService     = "service"
	TypeBoostingAds = "boosting_ads"
)

// Ack is the only thing the gateway ever receives back. A negative code tells
// the gateway to retry.
type Ack struct {
	ReturnCode    int    `json:"return_code"`
	ReturnMessage string `json:"return_message"`
}

const (
	AckCodeSuccess = 1
	AckCodeFailure = -1
)

func ackOK(msg string) Ack  { return Ack{ReturnCode: AckCodeSuccess, ReturnMessage: msg} }
func ackErr(msg string) Ack { return Ack{ReturnCode: AckCodeFailure, ReturnMessage: msg} }
