package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func computeMAC(key, data string) string {
	h := hmac.New(sha256.New, []byte(key))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyCallbackMAC checks the mac attached to a callback payload against key2.
func VerifyCallbackMAC(key2, data, mac string) bool {
	return hmac.Equal([]byte(computeMAC(key2, data)), []byte(mac))
}

// NewAppTransID generates an order identifier in the yymmdd_xxxx shape the
// gateway requires.
func NewAppTransID(now time.Time) string {
	return fmt.Sprintf("%s_%s", now.Format("060102"), uuid.NewString())
}

// DefaultAppTransID is NewAppTransID over the wall clock.
func DefaultAppTransID() string {
	return NewAppTransID(time.Now())
}

// NewRefundID generates a merchant refund identifier (yymmdd_appid_xxxx).
func NewRefundID(now time.Time, appID int) string {
	return fmt.Sprintf("%s_%d_%s", now.Format("060102"), appID, uuid.NewString())
}
