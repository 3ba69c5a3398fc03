package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Headers set on every run webhook delivery.
const (
	HeaderEvent     = "X-Topsolver-Event"
	HeaderDelivery  = "X-Topsolver-Delivery"
	HeaderTimestamp = "X-Topsolver-Timestamp"
	HeaderSignature = "X-Topsolver-Signature"
)

const signatureVersion = "v1="

func runMAC(secret string, ts int64, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return mac.Sum(nil)
}

// Sign returns the HeaderSignature value for a run event body sent at unix time ts:
// "v1=" and the hex HMAC-SHA256 of "<ts>.<body>".
func Sign(secret string, ts int64, body []byte) string {
	return signatureVersion + hex.EncodeToString(runMAC(secret, ts, body))
}

// Verify checks a HeaderSignature value and rejects deliveries stamped more than
// tolerance away from now. A zero tolerance skips the age check.
func Verify(secret string, ts int64, body []byte, header string, now time.Time, tolerance time.Duration) bool {
	if tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age > tolerance || age < -tolerance {
			return false
		}
	}
	hexSig, ok := strings.CutPrefix(header, signatureVersion)
	if !ok {
		return false
	}
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return false
	}
	return hmac.Equal(runMAC(secret, ts, body), got)
}
