package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Sign 生成 HMAC-SHA256 签名（hex）
func Sign(secret, canonical string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// Canonical method\npath\ntimestamp\nnonce\nsha256(body)
func Canonical(method, path string, ts int64, nonce string, body []byte) string {
	h := sha256.Sum256(body)
	return fmt.Sprintf("%s\n%s\n%d\n%s\n%s", strings.ToUpper(method), path, ts, nonce, hex.EncodeToString(h[:]))
}

// Verify 校验支付回调签名；时间戳偏差超过 maxSkew 视为无效
func Verify(secret, method, path, timestamp, nonce, signature string, body []byte, now time.Time, maxSkew time.Duration) bool {
	if secret == "" || signature == "" || nonce == "" {
		return false
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if maxSkew > 0 {
		d := now.Sub(time.Unix(ts, 0))
		if d < 0 {
			d = -d
		}
		if d > maxSkew {
			return false
		}
	}
	want := Sign(secret, Canonical(method, path, ts, nonce, body))
	return hmac.Equal([]byte(want), []byte(strings.ToLower(signature)))
}
