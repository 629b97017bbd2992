package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"time"
)

// timeNowMillis 可在测试中替换。
var timeNowMillis = func() int64 { return time.Now().UnixMilli() }

// SignParams 追加 timestamp/recvWindow 后按 HMAC-SHA256 签名，返回编码后的 query 与签名。
func SignParams(params url.Values, secret string, recvWindowMs int64) (query string, signature string) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(timeNowMillis(), 10))
	if recvWindowMs > 0 {
		params.Set("recvWindow", strconv.FormatInt(recvWindowMs, 10))
	}
	query = params.Encode()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(query))
	return query, hex.EncodeToString(mac.Sum(nil))
}
