package gateway

import (
	"errors"
	"fmt"
)

// ConnectivityError 网络层失败（拨号/读写/超时/5xx）。
// 行情流遇到它会重连；tick 内的 REST 调用遇到它则放弃本轮对账。
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connectivity: %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

func connErr(op string, err error) error {
	return &ConnectivityError{Op: op, Err: err}
}

// IsConnectivity 判断错误链中是否包含 ConnectivityError。
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// APIError 交易所返回的业务错误（4xx），不可通过重试恢复。
type APIError struct {
	Status int
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance api status=%d code=%d msg=%s", e.Status, e.Code, e.Msg)
}
