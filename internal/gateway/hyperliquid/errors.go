package hyperliquid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// ErrBelowMinNotional 表示订单面值低于交易所最小限制，属于策略性失败，不重试。
var ErrBelowMinNotional = errors.New("order notional below exchange minimum")

// apiError 表示交易所返回的非 2xx 应答。
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("hyperliquid status=%d: %s", e.Status, e.Body)
}

// rejectError 表示 /exchange 应答中订单级别的拒绝（status=ok 但 statuses 带 error）。
type rejectError struct {
	Msg string
}

func (e *rejectError) Error() string {
	return "hyperliquid order rejected: " + e.Msg
}

// Kind 是错误分类，决定重试策略。
type Kind int

const (
	// KindTransient 连接/超时/限频类，按退避重试。
	KindTransient Kind = iota
	// KindPolicy 交易所明确拒绝，重试无意义。
	KindPolicy
	// KindParse 应答解析失败，重试无意义。
	KindParse
	// KindUnexpected 其他未知错误，重置客户端后再试一次。
	KindUnexpected
)

// Classify 判定错误类别。
func Classify(err error) Kind {
	if err == nil {
		return KindUnexpected
	}
	if errors.Is(err, ErrBelowMinNotional) {
		return KindPolicy
	}
	var reject *rejectError
	if errors.As(err, &reject) {
		return KindPolicy
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return KindParse
	}
	var api *apiError
	if errors.As(err, &api) {
		if api.Status == 429 || api.Status >= 500 {
			return KindTransient
		}
		return KindPolicy
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindTransient
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, net.ErrClosed) {
		return KindTransient
	}
	if strings.Contains(err.Error(), "connection reset") || strings.Contains(err.Error(), "EOF") {
		return KindTransient
	}
	return KindUnexpected
}
