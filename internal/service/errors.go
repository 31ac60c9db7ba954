package service

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited 限流：等待令牌超时或上游返回 429
	ErrRateLimited = errors.New("请求被限流")
	// ErrUpstreamUnavailable 网络错误或非 2xx 响应
	ErrUpstreamUnavailable = errors.New("上游接口不可用")
	// ErrUpstreamMalformed 响应无法解析或缺少必要字段
	ErrUpstreamMalformed = errors.New("上游响应格式错误")
	// ErrStoreUnavailable 数据库读写失败
	ErrStoreUnavailable = errors.New("数据库不可用")
	// ErrNotFound 本地记录不存在
	ErrNotFound = errors.New("记录不存在")
)

// APIError TMDB 接口错误，Err 为上面的分类错误之一
type APIError struct {
	StatusCode int
	Endpoint   string
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("tmdb %s: %v (status %d): %s", e.Endpoint, e.Err, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("tmdb %s: %v: %s", e.Endpoint, e.Err, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsRetryable 判断错误是否可以在下一次调度时重试。
// 本模块内的错误都不是致命的，这里只排除本地数据不存在这类确定性错误。
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUpstreamUnavailable) ||
		errors.Is(err, ErrUpstreamMalformed) ||
		errors.Is(err, ErrStoreUnavailable)
}

func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
