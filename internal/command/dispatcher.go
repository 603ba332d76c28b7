package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/iabetor/pivoice/internal/logger"
)

var (
	// ErrTimeout 表示设备在超时时间内没有响应。
	ErrTimeout = errors.New("请求超时")
	// ErrNetwork 表示连接失败或设备返回非 200 状态码。
	ErrNetwork = errors.New("网络错误")
)

// StatusError 表示设备返回了非 200 的状态码。
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("设备返回状态码 %d (%s)", e.Code, e.URL)
}

// Unwrap 使 errors.Is(err, ErrNetwork) 成立。
func (e *StatusError) Unwrap() error {
	return ErrNetwork
}

// Dispatcher 把指令发送到设备。
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd Command) error
}

// HTTPDispatcher 通过 HTTP GET 调用设备 URL，状态码 200 视为成功。
type HTTPDispatcher struct {
	httpClient *http.Client
}

var _ Dispatcher = (*HTTPDispatcher)(nil)

// NewHTTPDispatcher 创建 HTTP 指令发送器，timeout <= 0 时使用 5 秒。
func NewHTTPDispatcher(timeout time.Duration) *HTTPDispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPDispatcher{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Dispatch 发送一次请求，不重试。
func (d *HTTPDispatcher) Dispatch(ctx context.Context, cmd Command) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cmd.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: 创建请求失败: %v", ErrNetwork, err)
	}

	start := time.Now()
	resp, err := d.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			logger.Warnf("[command] 发送 %q 超时 (%s)", cmd.Phrase, cmd.URL)
			return fmt.Errorf("%w: %s", ErrTimeout, cmd.URL)
		}
		logger.Warnf("[command] 发送 %q 失败: %v", cmd.Phrase, err)
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		logger.Warnf("[command] 设备返回状态码 %d (%s)", resp.StatusCode, cmd.URL)
		return &StatusError{Code: resp.StatusCode, URL: cmd.URL}
	}

	logger.Infof("[command] 指令 %q 已发送 (%s, %v)", cmd.Phrase, cmd.URL, time.Since(start).Round(time.Millisecond))
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
