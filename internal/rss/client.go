package rss

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPOptions 出站抓取客户端配置。
type HTTPOptions struct {
	UserAgent          string
	InsecureSkipVerify bool
	MaxRedirects       int
}

// uaTransport 给每个请求注入浏览器风格的 User-Agent。
type uaTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *uaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(req)
}

// NewHTTPClient 创建所有探测与抓取共享的客户端。
// 客户端不设置整体超时，超时由每次调用的 context 控制。
func NewHTTPClient(opts HTTPOptions) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 8
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}

	return &http.Client{
		Transport: &uaTransport{base: transport, userAgent: opts.UserAgent},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("超过最大重定向次数 %d", maxRedirects)
			}
			return nil
		},
	}
}

// fetchBody 以 timeout 为硬截止发起 GET，返回状态码与正文。
// 传输层错误和读取超时都包装为 ErrNetwork。
func fetchBody(ctx context.Context, client *http.Client, url string, timeout time.Duration, maxBytes int64) (int, []byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: 构造请求失败: %v", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5")

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if maxBytes > 0 {
		body = io.LimitReader(resp.Body, maxBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return resp.StatusCode, nil, fmt.Errorf("%w: 读取超时: %v", ErrNetwork, err)
		}
		return resp.StatusCode, nil, fmt.Errorf("%w: 读取响应失败: %v", ErrNetwork, err)
	}
	return resp.StatusCode, data, nil
}
