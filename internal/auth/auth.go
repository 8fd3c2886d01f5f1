// Package auth 校验调用方的访问令牌与订阅权益。
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iabetor/feedstream/internal/logger"
)

var (
	// ErrUnauthenticated 令牌缺失、无效或过期。
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden 已登录但没有高级订阅。
	ErrForbidden = errors.New("premium subscription required")
	// ErrNotConfigured 身份服务未配置。
	ErrNotConfigured = errors.New("identity provider not configured")
)

// Principal 已认证的调用方。
type Principal struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Premium bool   `json:"premium"`
}

// Verifier 根据 bearer 令牌返回调用方身份。
type Verifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// Options HTTPVerifier 配置。
type Options struct {
	URL         string
	Key         string
	AdminEmails []string
	InsecureDev bool
	Client      *http.Client
}

// HTTPVerifier 通过 Supabase 风格的 /auth/v1/user 接口校验令牌。
type HTTPVerifier struct {
	url         string
	key         string
	admins      map[string]struct{}
	insecureDev bool
	client      *http.Client
}

// NewHTTPVerifier 创建 HTTPVerifier。
func NewHTTPVerifier(opts Options) *HTTPVerifier {
	admins := make(map[string]struct{}, len(opts.AdminEmails))
	for _, e := range opts.AdminEmails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			admins[e] = struct{}{}
		}
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPVerifier{
		url:         strings.TrimRight(opts.URL, "/"),
		key:         opts.Key,
		admins:      admins,
		insecureDev: opts.InsecureDev,
		client:      client,
	}
}

type userResponse struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	UserMetadata struct {
		IsPremium bool `json:"is_premium"`
	} `json:"user_metadata"`
}

// Verify 实现 Verifier。非高级用户返回 ErrForbidden，同时返回 Principal。
func (v *HTTPVerifier) Verify(ctx context.Context, token string) (*Principal, error) {
	if v.url == "" || v.key == "" {
		if v.insecureDev {
			logger.Warnf("[auth] 身份服务未配置，开发模式放行请求")
			return &Principal{ID: "dev", Premium: true}, nil
		}
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(token) == "" {
		return nil, ErrUnauthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("apikey", v.key)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		logger.Warnf("[auth] 请求身份服务失败: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: 身份服务返回 %d", ErrUnauthenticated, resp.StatusCode)
	}

	var user userResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("%w: 解析用户信息失败: %v", ErrUnauthenticated, err)
	}

	p := &Principal{ID: user.ID, Email: user.Email, Premium: user.UserMetadata.IsPremium}
	if !p.Premium {
		if _, ok := v.admins[strings.ToLower(p.Email)]; ok {
			p.Premium = true
		}
	}
	if !p.Premium {
		return p, ErrForbidden
	}
	return p, nil
}

// BearerToken 从 Authorization 头中取出令牌。
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
