package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/iabetor/feedstream/internal/logger"
)

// ModelConfig 描述一个 LLM 模型的连接信息。
type ModelConfig struct {
	Name   string // 显示名称
	APIURL string
	APIKey string
	Model  string
}

// providerEntry 是一个 Provider 及其名称的组合。
type providerEntry struct {
	name     string
	provider Provider
}

// MultiProvider 实现多 LLM 自动降级。
// 按优先级列表顺序尝试，当前模型请求失败时自动切换到下一个。
type MultiProvider struct {
	entries []providerEntry
	current int // 当前活跃索引
	mu      sync.RWMutex
}

// NewMultiProvider 根据模型配置列表创建 MultiProvider，跳过没有 API Key 的配置。
func NewMultiProvider(configs []ModelConfig) (*MultiProvider, error) {
	entries := make([]providerEntry, 0, len(configs))
	for _, cfg := range configs {
		if cfg.APIKey == "" {
			logger.Warnf("[llm] 模型 [%s] 未配置 API Key，已跳过", cfg.Name)
			continue
		}
		name := cfg.Name
		if name == "" {
			name = cfg.Model
		}
		entries = append(entries, providerEntry{
			name:     name,
			provider: NewOpenAIProvider(cfg.APIURL, cfg.APIKey, cfg.Model),
		})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("至少需要一个可用的 LLM 模型配置")
	}

	logger.Infof("[llm] 已初始化 %d 个模型：%s", len(entries), formatModelNames(entries))
	return &MultiProvider{entries: entries}, nil
}

// newMultiFromProviders 直接使用已有 Provider，测试使用。
func newMultiFromProviders(names []string, providers []Provider) *MultiProvider {
	entries := make([]providerEntry, len(providers))
	for i, p := range providers {
		entries[i] = providerEntry{name: names[i], provider: p}
	}
	return &MultiProvider{entries: entries}
}

// CurrentName 返回当前活跃模型的名称。
func (m *MultiProvider) CurrentName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[m.current].name
}

// ChatStream 实现 Provider 接口。
// 从当前活跃模型开始尝试，可降级的错误切换到下一个，直到所有模型都尝试过。
func (m *MultiProvider) ChatStream(ctx context.Context, messages []Message) (<-chan string, error) {
	m.mu.RLock()
	startIdx := m.current
	total := len(m.entries)
	m.mu.RUnlock()

	var lastErr error
	for i := 0; i < total; i++ {
		idx := (startIdx + i) % total
		entry := m.entries[idx]

		ch, err := entry.provider.ChatStream(ctx, messages)
		if err == nil {
			if idx != startIdx {
				m.setCurrent(idx)
				logger.Infof("[llm] 切换到模型 [%s]", entry.name)
			}
			return ch, nil
		}

		lastErr = err
		logger.Warnf("[llm] 模型 [%s] 请求失败: %v", entry.name, err)

		// 非降级类错误（如上下文取消），直接返回
		if !shouldFallback(ctx, err) {
			return nil, err
		}
		m.setCurrent((idx + 1) % total)
	}

	return nil, fmt.Errorf("所有 LLM 模型均不可用，最后错误: %w", lastErr)
}

func (m *MultiProvider) setCurrent(idx int) {
	m.mu.Lock()
	m.current = idx
	m.mu.Unlock()
}

// shouldFallback 额度耗尽、限流、服务不可用和网络超时触发降级。
func shouldFallback(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusPaymentRequired, http.StatusTooManyRequests,
			http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
			return true
		}
		body := strings.ToLower(se.Body)
		for _, kw := range []string{"insufficient", "quota", "rate limit"} {
			if strings.Contains(body, kw) {
				return true
			}
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "timeout")
}

// formatModelNames 格式化模型名称列表用于日志。
func formatModelNames(entries []providerEntry) string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return strings.Join(names, " → ")
}
