package rss

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/iabetor/feedstream/internal/cache"
	"github.com/iabetor/feedstream/internal/logger"
	"github.com/iabetor/feedstream/internal/metrics"
)

const defaultProbeTimeout = 3 * time.Second

// candidateSuffixes 按优先级排列的常见 Feed 路径，空串表示原地址本身。
var candidateSuffixes = []string{"", "/feed", "/rss", "/rss.xml"}

// Locator 根据用户输入的网址发现真正的 Feed 地址。
type Locator struct {
	client  *http.Client
	parser  *Parser
	cache   *cache.TTL[string]
	timeout time.Duration
	maxBody int64
	metrics *metrics.Metrics
}

// LocatorOptions Locator 可选参数。
type LocatorOptions struct {
	ProbeTimeout time.Duration
	MaxBodyBytes int64
	Metrics      *metrics.Metrics
}

// NewLocator 创建 Locator。locations 缓存 sourceURL -> feedURL，只写入成功结果。
func NewLocator(client *http.Client, parser *Parser, locations *cache.TTL[string], opts LocatorOptions) *Locator {
	timeout := opts.ProbeTimeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &Locator{
		client:  client,
		parser:  parser,
		cache:   locations,
		timeout: timeout,
		maxBody: opts.MaxBodyBytes,
		metrics: opts.Metrics,
	}
}

// Candidates 返回待探测的候选地址，去掉首尾空白和末尾斜杠。
func Candidates(sourceURL string) []string {
	base := strings.TrimRight(strings.TrimSpace(sourceURL), "/")
	out := make([]string, len(candidateSuffixes))
	for i, suffix := range candidateSuffixes {
		out[i] = base + suffix
	}
	return out
}

// Locate 返回 sourceURL 对应的 Feed 地址，找不到时返回 ErrNoFeed。
//
// 所有候选地址并发探测，但结果按候选列表顺序取第一个成功者，
// 因此必须等全部探测结束，不能用先到先得。
func (l *Locator) Locate(ctx context.Context, sourceURL string) (string, error) {
	if feedURL, ok := l.cache.Get(sourceURL); ok {
		l.metrics.ObserveCache(metrics.CacheLocation, true)
		return feedURL, nil
	}
	l.metrics.ObserveCache(metrics.CacheLocation, false)

	candidates := Candidates(sourceURL)
	succeeded := make([]bool, len(candidates))

	var wg sync.WaitGroup
	for i, candidate := range candidates {
		wg.Add(1)
		go func(i int, candidate string) {
			defer wg.Done()
			succeeded[i] = l.probe(ctx, candidate)
		}(i, candidate)
	}
	wg.Wait()

	for i, candidate := range candidates {
		if succeeded[i] {
			l.cache.Set(sourceURL, candidate)
			logger.Debugf("[rss] %s -> %s", sourceURL, candidate)
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoFeed, sourceURL)
}

// probe 只有 200 且能解析出至少一个条目才算成功，其余情况静默失败。
func (l *Locator) probe(ctx context.Context, candidate string) bool {
	status, body, err := fetchBody(ctx, l.client, candidate, l.timeout, l.maxBody)
	if err != nil || status != http.StatusOK {
		l.metrics.ObserveProbe(false)
		return false
	}
	if _, err := l.parser.Parse(ctx, body); err != nil {
		l.metrics.ObserveProbe(false)
		return false
	}
	l.metrics.ObserveProbe(true)
	return true
}
