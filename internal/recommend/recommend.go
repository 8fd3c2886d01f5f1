// Package recommend 借助大模型为主题推荐可用的 RSS 来源，并缓存验证结果。
package recommend

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/iabetor/feedstream/internal/llm"
	"github.com/iabetor/feedstream/internal/logger"
)

const (
	defaultMinCached = 2
	defaultMaxIgnore = 20
	// suggestCount 每次向模型请求的来源数量。
	suggestCount = 5
)

var (
	// ErrNoProvider 未配置大模型。
	ErrNoProvider = errors.New("llm provider not configured")
	// ErrEmptyTopic 主题为空。
	ErrEmptyTopic = errors.New("empty topic")
)

var urlPattern = regexp.MustCompile(`https?://[^\s,]+`)

// Source 一个推荐来源。URL 是验证后的 Feed 地址，Title 是模型给出的原始地址。
type Source struct {
	URL   string `json:"url"`
	Title string `json:"titulo"`
}

// FeedLocator 验证候选地址并返回真正的 Feed 地址。
type FeedLocator interface {
	Locate(ctx context.Context, sourceURL string) (string, error)
}

// Options Service 配置。
type Options struct {
	// MinCached 缓存中至少有这么多可用来源时不再调用模型。
	MinCached int
	// MaxIgnore 提示词中最多列出的已有来源数。
	MaxIgnore int
}

// Service 来源推荐服务。
type Service struct {
	store     Store
	provider  llm.Provider
	locator   FeedLocator
	minCached int
	maxIgnore int
}

// NewService 创建 Service。store 为 nil 时不使用缓存。
func NewService(store Store, provider llm.Provider, locator FeedLocator, opts Options) *Service {
	s := &Service{
		store:     store,
		provider:  provider,
		locator:   locator,
		minCached: opts.MinCached,
		maxIgnore: opts.MaxIgnore,
	}
	if s.minCached <= 0 {
		s.minCached = defaultMinCached
	}
	if s.maxIgnore <= 0 {
		s.maxIgnore = defaultMaxIgnore
	}
	return s
}

// NormalizeTopic 缓存 key 使用小写并去掉首尾空白的主题。
func NormalizeTopic(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}

// Recommend 返回调用方尚未订阅的来源。
func (s *Service) Recommend(ctx context.Context, topic string, existing []string) ([]Source, error) {
	query := NormalizeTopic(topic)
	if query == "" {
		return nil, ErrEmptyTopic
	}
	owned := make(map[string]struct{}, len(existing))
	for _, u := range existing {
		owned[u] = struct{}{}
	}

	cached := s.loadCache(ctx, query)
	useful := excludeOwned(cached, owned)
	if len(useful) >= s.minCached {
		logger.Debugf("[recommend] '%s' 命中缓存，返回 %d 个来源", query, len(useful))
		return useful, nil
	}

	if s.provider == nil {
		return nil, ErrNoProvider
	}

	reply, err := llm.Complete(ctx, s.provider, s.prompt(topic, existing, cached))
	if err != nil {
		return nil, fmt.Errorf("请求模型推荐失败: %w", err)
	}
	candidates := ExtractURLs(reply)
	logger.Debugf("[recommend] 模型给出 %d 个候选地址", len(candidates))

	fresh := s.validate(ctx, candidates, owned)

	inCache := make(map[string]struct{}, len(cached))
	for _, src := range cached {
		inCache[src.URL] = struct{}{}
	}
	merged := append([]Source(nil), cached...)
	for _, src := range fresh {
		if _, ok := inCache[src.URL]; ok {
			continue
		}
		inCache[src.URL] = struct{}{}
		merged = append(merged, src)
	}

	if len(fresh) > 0 && s.store != nil {
		if err := s.store.Upsert(ctx, query, merged); err != nil {
			logger.Warnf("[recommend] 更新缓存失败: %v", err)
		} else {
			logger.Infof("[recommend] '%s' 缓存新增 %d 个来源", query, len(fresh))
		}
	}

	return excludeOwned(merged, owned), nil
}

func (s *Service) loadCache(ctx context.Context, query string) []Source {
	if s.store == nil {
		return nil
	}
	cached, err := s.store.Get(ctx, query)
	if err != nil {
		logger.Warnf("[recommend] 读取缓存失败: %v", err)
		return nil
	}
	return cached
}

func (s *Service) prompt(topic string, existing []string, cached []Source) []llm.Message {
	ignore := make([]string, 0, s.maxIgnore+len(cached))
	for i, u := range existing {
		if i >= s.maxIgnore {
			break
		}
		ignore = append(ignore, u)
	}
	for _, src := range cached {
		ignore = append(ignore, src.URL)
	}

	user := fmt.Sprintf("Necesito %d feeds RSS VERIFICADOS sobre: %s. \nIMPORTANTE: NO incluyas: %s. \nDame URLs diferentes. Solo las URLs.",
		suggestCount, topic, strings.Join(ignore, ", "))
	return []llm.Message{llm.System("Eres un experto en RSS."), llm.User(user)}
}

// validate 并发验证候选地址，结果保持候选顺序。
func (s *Service) validate(ctx context.Context, candidates []string, owned map[string]struct{}) []Source {
	resolved := make([]string, len(candidates))
	var wg sync.WaitGroup
	for i, c := range candidates {
		wg.Add(1)
		go func(i int, candidate string) {
			defer wg.Done()
			feedURL, err := s.locator.Locate(ctx, candidate)
			if err != nil {
				logger.Debugf("[recommend] 候选 %s 无效: %v", candidate, err)
				return
			}
			resolved[i] = feedURL
		}(i, c)
	}
	wg.Wait()

	var out []Source
	for i, feedURL := range resolved {
		if feedURL == "" {
			continue
		}
		if _, ok := owned[feedURL]; ok {
			continue
		}
		out = append(out, Source{URL: feedURL, Title: candidates[i]})
	}
	return out
}

// ExtractURLs 从模型回复中提取 http(s) 地址，去掉两端的引号、逗号和句号。
func ExtractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if u := strings.Trim(m, `",.`); u != "" {
			out = append(out, u)
		}
	}
	return out
}

func excludeOwned(sources []Source, owned map[string]struct{}) []Source {
	out := make([]Source, 0, len(sources))
	for _, src := range sources {
		if _, ok := owned[src.URL]; !ok {
			out = append(out, src)
		}
	}
	return out
}
