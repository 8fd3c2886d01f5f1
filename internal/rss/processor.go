package rss

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/iabetor/feedstream/internal/cache"
	"github.com/iabetor/feedstream/internal/logger"
	"github.com/iabetor/feedstream/internal/metrics"
)

const (
	defaultFetchTimeout   = 6 * time.Second
	defaultItemsPerSource = 5
	defaultSummaryMax     = 350
)

// createdLayouts "created" 字段常见的时间格式。
var createdLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// FeedLocator 发现 Feed 地址。
type FeedLocator interface {
	Locate(ctx context.Context, sourceURL string) (string, error)
}

// Processor 抓取、解析并归一化单个来源的最新条目。
type Processor struct {
	locator    FeedLocator
	client     *http.Client
	parser     *Parser
	items      *cache.TTL[[]NewsItem]
	timeout    time.Duration
	maxItems   int
	summaryMax int
	maxBody    int64
	metrics    *metrics.Metrics
}

// ProcessorOptions Processor 可选参数，零值使用默认值。
type ProcessorOptions struct {
	FetchTimeout   time.Duration
	ItemsPerSource int
	SummaryMax     int
	MaxBodyBytes   int64
	Metrics        *metrics.Metrics
}

// NewProcessor 创建 Processor。items 缓存 sourceURL -> 条目列表，只写入非空结果。
func NewProcessor(locator FeedLocator, client *http.Client, parser *Parser, items *cache.TTL[[]NewsItem], opts ProcessorOptions) *Processor {
	p := &Processor{
		locator:    locator,
		client:     client,
		parser:     parser,
		items:      items,
		timeout:    opts.FetchTimeout,
		maxItems:   opts.ItemsPerSource,
		summaryMax: opts.SummaryMax,
		maxBody:    opts.MaxBodyBytes,
		metrics:    opts.Metrics,
	}
	if p.timeout <= 0 {
		p.timeout = defaultFetchTimeout
	}
	if p.maxItems <= 0 {
		p.maxItems = defaultItemsPerSource
	}
	if p.summaryMax <= 0 {
		p.summaryMax = defaultSummaryMax
	}
	return p
}

// Process 返回 sourceURL 最新的条目，按发布时间倒序。
// 返回的切片可能来自缓存，调用方不得修改。
func (p *Processor) Process(ctx context.Context, sourceURL string) ([]NewsItem, error) {
	if items, ok := p.items.Get(sourceURL); ok {
		p.metrics.ObserveCache(metrics.CacheItems, true)
		return items, nil
	}
	p.metrics.ObserveCache(metrics.CacheItems, false)

	start := time.Now()
	items, err := p.fetch(ctx, sourceURL)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.metrics.ObservePipeline(outcome, time.Since(start))
	if err != nil {
		return nil, err
	}

	if len(items) > 0 {
		p.items.Set(sourceURL, items)
	}
	return items, nil
}

func (p *Processor) fetch(ctx context.Context, sourceURL string) ([]NewsItem, error) {
	feedURL := p.resolve(ctx, sourceURL)

	status, body, err := fetchBody(ctx, p.client, feedURL, p.timeout, p.maxBody)
	if err != nil {
		return nil, fmt.Errorf("抓取 %s 失败: %w", feedURL, err)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("抓取 %s 失败: %w: HTTP %d", feedURL, ErrNetwork, status)
	}

	feed, err := p.parser.Parse(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("解析 %s 失败: %w", feedURL, err)
	}
	return p.convertItems(feed, sourceURL), nil
}

// resolve 发现失败时退回使用原地址本身作为 Feed 地址。
func (p *Processor) resolve(ctx context.Context, sourceURL string) string {
	feedURL, err := p.locator.Locate(ctx, sourceURL)
	if err != nil {
		logger.Debugf("[rss] %s 未发现 Feed，直接抓取原地址: %v", sourceURL, err)
		return sourceURL
	}
	return feedURL
}

type datedItem struct {
	item      *gofeed.Item
	published time.Time
	hasTime   bool
}

// convertItems 按时间倒序取前 maxItems 条并转换为 NewsItem。
func (p *Processor) convertItems(feed *gofeed.Feed, sourceURL string) []NewsItem {
	dated := make([]datedItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		t, ok := entryTime(it)
		dated = append(dated, datedItem{item: it, published: t, hasTime: ok})
	}

	// 稳定排序：时间相同或都缺失时保持文档原顺序
	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].published.After(dated[j].published)
	})
	if len(dated) > p.maxItems {
		dated = dated[:p.maxItems]
	}

	source := DefaultSourceName
	if feed.Title != "" {
		source = feed.Title
	}

	items := make([]NewsItem, 0, len(dated))
	for _, d := range dated {
		item := NewsItem{
			Title:     d.item.Title,
			Link:      d.item.Link,
			Summary:   Summarize(rawSummary(d.item), p.summaryMax),
			Source:    source,
			OriginURL: sourceURL,
		}
		if d.hasTime {
			t := d.published.UTC()
			item.PublishedAt = &t
		}
		items = append(items, item)
	}
	return items
}

// rawSummary 依次取 summary/description 与 content。
func rawSummary(it *gofeed.Item) string {
	if it.Description != "" {
		return it.Description
	}
	return it.Content
}

// entryTime 依次尝试 published、updated、created，全部缺失时返回 Unix 纪元。
func entryTime(it *gofeed.Item) (time.Time, bool) {
	if it.PublishedParsed != nil {
		return *it.PublishedParsed, true
	}
	if it.UpdatedParsed != nil {
		return *it.UpdatedParsed, true
	}
	if t, ok := createdTime(it); ok {
		return t, true
	}
	return time.Unix(0, 0).UTC(), false
}

func createdTime(it *gofeed.Item) (time.Time, bool) {
	raw := it.Custom["created"]
	if raw == "" {
		for _, ns := range []string{"dcterms", "dc"} {
			if exts := it.Extensions[ns]["created"]; len(exts) > 0 {
				raw = exts[0].Value
				break
			}
		}
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range createdLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
