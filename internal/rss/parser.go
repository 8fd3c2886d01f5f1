package rss

import (
	"bytes"
	"context"
	"fmt"
	"runtime"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/semaphore"
)

// Parser 解析 RSS/Atom/JSON Feed 文档，并限制同时进行的解析数量。
// 解析是 CPU 密集操作，网络等待不占用解析名额。
type Parser struct {
	slots *semaphore.Weighted
}

// NewParser 创建解析器。workers <= 0 时使用 GOMAXPROCS。
func NewParser(workers int) *Parser {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Parser{slots: semaphore.NewWeighted(int64(workers))}
}

// Parse 解析文档。文档损坏或没有任何条目时返回 ErrParse。
func (p *Parser) Parse(ctx context.Context, data []byte) (*gofeed.Feed, error) {
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: 等待解析超时: %v", ErrParse, err)
	}
	defer p.slots.Release(1)

	feed, err := parseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(feed.Items) == 0 {
		return nil, fmt.Errorf("%w: 文档中没有条目", ErrParse)
	}
	return feed, nil
}

// parseDocument 每次使用新的 gofeed.Parser，它内部带状态，不能并发复用。
func parseDocument(data []byte) (feed *gofeed.Feed, err error) {
	defer func() {
		if r := recover(); r != nil {
			feed, err = nil, fmt.Errorf("解析器 panic: %v", r)
		}
	}()
	return gofeed.NewParser().Parse(bytes.NewReader(data))
}
