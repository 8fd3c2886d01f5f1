// Package aggregator 在批次截止时间内并发处理多个来源，并按完成顺序输出结果。
package aggregator

import (
	"errors"

	"github.com/iabetor/feedstream/internal/rss"
)

// 结果状态，对外只区分成功和失败。
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ErrAbandoned 批次截止时间到达时来源仍未完成。
var ErrAbandoned = errors.New("deadline abandoned")

// Result 单个来源在一个批次中的结果。
type Result struct {
	URL    string         `json:"url"`
	Status string         `json:"status"`
	Items  []rss.NewsItem `json:"noticias,omitempty"`
	// Err 内部错误分类，只用于日志。
	Err error `json:"-"`
}

func okResult(url string, items []rss.NewsItem) Result {
	return Result{URL: url, Status: StatusOK, Items: items}
}

func errorResult(url string, err error) Result {
	return Result{URL: url, Status: StatusError, Err: err}
}

// classify 返回错误分类名称，用于日志。
func classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAbandoned):
		return "abandoned"
	case errors.Is(err, rss.ErrNoFeed):
		return "no_feed"
	case errors.Is(err, rss.ErrParse):
		return "parse"
	case errors.Is(err, rss.ErrNetwork):
		return "network"
	default:
		return "unknown"
	}
}
