// Package rss 负责订阅源发现、Feed 抓取解析以及条目归一化。
package rss

import (
	"errors"
	"time"
)

// 错误分类，只用于日志，对外统一折叠为 "error" 状态。
var (
	// ErrNetwork 超时、连接失败或非 2xx 状态码。
	ErrNetwork = errors.New("network failure")
	// ErrParse Feed 文档无法解析或没有任何条目。
	ErrParse = errors.New("parse failure")
	// ErrNoFeed 所有候选地址都没有探测到可用的 Feed。
	ErrNoFeed = errors.New("no feed found")
)

// DefaultSourceName Feed 没有标题时使用的来源名称。
const DefaultSourceName = "Web Source"

// NewsItem 归一化后的单条新闻。放入缓存后不可再修改。
type NewsItem struct {
	Title   string `json:"titulo"`
	Link    string `json:"link"`
	Summary string `json:"resumen"`
	Source  string `json:"fuente"`
	// OriginURL 调用方提交的原始 URL，而不是解析出的 Feed 地址。
	OriginURL   string     `json:"url_origen"`
	PublishedAt *time.Time `json:"fecha,omitempty"`
}
