package rss

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// 摘要占位文案。
const (
	PlaceholderEmpty       = "click to read more"
	PlaceholderUnavailable = "summary unavailable"
	PlaceholderScript      = "click to read the full article"
	Ellipsis               = "..."
)

// Normalize 解码 HTML 实体并剥离标签，只保留文本内容。
// 相邻元素的文本以单个空格分隔，连续空白合并为一个空格。
// raw 为空返回 PlaceholderEmpty，解析失败返回 PlaceholderUnavailable。
func Normalize(raw string) (text string) {
	if raw == "" {
		return PlaceholderEmpty
	}

	defer func() {
		if r := recover(); r != nil {
			text = PlaceholderUnavailable
		}
	}()

	// 先解码一次：不少 Feed 把 HTML 双重转义后塞进 description
	decoded := html.UnescapeString(raw)
	doc, err := html.Parse(strings.NewReader(decoded))
	if err != nil {
		return PlaceholderUnavailable
	}

	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			parts = append(parts, n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// looksLikeScript 判断文本里是否混入了脚本代码。
func looksLikeScript(s string) bool {
	return strings.Contains(s, "{") || strings.Contains(s, "window.")
}

// Summarize 生成条目摘要：归一化、脚本泄漏替换、截断到 maxRunes 个字符并追加省略号。
// 省略号总是追加，与原文长度无关。
func Summarize(raw string, maxRunes int) string {
	text := Normalize(raw)
	if looksLikeScript(text) {
		text = PlaceholderScript
	}
	return truncate(text, maxRunes) + Ellipsis
}

// truncate 按 UTF-8 字符截断，不追加任何标记。
func truncate(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxRunes])
}
