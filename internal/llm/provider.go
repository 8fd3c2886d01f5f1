// Package llm 封装 OpenAI 兼容的大模型补全接口，供推文生成与来源推荐使用。
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyResponse 模型返回了空内容。
var ErrEmptyResponse = errors.New("empty completion")

// Message 表示与 LLM 对话中的一条消息。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System 构造 system 消息。
func System(content string) Message { return Message{Role: "system", Content: content} }

// User 构造 user 消息。
func User(content string) Message { return Message{Role: "user", Content: content} }

// Provider 定义支持流式响应的 LLM 后端接口。
type Provider interface {
	// ChatStream 将对话消息发送给 LLM，返回一个 channel 逐块接收文本响应。
	ChatStream(ctx context.Context, messages []Message) (<-chan string, error)
}

// Complete 读完整个流并返回去掉首尾空白的完整回复。
func Complete(ctx context.Context, p Provider, messages []Message) (string, error) {
	ch, err := p.ChatStream(ctx, messages)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for chunk := range ch {
		sb.WriteString(chunk)
	}
	// 流被取消时 channel 会提前关闭
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("读取回复中断: %w", err)
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
