package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iabetor/feedstream/internal/logger"
)

const (
	defaultTemperature = 0.7
	defaultTimeout     = 60 * time.Second
)

// StatusError 上游接口返回了非 200 状态码。
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API 返回状态码 %d: %s", e.Code, e.Body)
}

// OpenAIProvider 通过 SSE（Server-Sent Events）与 OpenAI 兼容的 API 通信，
// 支持流式接收大模型回复。
type OpenAIProvider struct {
	apiURL      string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
}

// NewOpenAIProvider 创建一个新的 OpenAI 兼容 LLM 提供者。
func NewOpenAIProvider(apiURL, apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{
		apiURL:      strings.TrimRight(apiURL, "/"),
		apiKey:      apiKey,
		model:       model,
		temperature: defaultTemperature,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// Model 返回模型名称。
func (p *OpenAIProvider) Model() string { return p.model }

// chatRequest 是发送到 chat completions 接口的 JSON 请求体。
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature"`
}

// sseChunk 表示 SSE 响应中的一个流式数据块。
type sseChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// ChatStream 向 OpenAI 兼容 API 发送对话消息，返回一个 channel 逐块接收文本响应。
func (p *OpenAIProvider) ChatStream(ctx context.Context, messages []Message) (<-chan string, error) {
	bodyBytes, err := json.Marshal(chatRequest{
		Model:       p.model,
		Messages:    messages,
		Stream:      true,
		Temperature: p.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.apiURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求 [%s] 失败: %w", p.model, err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	ch := make(chan string)
	go p.readStream(ctx, resp.Body, ch)
	return ch, nil
}

func (p *OpenAIProvider) readStream(ctx context.Context, body io.ReadCloser, ch chan<- string) {
	defer close(ch)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		// 跳过空行和非 data 行
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		// 流结束信号
		if data == "[DONE]" {
			return
		}

		var chunk sseChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			logger.Debugf("[llm] 解析 SSE 数据块失败: %v", err)
			continue
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}

		select {
		case ch <- chunk.Choices[0].Delta.Content:
		case <-ctx.Done():
			logger.Debugf("[llm] 上下文已取消，停止读取 SSE")
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		logger.Warnf("[llm] 读取响应流出错: %v", err)
	}
}
