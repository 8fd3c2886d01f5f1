package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/iabetor/feedstream/internal/aggregator"
	"github.com/iabetor/feedstream/internal/logger"
	"github.com/iabetor/feedstream/internal/post"
	"github.com/iabetor/feedstream/internal/recommend"
)

const maxRequestBody = 1 << 20

// BatchRunner 批量聚合来源。
type BatchRunner interface {
	RunBatch(ctx context.Context, urls []string) <-chan aggregator.Result
}

// PostGenerator 生成社交媒体帖子。
type PostGenerator interface {
	Generate(ctx context.Context, req post.Request) (string, error)
}

// Recommender 推荐新的来源。
type Recommender interface {
	Recommend(ctx context.Context, topic string, existing []string) ([]recommend.Source, error)
}

// Handlers 聚合所有处理器的依赖。
type Handlers struct {
	runner      BatchRunner
	posts       PostGenerator
	recommender Recommender
	maxBatch    int
}

type streamRequest struct {
	URLs []string `json:"urls"`
}

type postResponse struct {
	Content string `json:"contenido"`
}

type recommendRequest struct {
	Topic    string   `json:"tema"`
	Existing []string `json:"urls_existentes"`
}

type recommendResponse struct {
	Sources []recommend.Source `json:"fuentes"`
}

// Health 存活检查。
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StreamNews 以 NDJSON 流式返回每个来源的最新新闻，按完成顺序输出。
func (h *Handlers) StreamNews(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidArgument, err.Error())
		return
	}

	urls := make([]string, 0, len(req.URLs))
	for _, u := range req.URLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		writeError(w, r, http.StatusBadRequest, CodeInvalidArgument, "urls must not be empty")
		return
	}
	if h.maxBatch > 0 && len(urls) > h.maxBatch {
		writeError(w, r, http.StatusBadRequest, CodeInvalidArgument,
			fmt.Sprintf("too many urls: %d > %d", len(urls), h.maxBatch))
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	n, err := aggregator.StreamNDJSON(r.Context(), w, h.runner.RunBatch(r.Context(), urls))
	if err != nil {
		logger.Debugf("[http] 流式输出中断，已写入 %d/%d 条: %v", n, len(urls), err)
	}
}

// GeneratePost 生成帖子。模型不可用时仍返回 200，contenido 中说明原因。
func (h *Handlers) GeneratePost(w http.ResponseWriter, r *http.Request) {
	var req post.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidArgument, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidArgument, err.Error())
		return
	}

	text, err := h.posts.Generate(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, post.ErrNoProvider):
		text = "Error: API Key no configurada"
	default:
		logger.Warnf("[http] 生成帖子失败: %v", err)
		text = "Error IA: " + err.Error()
	}
	writeJSON(w, http.StatusOK, postResponse{Content: text})
}

// RecommendSources 为主题推荐来源。
func (h *Handlers) RecommendSources(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidArgument, err.Error())
		return
	}

	sources, err := h.recommender.Recommend(r.Context(), req.Topic, req.Existing)
	switch {
	case err == nil:
	case errors.Is(err, recommend.ErrEmptyTopic):
		writeError(w, r, http.StatusBadRequest, CodeInvalidArgument, "tema must not be empty")
		return
	case errors.Is(err, recommend.ErrNoProvider):
		writeError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "llm provider not configured")
		return
	default:
		logger.Warnf("[http] 推荐来源失败: %v", err)
		writeError(w, r, http.StatusBadGateway, CodeUpstream, "recommendation failed")
		return
	}

	if sources == nil {
		sources = []recommend.Source{}
	}
	writeJSON(w, http.StatusOK, recommendResponse{Sources: sources})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}
