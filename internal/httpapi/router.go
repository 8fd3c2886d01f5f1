// Package httpapi 提供 feedstream 的 HTTP 接口。
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/iabetor/feedstream/internal/auth"
)

// Deps 处理器依赖。
type Deps struct {
	Runner      BatchRunner
	Posts       PostGenerator
	Recommender Recommender
	Verifier    auth.Verifier
	// Metrics /metrics 处理器，为 nil 时不注册。
	Metrics http.Handler
}

// Options 路由配置。
type Options struct {
	Logger      *zap.Logger
	BasePath    string
	CORSOrigins []string
	// MaxInFlight 同时处理的请求上限，0 表示不限制。
	MaxInFlight int
	MaxBatch    int
}

// NewRouter 组装中间件与路由。
func NewRouter(deps Deps, opts Options) http.Handler {
	root := chi.NewRouter()

	// 外层到内层
	root.Use(
		Recover(),
		RequestID(),
		Logging(opts.Logger),
		cors.Handler(corsOptions(opts.CORSOrigins)),
	)
	if opts.MaxInFlight > 0 {
		root.Use(chimw.Throttle(opts.MaxInFlight))
	}
	// 只压缩 JSON，NDJSON 流不能被缓冲
	root.Use(chimw.Compress(5, "application/json"))

	h := &Handlers{
		runner:      deps.Runner,
		posts:       deps.Posts,
		recommender: deps.Recommender,
		maxBatch:    opts.MaxBatch,
	}

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h, deps)
		root.Mount(opts.BasePath, sub)
		return root
	}
	registerRoutes(root, h, deps)
	return root
}

func registerRoutes(r chi.Router, h *Handlers, deps Deps) {
	r.Get("/health", h.Health)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Post("/stream-noticias", h.StreamNews)

	r.Group(func(r chi.Router) {
		r.Use(RequirePremium(deps.Verifier))
		r.Post("/generar-post", h.GeneratePost)
		r.Post("/recomendar-fuentes", h.RecommendSources)
	})
}

func corsOptions(origins []string) cors.Options {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	allowAll := false
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{HeaderRequestID},
		AllowCredentials: !allowAll,
		MaxAge:           300,
	}
}
