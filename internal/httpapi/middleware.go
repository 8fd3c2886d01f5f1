package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iabetor/feedstream/internal/auth"
	"github.com/iabetor/feedstream/internal/logger"
)

// HeaderRequestID 请求 ID 头。
const HeaderRequestID = "X-Request-Id"

// Middleware 标准 net/http 中间件。
type Middleware func(http.Handler) http.Handler

type ctxKey int

const (
	ctxRequestID ctxKey = iota
	ctxPrincipal
)

// RequestIDFrom 返回当前请求的 ID。
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxRequestID).(string)
	return id
}

// PrincipalFrom 返回 RequirePremium 写入的调用方身份。
func PrincipalFrom(ctx context.Context) *auth.Principal {
	p, _ := ctx.Value(ctxPrincipal).(*auth.Principal)
	return p
}

// statusWriter 记录状态码与写入字节数，并透传 Flush。
type statusWriter struct {
	http.ResponseWriter
	status int
	count  int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.count += n
	return n, err
}

// Flush 流式响应依赖逐条 flush。
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Recover 把 panic 转换为 500 internal，细节只写日志。
func Recover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Z.Error("panic",
						zap.String("path", r.URL.Path),
						zap.Any("reason", rec),
						zap.String("request_id", RequestIDFrom(r.Context())),
					)
					writeError(w, r, http.StatusInternalServerError, CodeInternal, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID 沿用上游传入的 X-Request-Id，否则生成 UUID。
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderRequestID)
			if id == "" {
				id = uuid.NewString()
				r.Header.Set(HeaderRequestID, id)
			}
			w.Header().Set(HeaderRequestID, id)

			ctx := context.WithValue(r.Context(), ctxRequestID, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Logging 每个请求写一条访问日志。l 为 nil 时使用全局 logger。
func Logging(l *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := l
			if log == nil {
				log = logger.Z
			}

			sw := &statusWriter{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(sw, r)

			status := sw.status
			if status == 0 {
				status = http.StatusOK
			}
			log.Info("http",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("dur", time.Since(start)),
				zap.Int("bytes", sw.count),
				zap.String("request_id", RequestIDFrom(r.Context())),
			)
		})
	}
}

// RequirePremium 只放行带有效令牌的高级用户。
func RequirePremium(v auth.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeError(w, r, http.StatusUnauthorized, CodeUnauthenticated, "missing token")
				return
			}
			if v == nil {
				writeError(w, r, http.StatusInternalServerError, CodeInternal, "identity provider not configured")
				return
			}

			p, err := v.Verify(r.Context(), auth.BearerToken(header))
			switch {
			case err == nil:
			case errors.Is(err, auth.ErrNotConfigured):
				writeError(w, r, http.StatusInternalServerError, CodeInternal, "identity provider not configured")
				return
			case errors.Is(err, auth.ErrForbidden):
				writeError(w, r, http.StatusForbidden, CodeForbidden, "premium subscription required")
				return
			default:
				logger.Debugf("[http] 令牌校验失败: %v", err)
				writeError(w, r, http.StatusUnauthorized, CodeUnauthenticated, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ctxPrincipal, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
