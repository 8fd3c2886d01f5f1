// Package post 根据一条新闻生成社交媒体帖子。
package post

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iabetor/feedstream/internal/llm"
)

// 请求字段默认值。
const (
	DefaultStyle    = "Formal"
	DefaultLanguage = "Español"
	DefaultLength   = "Medio"
)

// ErrNoProvider 未配置大模型。
var ErrNoProvider = errors.New("llm provider not configured")

// Request 生成请求。
type Request struct {
	Title    string `json:"titulo"`
	Summary  string `json:"resumen"`
	Source   string `json:"fuente"`
	Style    string `json:"estilo"`
	Language string `json:"idioma"`
	Length   string `json:"longitud"`
}

// Normalize 填充缺省字段。
func (r *Request) Normalize() {
	if strings.TrimSpace(r.Style) == "" {
		r.Style = DefaultStyle
	}
	if strings.TrimSpace(r.Language) == "" {
		r.Language = DefaultLanguage
	}
	if strings.TrimSpace(r.Length) == "" {
		r.Length = DefaultLength
	}
}

// Validate 标题是必填项。
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("titulo 不能为空")
	}
	return nil
}

// Generator 调用大模型生成帖子。
type Generator struct {
	provider llm.Provider
}

// NewGenerator 创建 Generator，provider 为 nil 时 Generate 返回 ErrNoProvider。
func NewGenerator(provider llm.Provider) *Generator {
	return &Generator{provider: provider}
}

// Generate 返回帖子正文。
func (g *Generator) Generate(ctx context.Context, req Request) (string, error) {
	if g == nil || g.provider == nil {
		return "", ErrNoProvider
	}
	req.Normalize()

	text, err := llm.Complete(ctx, g.provider, Messages(req))
	if err != nil {
		return "", fmt.Errorf("生成帖子失败: %w", err)
	}
	return text, nil
}

// LengthRule 长度要求。
func LengthRule(length string) string {
	switch length {
	case "Corto":
		return "Maximo 30 palabras. Muy conciso."
	case "Largo":
		return "Minimo 150 palabras. Detallado y profundo."
	default:
		return "Entre 50 y 80 palabras. Equilibrado."
	}
}

// Messages 构造 system 与 user 提示词。
func Messages(req Request) []llm.Message {
	system := fmt.Sprintf("Eres un experto en redes sociales. Escribe en %s.", req.Language)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Crea un post de LinkedIn con estilo '%s'.\n", req.Style)
	fmt.Fprintf(&sb, "Restriccion de longitud: %s\n", LengthRule(req.Length))
	fmt.Fprintf(&sb, "Basado en esta noticia: %s\n", req.Title)
	fmt.Fprintf(&sb, "Resumen: %s\n", req.Summary)
	fmt.Fprintf(&sb, "Fuente: %s\n", req.Source)
	sb.WriteString("REGLAS CRÍTICAS:\n")
	sb.WriteString("1. PROHIBIDO USAR EMOJIS. No uses ni uno solo.\n")
	sb.WriteString("2. Solo el texto del post, sin introducciones.")

	return []llm.Message{llm.System(system), llm.User(sb.String())}
}
