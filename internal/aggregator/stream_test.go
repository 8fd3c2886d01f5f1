package aggregator

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/iabetor/feedstream/internal/metrics"
	"github.com/iabetor/feedstream/internal/rss"
)

func TestStreamNDJSONWritesOneLinePerResult(t *testing.T) {
	published := time.Date(2026, 2, 19, 8, 0, 0, 0, time.UTC)
	results := make(chan Result, 2)
	results <- okResult("https://a.example.com", []rss.NewsItem{{
		Title:       "Hola & adiós",
		Link:        "https://a.example.com/1",
		Summary:     "texto...",
		Source:      "A",
		OriginURL:   "https://a.example.com",
		PublishedAt: &published,
	}})
	results <- errorResult("https://b.example.com", rss.ErrNetwork)
	close(results)

	rec := httptest.NewRecorder()
	n, err := StreamNDJSON(context.Background(), rec, results)
	if err != nil {
		t.Fatalf("StreamNDJSON 失败: %v", err)
	}
	if n != 2 {
		t.Fatalf("期望写入 2 条记录，实际 %d", n)
	}
	if !rec.Flushed {
		t.Error("每条记录写入后应 flush")
	}

	lines := strings.Split(strings.TrimRight(rec.Body.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("期望 2 行，实际 %d 行: %q", len(lines), rec.Body.String())
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("第一行不是合法 JSON: %v", err)
	}
	if first["url"] != "https://a.example.com" || first["status"] != "ok" {
		t.Errorf("第一行字段不正确: %v", first)
	}
	items, _ := first["noticias"].([]any)
	if len(items) != 1 {
		t.Fatalf("noticias 应有 1 条: %v", first["noticias"])
	}
	item := items[0].(map[string]any)
	for _, key := range []string{"titulo", "link", "resumen", "fuente", "url_origen"} {
		if _, ok := item[key]; !ok {
			t.Errorf("新闻缺少字段 %s: %v", key, item)
		}
	}
	if item["fecha"] != "2026-02-19T08:00:00Z" {
		t.Errorf("fecha 应为 UTC ISO-8601，实际 %v", item["fecha"])
	}
	if !strings.Contains(lines[0], "Hola & adiós") {
		t.Errorf("不应转义 HTML 字符: %s", lines[0])
	}

	if lines[1] != `{"url":"https://b.example.com","status":"error"}` {
		t.Errorf("失败记录不应包含 noticias，实际 %s", lines[1])
	}
}

func TestStreamNDJSONOmitsMissingDate(t *testing.T) {
	results := make(chan Result, 1)
	results <- okResult("u", []rss.NewsItem{{Title: "t"}})
	close(results)

	var sb strings.Builder
	if _, err := StreamNDJSON(context.Background(), &sb, results); err != nil {
		t.Fatalf("StreamNDJSON 失败: %v", err)
	}
	if strings.Contains(sb.String(), "fecha") {
		t.Errorf("没有时间的新闻不应输出 fecha: %s", sb.String())
	}
}

func TestStreamNDJSONStopsOnCancel(t *testing.T) {
	results := make(chan Result)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	n, err := StreamNDJSON(ctx, &strings.Builder{}, results)
	if !errors.Is(err, context.Canceled) || n != 0 {
		t.Errorf("期望 context.Canceled 和 0 条记录，实际 %d, %v", n, err)
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("broken pipe") }

func TestStreamNDJSONWriteError(t *testing.T) {
	results := make(chan Result, 1)
	results <- okResult("u", nil)
	close(results)

	if _, err := StreamNDJSON(context.Background(), failingWriter{}, results); err == nil {
		t.Error("写入失败时应返回错误")
	}
}

func TestGovernorStreamsThroughNDJSON(t *testing.T) {
	p := newFakePipeline(map[string]fakeSource{
		"ok":   {delay: 5 * time.Millisecond},
		"fail": {delay: 5 * time.Millisecond, err: rss.ErrParse},
	})
	m := metrics.New(nil)
	g := New(p, Options{Concurrency: 2, Deadline: time.Second}, m)

	rec := httptest.NewRecorder()
	n, err := StreamNDJSON(context.Background(), rec, g.RunBatch(context.Background(), []string{"ok", "fail"}))
	if err != nil || n != 2 {
		t.Fatalf("期望 2 条记录，实际 %d, %v", n, err)
	}

	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	statuses := map[string]string{}
	for scanner.Scan() {
		var r struct {
			URL    string `json:"url"`
			Status string `json:"status"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("行不是合法 JSON: %v", err)
		}
		statuses[r.URL] = r.Status
	}
	if statuses["ok"] != StatusOK || statuses["fail"] != StatusError {
		t.Errorf("状态不正确: %v", statuses)
	}

	mrec := httptest.NewRecorder()
	m.Handler().ServeHTTP(mrec, httptest.NewRequest("GET", "/metrics", nil))
	body := mrec.Body.String()
	for _, want := range []string{
		`feedstream_batch_results_total{status="ok"} 1`,
		`feedstream_batch_results_total{status="error"} 1`,
		`feedstream_batches_in_flight 0`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("指标输出缺少 %s", want)
		}
	}
}
