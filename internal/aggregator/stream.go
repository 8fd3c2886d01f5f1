package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// StreamNDJSON 把每个结果写成一行 JSON，写完立即 flush。
// results 关闭时正常结束，不输出结束标记；返回已写入的记录数。
func StreamNDJSON(ctx context.Context, w io.Writer, results <-chan Result) (int, error) {
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	n := 0
	for {
		select {
		case r, ok := <-results:
			if !ok {
				return n, nil
			}
			if err := enc.Encode(r); err != nil {
				return n, fmt.Errorf("写入 %s 结果失败: %w", r.URL, err)
			}
			n++
			if flusher != nil {
				flusher.Flush()
			}
		case <-ctx.Done():
			return n, ctx.Err()
		}
	}
}
