package aggregator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/iabetor/feedstream/internal/logger"
	"github.com/iabetor/feedstream/internal/metrics"
	"github.com/iabetor/feedstream/internal/rss"
)

const (
	defaultConcurrency = 5
	defaultDeadline    = 5 * time.Second
)

// Pipeline 处理单个来源。
type Pipeline interface {
	Process(ctx context.Context, sourceURL string) ([]rss.NewsItem, error)
}

// Options Governor 配置。
type Options struct {
	// Concurrency 单个批次同时运行的处理数。
	Concurrency int
	// Deadline 批次总时长，从批次开始计时。
	Deadline time.Duration
	// ReportAbandoned 截止时为未完成的来源输出 error 结果，否则直接省略。
	ReportAbandoned bool
}

// Governor 限制并发并执行批次截止时间。
type Governor struct {
	pipeline        Pipeline
	concurrency     int
	deadline        time.Duration
	reportAbandoned bool
	metrics         *metrics.Metrics
}

// New 创建 Governor。m 可以为 nil。
func New(pipeline Pipeline, opts Options, m *metrics.Metrics) *Governor {
	g := &Governor{
		pipeline:        pipeline,
		concurrency:     opts.Concurrency,
		deadline:        opts.Deadline,
		reportAbandoned: opts.ReportAbandoned,
		metrics:         m,
	}
	if g.concurrency <= 0 {
		g.concurrency = defaultConcurrency
	}
	if g.deadline <= 0 {
		g.deadline = defaultDeadline
	}
	return g
}

type indexed struct {
	index int
	Result
}

// RunBatch 提交 urls 中的所有来源，按完成顺序返回结果。
// 通道在所有来源完成、截止时间到达或 ctx 取消后关闭。
//
// 截止后仍在运行的处理不会被取消，它们在后台完成并写入缓存，结果被丢弃。
func (g *Governor) RunBatch(ctx context.Context, urls []string) <-chan Result {
	out := make(chan Result)
	go g.run(ctx, urls, out)
	return out
}

func (g *Governor) run(ctx context.Context, urls []string, out chan<- Result) {
	defer close(out)
	if len(urls) == 0 {
		return
	}

	g.metrics.BatchStarted()
	defer g.metrics.BatchFinished()

	start := time.Now()
	timer := time.NewTimer(g.deadline)
	defer timer.Stop()

	// gateCtx 只控制是否还能启动新的处理；处理本身使用脱离取消的 context
	gateCtx, stopGate := context.WithCancel(ctx)
	defer stopGate()
	detached := context.WithoutCancel(ctx)

	// 缓冲区足够放下所有结果，被放弃的处理写入后永远不会阻塞
	done := make(chan indexed, len(urls))
	go g.dispatch(gateCtx, detached, urls, done)

	completed := make([]bool, len(urls))
	remaining := len(urls)
	for remaining > 0 {
		select {
		case r := <-done:
			completed[r.index] = true
			remaining--
			if !g.emit(ctx, out, r.Result) {
				return
			}

		case <-timer.C:
			stopGate()
			// 已经完成但尚未取出的结果仍然输出
			for drained := false; !drained; {
				select {
				case r := <-done:
					completed[r.index] = true
					remaining--
					if !g.emit(ctx, out, r.Result) {
						return
					}
				default:
					drained = true
				}
			}
			if remaining > 0 {
				logger.Warnf("[aggregator] 批次截止 %v，%d/%d 个来源未完成", g.deadline, remaining, len(urls))
			}
			if g.reportAbandoned {
				for i, url := range urls {
					if completed[i] {
						continue
					}
					if !g.emit(ctx, out, errorResult(url, ErrAbandoned)) {
						return
					}
				}
			}
			return

		case <-ctx.Done():
			logger.Debugf("[aggregator] 调用方取消批次: %v", ctx.Err())
			return
		}
	}
	logger.Debugf("[aggregator] 批次完成: %d 个来源，耗时 %v", len(urls), time.Since(start))
}

// dispatch 按输入顺序经计数闸门依次启动处理，闸门关闭后剩余来源不再启动。
func (g *Governor) dispatch(gateCtx, execCtx context.Context, urls []string, done chan<- indexed) {
	gate := semaphore.NewWeighted(int64(g.concurrency))
	for i, url := range urls {
		if err := gate.Acquire(gateCtx, 1); err != nil {
			return
		}
		// Acquire 可能和截止同时成功
		if gateCtx.Err() != nil {
			gate.Release(1)
			return
		}
		go func(i int, url string) {
			defer gate.Release(1)
			done <- indexed{index: i, Result: g.execute(execCtx, url)}
		}(i, url)
	}
}

func (g *Governor) execute(ctx context.Context, url string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[aggregator] 处理 %s panic: %v", url, r)
			res = errorResult(url, fmt.Errorf("panic: %v", r))
		}
	}()

	items, err := g.pipeline.Process(ctx, url)
	if err != nil {
		return errorResult(url, err)
	}
	return okResult(url, items)
}

// emit 把结果交给消费者，ctx 取消时返回 false。
func (g *Governor) emit(ctx context.Context, out chan<- Result, r Result) bool {
	if r.Err != nil {
		logger.Debugf("[aggregator] %s 失败(%s): %v", r.URL, classify(r.Err), r.Err)
	}
	select {
	case out <- r:
		g.metrics.ObserveResult(r.Status)
		return true
	case <-ctx.Done():
		return false
	}
}
