package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/iabetor/feedstream/internal/aggregator"
	"github.com/iabetor/feedstream/internal/cache"
	"github.com/iabetor/feedstream/internal/config"
	"github.com/iabetor/feedstream/internal/llm"
	"github.com/iabetor/feedstream/internal/logger"
	"github.com/iabetor/feedstream/internal/metrics"
	"github.com/iabetor/feedstream/internal/rss"
)

// engine 聚合链路上的所有组件，serve 与 fetch 共用。
type engine struct {
	metrics  *metrics.Metrics
	locator  *rss.Locator
	governor *aggregator.Governor
}

func newEngine(cfg *config.Config, withRuntimeMetrics bool) *engine {
	reg := prometheus.NewRegistry()
	if withRuntimeMetrics {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	m := metrics.New(reg)

	client := rss.NewHTTPClient(rss.HTTPOptions{
		UserAgent:          cfg.HTTP.UserAgent,
		InsecureSkipVerify: cfg.HTTP.InsecureEnabled(),
		MaxRedirects:       cfg.HTTP.MaxRedirects,
	})
	parser := rss.NewParser(cfg.Aggregator.ParseWorkers)

	locations := cache.New[string](cfg.Cache.LocationCapacity, cfg.Cache.LocationTTL)
	items := cache.New[[]rss.NewsItem](cfg.Cache.ItemsCapacity, cfg.Cache.ItemsTTL)

	locator := rss.NewLocator(client, parser, locations, rss.LocatorOptions{
		ProbeTimeout: cfg.Aggregator.ProbeTimeout,
		MaxBodyBytes: cfg.Aggregator.MaxBodyBytes,
		Metrics:      m,
	})
	processor := rss.NewProcessor(locator, client, parser, items, rss.ProcessorOptions{
		FetchTimeout:   cfg.Aggregator.FetchTimeout,
		ItemsPerSource: cfg.Aggregator.ItemsPerSource,
		SummaryMax:     cfg.Aggregator.SummaryMax,
		MaxBodyBytes:   cfg.Aggregator.MaxBodyBytes,
		Metrics:        m,
	})

	governor := aggregator.New(processor, aggregator.Options{
		Concurrency:     cfg.Aggregator.Concurrency,
		Deadline:        cfg.Aggregator.BatchDeadline,
		ReportAbandoned: cfg.Aggregator.ReportAbandonedEnabled(),
	}, m)

	logger.Infof("[main] 聚合引擎就绪: concurrency=%d deadline=%s",
		cfg.Aggregator.Concurrency, cfg.Aggregator.BatchDeadline)
	return &engine{metrics: m, locator: locator, governor: governor}
}

// newProvider 按主模型加备用模型的顺序构建 LLM。
// 没有任何可用模型时返回 nil，依赖它的接口会报告未配置。
func newProvider(cfg config.LLMConfig) llm.Provider {
	models := make([]llm.ModelConfig, 0, len(cfg.Fallbacks)+1)
	models = append(models, llm.ModelConfig{
		Name:   cfg.Model,
		APIURL: cfg.APIURL,
		APIKey: cfg.APIKey,
		Model:  cfg.Model,
	})
	for _, fb := range cfg.Fallbacks {
		apiURL := fb.APIURL
		if apiURL == "" {
			apiURL = cfg.APIURL
		}
		models = append(models, llm.ModelConfig{
			Name:   fb.Name,
			APIURL: apiURL,
			APIKey: fb.APIKey,
			Model:  fb.Model,
		})
	}

	mp, err := llm.NewMultiProvider(models)
	if err != nil {
		logger.Warnf("[main] LLM 未启用: %v", err)
		return nil
	}
	return mp
}
