package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/iabetor/feedstream/internal/config"
	"github.com/iabetor/feedstream/internal/logger"
)

func rootApp() *cli.App {
	return &cli.App{
		Name:  "feedstream",
		Usage: "并发聚合 RSS/Atom 新闻源并以 NDJSON 流式返回",
		Description: `feedstream 接收一批网站地址，自动发现每个网站的 Feed，
		抓取并规范化最新条目，按完成顺序逐条返回。

		配置文件中的 ${VAR} 会按环境变量展开，例如:

		llm.api_key: ${OPENAI_API_KEY}
		`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径，留空使用默认配置",
				EnvVars: []string{"FEEDSTREAM_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "覆盖配置中的日志级别",
				EnvVars: []string{"FEEDSTREAM_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			serveCmd(),
			fetchCmd(),
			migrateCmd(),
		},
		Action: func(ctx *cli.Context) error {
			return cli.ShowAppHelp(ctx)
		},
	}
}

// loadConfig 读取配置并初始化全局日志。
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	if path := ctx.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if lvl := ctx.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	if cfg.HTTP.InsecureEnabled() {
		fmt.Fprintln(os.Stderr, "[main] 注意: 抓取时跳过 TLS 证书校验 (http.insecure_skip_verify)")
	}
	return cfg, nil
}
