package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/iabetor/feedstream/internal/aggregator"
	"github.com/iabetor/feedstream/internal/logger"
)

func fetchCmd() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "聚合一批地址并把 NDJSON 结果写到标准输出",
		ArgsUsage: "URL [URL...]",
		Action: func(ctx *cli.Context) error {
			urls := make([]string, 0, ctx.NArg())
			for _, u := range ctx.Args().Slice() {
				if u = strings.TrimSpace(u); u != "" {
					urls = append(urls, u)
				}
			}
			if len(urls) == 0 {
				return cli.Exit("至少需要一个 URL", 2)
			}

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync()

			eng := newEngine(cfg, false)
			runCtx, cancel := context.WithCancel(ctx.Context)
			defer cancel()

			n, err := aggregator.StreamNDJSON(runCtx, os.Stdout, eng.governor.RunBatch(runCtx, urls))
			if err != nil {
				return fmt.Errorf("写出结果失败: %w", err)
			}
			logger.Infof("[main] 共输出 %d/%d 条结果", n, len(urls))
			return nil
		},
	}
}
