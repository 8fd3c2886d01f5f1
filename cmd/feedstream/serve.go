package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/iabetor/feedstream/internal/auth"
	"github.com/iabetor/feedstream/internal/database"
	"github.com/iabetor/feedstream/internal/httpapi"
	"github.com/iabetor/feedstream/internal/logger"
	"github.com/iabetor/feedstream/internal/post"
	"github.com/iabetor/feedstream/internal/recommend"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "启动 HTTP 服务",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "监听地址，覆盖 server.addr",
				EnvVars: []string{"FEEDSTREAM_ADDR"},
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if addr := ctx.String("addr"); addr != "" {
				cfg.Server.Addr = addr
			}

			eng := newEngine(cfg, true)
			provider := newProvider(cfg.LLM)

			db, err := database.Open(cfg.Recommend.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(); err != nil {
				return err
			}

			recommender := recommend.NewService(recommend.NewSQLiteStore(db), provider, eng.locator, recommend.Options{
				MinCached: cfg.Recommend.MinCached,
				MaxIgnore: cfg.Recommend.MaxIgnore,
			})
			if cfg.Auth.InsecureDev {
				logger.Warnf("[main] auth.insecure_dev 已开启，所有令牌都按高级用户放行")
			}
			verifier := auth.NewHTTPVerifier(auth.Options{
				URL:         cfg.Auth.URL,
				Key:         cfg.Auth.Key,
				AdminEmails: cfg.Auth.AdminEmails,
				InsecureDev: cfg.Auth.InsecureDev,
			})

			router := httpapi.NewRouter(httpapi.Deps{
				Runner:      eng.governor,
				Posts:       post.NewGenerator(provider),
				Recommender: recommender,
				Verifier:    verifier,
				Metrics:     eng.metrics.Handler(),
			}, httpapi.Options{
				Logger:      logger.Z,
				BasePath:    cfg.Server.BasePath,
				CORSOrigins: cfg.Server.CORSOrigins,
				MaxInFlight: cfg.Server.MaxInFlight,
				MaxBatch:    cfg.Server.MaxBatch,
			})

			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			sigCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Infof("[main] feedstream 监听 %s", cfg.Server.Addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-sigCtx.Done():
				logger.Infof("[main] 收到退出信号，正在关闭...")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warnf("[main] 优雅关闭超时: %v", err)
				_ = srv.Close()
			}
			logger.Infof("[main] feedstream 已停止")
			return nil
		},
	}
}
