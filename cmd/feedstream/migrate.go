package main

import (
	"github.com/urfave/cli/v2"

	"github.com/iabetor/feedstream/internal/database"
	"github.com/iabetor/feedstream/internal/logger"
)

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:        "migrate",
		Usage:       "创建推荐缓存数据库",
		Description: `在 recommend.db_path 指定的位置创建 SQLite 数据库和表结构，已存在时不做修改。`,
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync()

			db, err := database.Open(cfg.Recommend.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(); err != nil {
				return err
			}
			logger.Infof("[main] 数据库已就绪: %s", db.Path())
			return nil
		},
	}
}
