// Package database 管理 SQLite 连接与表结构迁移。
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/iabetor/feedstream/internal/logger"
)

// DefaultPath 未配置路径时使用的数据库文件。
const DefaultPath = "./data/feedstream.db"

// DB 是统一的 SQLite 数据库连接。
type DB struct {
	*sql.DB
	path string
}

// Open 打开或创建数据库。dbPath 为 ":memory:" 时使用内存库。
func Open(dbPath string) (*DB, error) {
	if dbPath == "" {
		dbPath = DefaultPath
	}

	if dbPath != ":memory:" {
		// 确保目录存在
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	// 内存库每个连接都是独立的数据库；文件库单写者也避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("执行 %s 失败: %w", p, err)
		}
	}

	logger.Infof("[database] 数据库已打开: %s", dbPath)
	return &DB{DB: db, path: dbPath}, nil
}

// Path 返回数据库文件路径。
func (db *DB) Path() string {
	return db.path
}

// Migrate 运行数据库迁移。
func (db *DB) Migrate() error {
	migrations := []string{
		// 来源推荐缓存，results 为 JSON 数组
		`CREATE TABLE IF NOT EXISTS search_cache (
			query TEXT PRIMARY KEY,
			results TEXT NOT NULL DEFAULT '[]',
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("数据库迁移失败: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_search_cache_updated_at ON search_cache(updated_at)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			logger.Warnf("[database] 创建索引失败: %v", err)
		}
	}

	logger.Info("[database] 数据库迁移完成")
	return nil
}

// Close 关闭数据库连接。
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}
