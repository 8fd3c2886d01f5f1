package recommend

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iabetor/feedstream/internal/database"
)

// Store 按主题保存已验证的来源列表。
type Store interface {
	Get(ctx context.Context, query string) ([]Source, error)
	Upsert(ctx context.Context, query string, sources []Source) error
}

// SQLiteStore 基于 search_cache 表的 Store 实现。
type SQLiteStore struct {
	db *database.DB
}

// NewSQLiteStore 创建 SQLiteStore，调用前需完成 Migrate。
func NewSQLiteStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get 返回主题的缓存结果，不存在时返回空列表。
func (s *SQLiteStore) Get(ctx context.Context, query string) ([]Source, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT results FROM search_cache WHERE query = ?`, query).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询推荐缓存失败: %w", err)
	}

	var sources []Source
	if err := json.Unmarshal([]byte(raw), &sources); err != nil {
		return nil, fmt.Errorf("解析推荐缓存失败: %w", err)
	}
	return sources, nil
}

// Upsert 覆盖写入主题的结果。
func (s *SQLiteStore) Upsert(ctx context.Context, query string, sources []Source) error {
	if sources == nil {
		sources = []Source{}
	}
	data, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("序列化推荐结果失败: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO search_cache (query, results, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(query) DO UPDATE SET
			results = excluded.results,
			updated_at = excluded.updated_at`,
		query, string(data))
	if err != nil {
		return fmt.Errorf("写入推荐缓存失败: %w", err)
	}
	return nil
}
