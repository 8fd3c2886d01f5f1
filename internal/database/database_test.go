package database

import (
	"path/filepath"
	"testing"
)

func TestOpenAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "feedstream.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open 失败: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %s, 期望 %s", db.Path(), path)
	}

	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate 失败: %v", err)
	}
	// 迁移可重复执行
	if err := db.Migrate(); err != nil {
		t.Fatalf("第二次 Migrate 失败: %v", err)
	}

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='search_cache'`).Scan(&name)
	if err != nil {
		t.Fatalf("search_cache 表不存在: %v", err)
	}
}

func TestOpenInMemory(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open 失败: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate 失败: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO search_cache (query, results) VALUES ('go', '[]')`); err != nil {
		t.Fatalf("插入失败: %v", err)
	}
}
