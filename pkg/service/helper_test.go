package service

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"fileident/pkg/app"
	"fileident/pkg/meta"
	"fileident/pkg/storage/disk"
	"fileident/pkg/synclog"
	"fileident/pkg/tasks"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestApp 是所有 Service 测试共享的基础设施初始化逻辑
// 它返回构建好的 App 实例
func setupTestApp(t *testing.T) *app.App {
	tmpDir := t.TempDir()

	// 1. DB & Meta
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	metaDB := meta.NewWithConn(db)
	require.NoError(t, metaDB.AutoMigrate(meta.Models()...))
	repo := meta.NewRepository(metaDB)

	// 2. 断点存储
	checkpoints, err := disk.NewAdapter(filepath.Join(tmpDir, "checkpoints"))
	require.NoError(t, err)

	a := &app.App{
		DB:          metaDB,
		Repo:        repo,
		Objects:     repo,
		Checkpoints: checkpoints,
		Sync:        synclog.NewManager("test"),
		Pool:        tasks.NewPool(2),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	t.Cleanup(func() { a.Close() })
	return a
}

// writeTree 在一个新的临时目录中创建文件，返回目录路径
func writeTree(t *testing.T, files map[string]string) string {
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	return root
}
