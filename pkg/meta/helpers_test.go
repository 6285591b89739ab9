package meta

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"fileident/pkg/types"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// -----------------------------------------------------------------------------
// 通用辅助函数 (Helpers)
// 注意：文件名必须以 _test.go 结尾，否则会被编译进生产代码！
// -----------------------------------------------------------------------------

// setupTestRepo 构建隔离的测试环境
func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	metaDB := NewWithConn(db)
	require.NoError(t, metaDB.AutoMigrate(Models()...))

	return NewRepository(metaDB)
}

// mockCasID 生成合法的测试用 CasID
func mockCasID(input string) types.CasID {
	sum := sha256.Sum256([]byte(input))
	return types.CasID(hex.EncodeToString(sum[:]))
}

// mustLocation 创建 Location，失败直接终止
func mustLocation(t *testing.T, repo *Repository, path string) *Location {
	t.Helper()
	loc, err := repo.EnsureLocation(context.Background(), path)
	require.NoError(t, err)
	return loc
}

// fileRow 构造一条文件记录
func fileRow(loc types.LocationID, mp, name, ext string, size int64) FilePath {
	return FilePath{
		LocationID:       loc,
		MaterializedPath: mp,
		Name:             name,
		Extension:        ext,
		SizeInBytes:      size,
	}
}

// mustInsert 写入记录并返回带 ID 的结果
func mustInsert(t *testing.T, repo *Repository, rows ...FilePath) []FilePath {
	t.Helper()
	require.NoError(t, repo.UpsertFilePaths(context.Background(), rows))
	return rows
}
