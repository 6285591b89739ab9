package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"testing"

	"fileident/pkg/batch"
	"fileident/pkg/kind"
	"fileident/pkg/meta"
	"fileident/pkg/types"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestRepo 构建隔离的内存数据库
func setupTestRepo(t *testing.T) (*meta.Repository, *gorm.DB) {
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

	metaDB := meta.NewWithConn(db)
	require.NoError(t, metaDB.AutoMigrate(meta.Models()...))
	return meta.NewRepository(metaDB), db
}

func mockCasID(input string) types.CasID {
	sum := sha256.Sum256([]byte(input))
	return types.CasID(hex.EncodeToString(sum[:]))
}

// seedPaths 在一个新 Location 下写入 n 个文件记录
func seedPaths(t *testing.T, repo *meta.Repository, n int) []meta.FilePath {
	t.Helper()
	ctx := context.Background()
	loc, err := repo.EnsureLocation(ctx, "/data/"+t.Name())
	require.NoError(t, err)

	rows := make([]meta.FilePath, n)
	for i := range rows {
		rows[i] = meta.FilePath{
			LocationID:       loc.ID,
			MaterializedPath: "/",
			Name:             fmt.Sprintf("file-%03d", i),
			Extension:        "txt",
			SizeInBytes:      int64(10 + i),
		}
	}
	require.NoError(t, repo.UpsertFilePaths(ctx, rows))
	return rows
}

func toLink(rows ...meta.FilePath) []batch.FilePathToLink {
	out := make([]batch.FilePathToLink, 0, len(rows))
	for _, r := range rows {
		out = append(out, batch.FilePathToLink{ID: r.ID, PubID: r.PubID, Kind: kind.Text})
	}
	return out
}

// racingStore 模拟另一个单元抢先创建：第一次查询总是返回"未找到"
type racingStore struct {
	Store
	misses  atomic.Int32
	creates atomic.Int32
}

func (s *racingStore) FindObjectByCasID(ctx context.Context, casID types.CasID) (*meta.Object, error) {
	if s.misses.Add(1) == 1 {
		return nil, nil
	}
	return s.Store.FindObjectByCasID(ctx, casID)
}

func (s *racingStore) CreateObject(ctx context.Context, obj *meta.Object, ops []meta.SyncOperation) error {
	s.creates.Add(1)
	return s.Store.CreateObject(ctx, obj, ops)
}
