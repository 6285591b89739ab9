package job

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"fileident/pkg/batch"
	"fileident/pkg/isopath"
	"fileident/pkg/meta"
	"fileident/pkg/processor"
	"fileident/pkg/synclog"
	"fileident/pkg/tasks"
	"fileident/pkg/types"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// -----------------------------------------------------------------------------
// 测试环境：临时目录作为 Location + 内存 SQLite + 真实的工作池
// -----------------------------------------------------------------------------

type fixture struct {
	t    *testing.T
	repo *meta.Repository
	db   *gorm.DB
	root string
	loc  *meta.Location
	pool *tasks.Pool
	spy  *spyDispatcher
	sync *synclog.Manager
}

func newFixture(t *testing.T) *fixture {
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
	repo := meta.NewRepository(metaDB)

	root := t.TempDir()
	loc, err := repo.EnsureLocation(context.Background(), root)
	require.NoError(t, err)

	pool := tasks.NewPool(4)
	t.Cleanup(pool.Close)

	return &fixture{
		t:    t,
		repo: repo,
		db:   db,
		root: loc.Path,
		loc:  loc,
		pool: pool,
		spy:  &spyDispatcher{inner: pool},
		sync: synclog.NewManager(""),
	}
}

func (f *fixture) deps() Deps {
	return Deps{
		Repo:       f.repo,
		Objects:    f.repo,
		Sync:       f.sync,
		Dispatcher: f.spy,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// file 在磁盘上写入文件，并插入对应的路径记录 (大小取自内容)
func (f *fixture) file(rel, content string) meta.FilePath {
	f.t.Helper()
	full := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(f.t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(f.t, os.WriteFile(full, []byte(content), 0644))
	return f.record(rel, int64(len(content)))
}

// record 只插入路径记录，不碰磁盘
func (f *fixture) record(rel string, size int64) meta.FilePath {
	f.t.Helper()
	iso, err := isopath.FromRelative(f.loc.ID, rel, false)
	require.NoError(f.t, err)

	rows := []meta.FilePath{{
		LocationID:       f.loc.ID,
		MaterializedPath: iso.MaterializedPath,
		Name:             iso.Name,
		Extension:        iso.Extension,
		SizeInBytes:      size,
	}}
	require.NoError(f.t, f.repo.UpsertFilePaths(context.Background(), rows))
	return rows[0]
}

// reload 重新读取记录
func (f *fixture) reload(rows ...meta.FilePath) map[types.FilePathID]meta.FilePath {
	f.t.Helper()
	ids := make([]types.FilePathID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	stored, err := f.repo.GetFilePaths(context.Background(), ids)
	require.NoError(f.t, err)

	out := make(map[types.FilePathID]meta.FilePath, len(stored))
	for _, r := range stored {
		out[r.ID] = r
	}
	return out
}

func (f *fixture) countObjects() int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.db.Model(&meta.Object{}).Count(&n).Error)
	return n
}

// -----------------------------------------------------------------------------
// spyDispatcher 记录每个派发出去的单元，再交给真正的工作池
// -----------------------------------------------------------------------------

type dispatchedUnit struct {
	batch    batch.Batch
	priority bool
}

type spyDispatcher struct {
	inner tasks.Dispatcher

	mu    sync.Mutex
	units []dispatchedUnit
}

func (s *spyDispatcher) Dispatch(ctx context.Context, task tasks.Task) (*tasks.Handle, error) {
	if p, ok := task.(*processor.ObjectProcessor); ok {
		s.mu.Lock()
		s.units = append(s.units, dispatchedUnit{batch: p.Batch().Clone(), priority: p.WithPriority()})
		s.mu.Unlock()
	}
	return s.inner.Dispatch(ctx, task)
}

func (s *spyDispatcher) dispatched() []dispatchedUnit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]dispatchedUnit, len(s.units))
	copy(out, s.units)
	return out
}

func (s *spyDispatcher) reset() {
	s.mu.Lock()
	s.units = nil
	s.mu.Unlock()
}

// failingStore 让所有对象创建都失败
type failingStore struct {
	processor.Store
	err error
}

func (s failingStore) CreateObject(context.Context, *meta.Object, []meta.SyncOperation) error {
	return s.err
}
