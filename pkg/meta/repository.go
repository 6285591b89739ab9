package meta

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"fileident/pkg/types"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrLocationNotFound = errors.New("location not found")
	ErrObjectExists     = errors.New("object with this cas_id already exists")
)

// Repository 封装所有对 SQL 数据库的操作
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// -----------------------------------------------------------------------------
// 1. Location
// -----------------------------------------------------------------------------

// EnsureLocation 按绝对路径查找 Location，不存在则创建 (幂等)
func (r *Repository) EnsureLocation(ctx context.Context, path string) (*Location, error) {
	path = filepath.Clean(path)
	conn := r.db.GetConn().WithContext(ctx)

	loc := Location{
		PubID: uuid.NewString(),
		Name:  filepath.Base(path),
		Path:  path,
	}
	// 如果 Path 已存在，则什么都不做 (Do Nothing)
	err := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoNothing: true,
	}).Create(&loc).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create location: %w", err)
	}

	var stored Location
	if err := conn.Where("path = ?", path).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to load location: %w", err)
	}
	return &stored, nil
}

// GetLocation 按主键读取 Location
func (r *Repository) GetLocation(ctx context.Context, id types.LocationID) (*Location, error) {
	var loc Location
	err := r.db.GetConn().WithContext(ctx).
		Where("id = ?", id).
		First(&loc).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLocationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// FindLocationByPath 按绝对路径读取 Location
func (r *Repository) FindLocationByPath(ctx context.Context, path string) (*Location, error) {
	var loc Location
	err := r.db.GetConn().WithContext(ctx).
		Where("path = ?", filepath.Clean(path)).
		First(&loc).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLocationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// -----------------------------------------------------------------------------
// 2. File Paths
// -----------------------------------------------------------------------------

// UpsertFilePaths 批量写入路径记录
// 路径已存在时只刷新大小和修改时间；大小变化时清空 cas_id / object_id，让它重新成为孤儿
func (r *Repository) UpsertFilePaths(ctx context.Context, rows []FilePath) error {
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		if rows[i].PubID == "" {
			rows[i].PubID = uuid.NewString()
		}
	}

	conn := r.db.GetConn().WithContext(ctx)
	return conn.Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			row := &rows[i]
			var existing FilePath
			err := tx.Where(
				"location_id = ? AND materialized_path = ? AND name = ? AND extension = ?",
				row.LocationID, row.MaterializedPath, row.Name, row.Extension,
			).Take(&existing).Error

			if errors.Is(err, gorm.ErrRecordNotFound) {
				if err := tx.Create(row).Error; err != nil {
					return fmt.Errorf("failed to insert file path: %w", err)
				}
				continue
			}
			if err != nil {
				return err
			}

			updates := map[string]any{
				"size_in_bytes": row.SizeInBytes,
				"date_modified": row.DateModified,
				"updated_at":    time.Now(),
			}
			if existing.SizeInBytes != row.SizeInBytes {
				updates["cas_id"] = nil
				updates["object_id"] = nil
			}
			if err := tx.Model(&FilePath{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to update file path: %w", err)
			}
			row.ID = existing.ID
		}
		return nil
	})
}

// GetFilePaths 按主键批量读取，结果按 id 升序
func (r *Repository) GetFilePaths(ctx context.Context, ids []types.FilePathID) ([]FilePath, error) {
	var rows []FilePath
	err := r.db.GetConn().WithContext(ctx).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// orphanQuery 把 OrphanFilter 翻译成 SQL 条件
func (r *Repository) orphanQuery(ctx context.Context, f OrphanFilter) *gorm.DB {
	q := r.db.GetConn().WithContext(ctx).Model(&FilePath{}).
		Where("(object_id IS NULL OR cas_id IS NULL)").
		Where("is_dir = ?", false).
		Where("location_id = ?", f.LocationID).
		Where("size_in_bytes <> ?", 0)

	// 这是游标分页的替代方案：按 id 升序 + id > cursor
	if f.Cursor > 0 {
		q = q.Where("id > ?", f.Cursor)
	}

	switch f.Mode {
	case ShallowScan:
		q = q.Where("materialized_path = ?", f.MaterializedPath)
	default:
		if f.MaterializedPath != "" {
			// 不用 LIKE：SQLite 的 LIKE 对 ASCII 大小写不敏感，且要转义通配符
			// substr 在两种方言下都按字符计数、区分大小写
			q = q.Where("substr(materialized_path, 1, ?) = ?",
				utf8.RuneCountInString(f.MaterializedPath), f.MaterializedPath)
		}
	}
	return q
}

// ListOrphans 返回一页孤儿记录，严格按 id 升序
func (r *Repository) ListOrphans(ctx context.Context, f OrphanFilter, limit int) ([]FilePath, error) {
	var rows []FilePath
	err := r.orphanQuery(ctx, f).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list orphan paths: %w", err)
	}
	return rows, nil
}

// CountOrphans 统计满足条件的孤儿记录数 (忽略游标之前的记录)
func (r *Repository) CountOrphans(ctx context.Context, f OrphanFilter) (int64, error) {
	var count int64
	if err := r.orphanQuery(ctx, f).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count orphan paths: %w", err)
	}
	return count, nil
}

// -----------------------------------------------------------------------------
// 3. Objects (去重的核心)
// -----------------------------------------------------------------------------

// FindObjectByCasID 查找内容对象，未找到时返回 (nil, nil)
func (r *Repository) FindObjectByCasID(ctx context.Context, casID types.CasID) (*Object, error) {
	var obj Object
	err := r.db.GetConn().WithContext(ctx).
		Where("cas_id = ?", casID).
		Take(&obj).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &obj, nil
}

// CreateObject 创建内容对象，并在同一事务中写入同步日志
// 如果 cas_id 已经被别的任务抢先创建，返回 ErrObjectExists，调用方应重新查询
func (r *Repository) CreateObject(ctx context.Context, obj *Object, ops []SyncOperation) error {
	if obj.PubID == "" {
		obj.PubID = uuid.NewString()
	}

	return r.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 唯一约束才是真相来源，这里不需要任何进程内的锁
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cas_id"}},
			DoNothing: true,
		}).Create(obj)

		if res.Error != nil {
			//兼容性,处理不同数据库(PG与SQLite)的唯一约束错误
			if isUniqueViolation(res.Error) {
				return ErrObjectExists
			}
			return fmt.Errorf("failed to create object: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrObjectExists
		}

		if len(ops) > 0 {
			if err := tx.Create(&ops).Error; err != nil {
				return fmt.Errorf("failed to record sync operations: %w", err)
			}
		}
		return nil
	})
}

// LinkFilePaths 把一组路径关联到内容对象 (同时写入 cas_id 和 object_id)
// 重复关联是幂等的：结果与第一次相同
func (r *Repository) LinkFilePaths(ctx context.Context, objectID types.ObjectID, casID types.CasID, ids []types.FilePathID, ops []SyncOperation) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var affected int64
	err := r.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&FilePath{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"cas_id":     casID,
				"object_id":  objectID,
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to link file paths: %w", res.Error)
		}
		affected = res.RowsAffected

		if len(ops) > 0 {
			if err := tx.Create(&ops).Error; err != nil {
				return fmt.Errorf("failed to record sync operations: %w", err)
			}
		}
		return nil
	})
	return affected, err
}

// -----------------------------------------------------------------------------
// 4. 统计
// -----------------------------------------------------------------------------

// LocationStats 汇总一个 Location 的识别进度
type LocationStats struct {
	FilePaths int64
	Orphans   int64
	Objects   int64
}

func (r *Repository) Stats(ctx context.Context, locationID types.LocationID) (*LocationStats, error) {
	conn := r.db.GetConn().WithContext(ctx)
	var stats LocationStats

	err := conn.Model(&FilePath{}).
		Where("location_id = ? AND is_dir = ?", locationID, false).
		Count(&stats.FilePaths).Error
	if err != nil {
		return nil, err
	}

	stats.Orphans, err = r.CountOrphans(ctx, DeepOrphans(locationID, ""))
	if err != nil {
		return nil, err
	}

	err = conn.Model(&FilePath{}).
		Where("location_id = ? AND object_id IS NOT NULL", locationID).
		Distinct("object_id").
		Count(&stats.Objects).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
