package meta

import (
	"time"

	"fileident/pkg/types"

	"gorm.io/datatypes"
)

// Location 是一个被索引的根目录
type Location struct {
	ID    types.LocationID `gorm:"primaryKey"`
	PubID string           `gorm:"uniqueIndex;type:char(36);not null"`
	Name  string           `gorm:"type:varchar(255)"`

	// Path 是本机上的绝对路径
	Path string `gorm:"uniqueIndex;type:varchar(1024);not null"`

	CreatedAt time.Time
}

// FilePath 是索引器写入的一条路径记录
// 本模块只读取它，并为识别成功的记录回填 CasID / ObjectID
type FilePath struct {
	ID    types.FilePathID `gorm:"primaryKey"`
	PubID string           `gorm:"uniqueIndex;type:char(36);not null"`

	// (location_id, materialized_path, name, extension) 唯一确定一个路径
	LocationID       types.LocationID `gorm:"not null;uniqueIndex:idx_file_path_location,priority:1"`
	MaterializedPath string           `gorm:"type:varchar(1024);not null;uniqueIndex:idx_file_path_location,priority:2"`
	Name             string           `gorm:"type:varchar(255);not null;uniqueIndex:idx_file_path_location,priority:3"`
	Extension        string           `gorm:"type:varchar(64);not null;uniqueIndex:idx_file_path_location,priority:4"`

	IsDir       bool  `gorm:"not null;default:false"`
	SizeInBytes int64 `gorm:"not null;default:0"`

	// 两者要么同时存在，要么同时为空 (孤儿)
	CasID    *types.CasID    `gorm:"type:varchar(64);index"`
	ObjectID *types.ObjectID `gorm:"index"`

	DateModified time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsOrphan 判断记录是否还没有关联到内容对象
func (fp *FilePath) IsOrphan() bool {
	return fp.CasID == nil || fp.ObjectID == nil
}

// Object 代表一份独立的内容
// CasID 上的唯一约束是并发创建时唯一的真相来源
type Object struct {
	ID    types.ObjectID `gorm:"primaryKey"`
	PubID string         `gorm:"uniqueIndex;type:char(36);not null"`
	CasID types.CasID    `gorm:"uniqueIndex;type:varchar(64);not null"`
	Kind  int            `gorm:"not null;default:0"`

	CreatedAt time.Time
}

// SyncOperation 是同步日志中的一条只追加记录
// 其他副本通过回放这些操作收敛到相同的状态
type SyncOperation struct {
	ID    int64  `gorm:"primaryKey"`
	PubID string `gorm:"uniqueIndex;type:char(36);not null"`

	// Instance 标识产生该操作的进程实例
	Instance  string `gorm:"type:char(36);index;not null"`
	Timestamp int64  `gorm:"index;not null"`

	// Model + RecordID 定位被修改的记录 (RecordID 为记录的 pub_id)
	Model    string `gorm:"type:varchar(64);not null"`
	RecordID string `gorm:"type:char(36);not null"`

	// Kind: "c" 表示创建，"u:<field>" 表示更新某个字段
	Kind string         `gorm:"type:varchar(64);not null"`
	Data datatypes.JSON `gorm:"not null"`

	CreatedAt time.Time
}

// TableName 强制指定表名
func (SyncOperation) TableName() string {
	return "sync_operations"
}

// Models 返回需要迁移的全部表
func Models() []any {
	return []any{&Location{}, &FilePath{}, &Object{}, &SyncOperation{}}
}
