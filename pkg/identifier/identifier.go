package identifier

import (
	"context"
	"fmt"
	"os"
	"time"

	"fileident/pkg/core"
	"fileident/pkg/isopath"
	"fileident/pkg/kind"
	"fileident/pkg/types"
)

// FileIOError 给文件系统错误附带出错的路径
type FileIOError struct {
	Path string
	Err  error
}

func (e *FileIOError) Error() string {
	return fmt.Sprintf("file io error at %s: %v", e.Path, e.Err)
}

func (e *FileIOError) Unwrap() error { return e.Err }

// FileMetadata 是一次识别的结果 (瞬时数据，不直接落库)
type FileMetadata struct {
	// CasID 为 nil 表示空文件
	CasID *types.CasID
	Kind  kind.ObjectKind

	// 文件系统元数据快照
	Size       int64
	ModifiedAt time.Time
}

// Extract 读取文件系统元数据，推断类型，并为非空文件计算 CasID
//
// 调用方必须保证 iso 不是目录：对目录调用属于编程错误，会直接 panic。
func Extract(ctx context.Context, locationPath string, iso isopath.IsolatedPath) (*FileMetadata, error) {
	path := iso.Join(locationPath)

	// 1. 读取元数据
	info, err := os.Stat(path)
	if err != nil {
		return nil, &FileIOError{Path: path, Err: err}
	}

	if info.IsDir() {
		panic("can't generate cas_id for directories: " + path)
	}

	// 2. 推断类型 (失败时退化为 Unknown，不报错)
	k := kind.ResolveConflicting(path)

	// 3. 计算 CasID
	// 空文件没有内容可言，不生成 CasID
	var casID *types.CasID
	if info.Size() != 0 {
		id, err := core.GenerateCasID(ctx, path, uint64(info.Size()))
		if err != nil {
			return nil, &FileIOError{Path: path, Err: err}
		}
		casID = &id
	}

	return &FileMetadata{
		CasID:      casID,
		Kind:       k,
		Size:       info.Size(),
		ModifiedAt: info.ModTime(),
	}, nil
}
