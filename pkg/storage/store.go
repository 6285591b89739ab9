// Package storage 保存识别任务的断点 Blob。
// 实现可以是本地磁盘，也可以是 S3 兼容的对象存储。
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"fileident/pkg/types"
)

var (
	ErrNotFound   = errors.New("checkpoint not found")
	ErrInvalidKey = errors.New("invalid checkpoint key")
)

// Store 是断点存储后端
type Store interface {
	// Put 覆盖写入；写入必须是原子的：读者要么看到旧值，要么看到完整的新值
	Put(ctx context.Context, key string, data []byte) error

	// Get 读取，不存在时返回 ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete 删除，不存在时不报错
	Delete(ctx context.Context, key string) error
}

// CheckpointKey 返回某个 Location 的识别任务断点 Key
func CheckpointKey(locationID types.LocationID) string {
	return fmt.Sprintf("identifier/location-%d", locationID)
}

// ValidateKey 要求 Key 是 "a/b/c" 形式的相对路径，不允许 ".." 或空段
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || path.Clean(key) != key {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}
