package isopath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"fileident/pkg/types"
)

var ErrSubPathNotFound = errors.New("sub path not found")

// ResolveSubPath 校验用户传入的子路径，并返回它的 IsolatedPath
// subPath 可以是绝对路径，也可以是相对于 Location 根目录的路径
// 要求: 位于 Location 内部、存在、并且是目录
func ResolveSubPath(locationID types.LocationID, locationPath, subPath string) (IsolatedPath, error) {
	full := subPath
	if !filepath.IsAbs(full) {
		full = filepath.Join(locationPath, subPath)
	}
	full = filepath.Clean(full)

	iso, err := New(locationID, locationPath, full, true)
	if err != nil {
		return IsolatedPath{}, err
	}

	info, err := os.Stat(full)
	if errors.Is(err, os.ErrNotExist) {
		return IsolatedPath{}, fmt.Errorf("%w: %s", ErrSubPathNotFound, full)
	}
	if err != nil {
		return IsolatedPath{}, fmt.Errorf("failed to stat sub path %s: %w", full, err)
	}
	if !info.IsDir() {
		return IsolatedPath{}, fmt.Errorf("%w: %s", ErrNotDirectory, full)
	}

	return iso, nil
}
