// Package isopath 描述一个相对于 Location 根目录 "隔离" 的文件路径。
//
// 数据库中不保存绝对路径，而是保存:
//
//	materialized_path: 父目录路径，以 "/" 开头和结尾 (根目录下的文件为 "/")
//	name:              不含扩展名的文件名
//	extension:         扩展名 (目录为空)
//
// 例如 Location 根目录下的 "photos/2024/cat.jpg" 对应
// materialized_path="/photos/2024/", name="cat", extension="jpg"。
package isopath

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"fileident/pkg/types"
)

var (
	ErrOutsideLocation = errors.New("path is outside of the location")
	ErrNotDirectory    = errors.New("path is not a directory")
	ErrInvalidPath     = errors.New("invalid isolated file path data")
)

// IsolatedPath 是一个与 Location 物理位置无关的路径描述
type IsolatedPath struct {
	LocationID       types.LocationID
	MaterializedPath string
	Name             string
	Extension        string
	IsDir            bool
}

// New 由 Location 根目录和完整路径构造 IsolatedPath
func New(locationID types.LocationID, locationPath, fullPath string, isDir bool) (IsolatedPath, error) {
	rel, err := filepath.Rel(locationPath, fullPath)
	if err != nil {
		return IsolatedPath{}, fmt.Errorf("%w: %s", ErrOutsideLocation, fullPath)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return IsolatedPath{}, fmt.Errorf("%w: %s", ErrOutsideLocation, fullPath)
	}
	return FromRelative(locationID, rel, isDir)
}

// FromRelative 由 "a/b/c.txt" 形式的相对路径构造
// "." 或 "" 表示 Location 根目录本身
func FromRelative(locationID types.LocationID, rel string, isDir bool) (IsolatedPath, error) {
	rel = strings.Trim(path.Clean("/"+filepath.ToSlash(rel)), "/")
	if rel == "" {
		if !isDir {
			return IsolatedPath{}, fmt.Errorf("%w: location root must be a directory", ErrInvalidPath)
		}
		return IsolatedPath{LocationID: locationID, MaterializedPath: "/", IsDir: true}, nil
	}

	parent, base := path.Split(rel)
	name, ext := splitName(base, isDir)

	return IsolatedPath{
		LocationID:       locationID,
		MaterializedPath: "/" + parent,
		Name:             name,
		Extension:        ext,
		IsDir:            isDir,
	}, nil
}

// FromDB 从数据库字段还原，并校验字段的一致性
func FromDB(locationID types.LocationID, materializedPath, name, extension string, isDir bool) (IsolatedPath, error) {
	if !strings.HasPrefix(materializedPath, "/") || !strings.HasSuffix(materializedPath, "/") {
		return IsolatedPath{}, fmt.Errorf("%w: materialized path %q", ErrInvalidPath, materializedPath)
	}
	if name == "" && extension == "" {
		// 只有根目录允许没有名字
		if materializedPath != "/" || !isDir {
			return IsolatedPath{}, fmt.Errorf("%w: empty name under %q", ErrInvalidPath, materializedPath)
		}
	}
	if strings.Contains(name, "/") || strings.Contains(extension, "/") {
		return IsolatedPath{}, fmt.Errorf("%w: name %q contains a separator", ErrInvalidPath, name)
	}
	if isDir && extension != "" {
		return IsolatedPath{}, fmt.Errorf("%w: directory %q has an extension", ErrInvalidPath, name)
	}

	return IsolatedPath{
		LocationID:       locationID,
		MaterializedPath: materializedPath,
		Name:             name,
		Extension:        extension,
		IsDir:            isDir,
	}, nil
}

// IsRoot 判断是否为 Location 根目录
func (p IsolatedPath) IsRoot() bool {
	return p.MaterializedPath == "/" && p.Name == "" && p.Extension == ""
}

// FileName 返回带扩展名的文件名
func (p IsolatedPath) FileName() string {
	if p.Extension == "" {
		return p.Name
	}
	return p.Name + "." + p.Extension
}

// Relative 返回 "a/b/c.txt" 形式的相对路径 (slash 分隔)
func (p IsolatedPath) Relative() string {
	if p.IsRoot() {
		return ""
	}
	return strings.TrimPrefix(p.MaterializedPath, "/") + p.FileName()
}

// Join 拼出文件在本机上的绝对路径
func (p IsolatedPath) Join(locationPath string) string {
	return filepath.Join(locationPath, filepath.FromSlash(p.Relative()))
}

// MaterializedPathForChildren 返回子节点的 materialized_path
// 例如目录 "/photos/" + "2024" -> "/photos/2024/"
func (p IsolatedPath) MaterializedPathForChildren() (string, error) {
	if !p.IsDir {
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, p.Relative())
	}
	if p.IsRoot() {
		return "/", nil
	}
	return p.MaterializedPath + p.FileName() + "/", nil
}

func (p IsolatedPath) String() string {
	return "/" + p.Relative()
}

// splitName 拆分文件名和扩展名
// ".bashrc" 这种点文件没有扩展名；目录永远没有扩展名
func splitName(base string, isDir bool) (string, string) {
	if isDir {
		return base, ""
	}
	idx := strings.LastIndex(base, ".")
	if idx <= 0 || idx == len(base)-1 {
		return base, ""
	}
	return base[:idx], base[idx+1:]
}
