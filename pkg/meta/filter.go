package meta

import (
	"strings"

	"fileident/pkg/types"
)

// ScanMode 决定孤儿扫描的范围
type ScanMode int

const (
	// DeepScan 递归扫描一个子树 (或整个 Location)
	DeepScan ScanMode = iota
	// ShallowScan 只扫描某个目录的直接子节点
	ShallowScan
)

func (m ScanMode) String() string {
	if m == ShallowScan {
		return "shallow"
	}
	return "deep"
}

// OrphanFilter 是孤儿记录的查询条件，与具体的查询 DSL 无关
//
//	(object_id 为空 OR cas_id 为空) AND 不是目录 AND 属于该 Location
//	AND size_in_bytes != 0 AND id > Cursor AND 路径范围匹配
type OrphanFilter struct {
	LocationID types.LocationID
	Mode       ScanMode

	// MaterializedPath 是目标目录的 "children materialized path" (如 "/photos/")
	// Shallow: 必须精确相等；Deep: 前缀匹配，为空表示整个 Location
	MaterializedPath string

	Cursor types.FilePathID
}

// ShallowOrphans 构造单层目录的过滤条件
func ShallowOrphans(locationID types.LocationID, childrenPath string) OrphanFilter {
	return OrphanFilter{LocationID: locationID, Mode: ShallowScan, MaterializedPath: childrenPath}
}

// DeepOrphans 构造递归扫描的过滤条件，childrenPath 为空时扫描整个 Location
func DeepOrphans(locationID types.LocationID, childrenPath string) OrphanFilter {
	return OrphanFilter{LocationID: locationID, Mode: DeepScan, MaterializedPath: childrenPath}
}

// After 返回游标推进后的新条件 (值拷贝，不修改原条件)
func (f OrphanFilter) After(cursor types.FilePathID) OrphanFilter {
	f.Cursor = cursor
	return f
}

// Matches 在内存中求值同一个谓词，和 SQL 版本保持一致
func (f OrphanFilter) Matches(fp *FilePath) bool {
	if !fp.IsOrphan() || fp.IsDir || fp.LocationID != f.LocationID {
		return false
	}
	if fp.SizeInBytes == 0 || fp.ID <= f.Cursor {
		return false
	}

	switch f.Mode {
	case ShallowScan:
		return fp.MaterializedPath == f.MaterializedPath
	default:
		return f.MaterializedPath == "" || strings.HasPrefix(fp.MaterializedPath, f.MaterializedPath)
	}
}
