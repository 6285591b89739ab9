// Package batch 按 CasID 分组识别结果，并把分组切成大小受控的工作单元。
package batch

import (
	"maps"
	"slices"

	"fileident/pkg/kind"
	"fileident/pkg/types"
)

// DefaultChunkSize 是单个工作单元的默认记录数阈值
const DefaultChunkSize = 100

// FilePathToLink 是一条等待关联到内容对象的路径记录
type FilePathToLink struct {
	ID    types.FilePathID `cbor:"1,keyasint"`
	PubID string           `cbor:"2,keyasint"`
	Kind  kind.ObjectKind  `cbor:"3,keyasint"`
}

// Batch: CasID -> 该内容对应的全部路径
// 即一个工作单元 (WorkUnit)
type Batch map[types.CasID][]FilePathToLink

// Len 返回所有分组的记录总数
func (b Batch) Len() int {
	n := 0
	for _, paths := range b {
		n += len(paths)
	}
	return n
}

// Group 是一个 CasID 及其路径列表
type Group struct {
	CasID types.CasID
	Paths []FilePathToLink
}

// Groups 按 CasID 排序输出，保证处理顺序是确定的
func (b Batch) Groups() []Group {
	keys := slices.Sorted(maps.Keys(b))
	out := make([]Group, 0, len(keys))
	for _, k := range keys {
		out = append(out, Group{CasID: k, Paths: b[k]})
	}
	return out
}

// Clone 深拷贝 (切片也复制)
func (b Batch) Clone() Batch {
	if b == nil {
		return nil
	}
	out := make(Batch, len(b))
	for k, v := range b {
		out[k] = slices.Clone(v)
	}
	return out
}

// Accumulate 把 input 合并进 acc：同一个 CasID 的列表直接拼接
func Accumulate(input, acc Batch) {
	for casID, paths := range input {
		acc[casID] = append(acc[casID], paths...)
	}
}

// Merge 对称地合并两个 Batch，返回新的 Batch，不修改参数
// 同 Key 时 a 的记录在前，b 的记录在后
func Merge(a, b Batch) Batch {
	out := a.Clone()
	if out == nil {
		out = make(Batch, len(b))
	}
	for casID, paths := range b {
		out[casID] = append(out[casID], paths...)
	}
	return out
}
