package batch

import (
	"slices"

	"fileident/pkg/types"
)

// Chunker 实现工作单元的切分规则：
//
//  1. 单个分组的记录数 >= size：立即单独成为一个单元，绝不与其他分组合并
//  2. 否则并入累加器；累加器的记录总数 >= size 时整体成为一个单元
//  3. 输入结束后，累加器中剩余的记录作为最后一个单元
//
// 这样切出的单元数最少，且除最后一个之外都不低于阈值，同一个 CasID 也不会被拆开。
type Chunker struct {
	size  int
	acc   Batch
	total int
}

// NewChunker 创建切分器
// 续跑时先把上一步遗留的累加器与新分组 Merge，再用 AddGroups 输入
func NewChunker(size int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &Chunker{size: size, acc: make(Batch)}
}

// Size 返回阈值
func (c *Chunker) Size() int {
	return c.size
}

// Add 输入一个分组，返回需要立即派发的单元 (0 或 1 个)
func (c *Chunker) Add(casID types.CasID, paths []FilePathToLink) []Batch {
	if len(paths) == 0 {
		return nil
	}

	// 累加器里已有同一个 CasID 时，两部分视为一个分组
	if prior := c.acc[casID]; len(prior)+len(paths) >= c.size {
		if len(prior) > 0 {
			delete(c.acc, casID)
			c.total -= len(prior)
			paths = append(slices.Clone(prior), paths...)
		}
		return []Batch{{casID: paths}}
	}

	c.acc[casID] = append(c.acc[casID], paths...)
	c.total += len(paths)

	if c.total >= c.size {
		unit := c.acc
		c.acc = make(Batch)
		c.total = 0
		return []Batch{unit}
	}
	return nil
}

// AddGroups 依次输入多个分组
func (c *Chunker) AddGroups(groups []Group) []Batch {
	var units []Batch
	for _, g := range groups {
		units = append(units, c.Add(g.CasID, g.Paths)...)
	}
	return units
}

// Pending 返回累加器中尚未派发的记录 (拷贝)
func (c *Chunker) Pending() Batch {
	return c.acc.Clone()
}

// PendingLen 返回累加器中的记录数
func (c *Chunker) PendingLen() int {
	return c.total
}

// Flush 取出剩余的累加器，为空时返回 nil
func (c *Chunker) Flush() Batch {
	if len(c.acc) == 0 {
		return nil
	}
	unit := c.acc
	c.acc = make(Batch)
	c.total = 0
	return unit
}

// Split 对完整的输入执行切分，包括最后的 Flush
func Split(groups []Group, size int) []Batch {
	c := NewChunker(size)
	units := c.AddGroups(groups)
	if last := c.Flush(); last != nil {
		units = append(units, last)
	}
	return units
}
