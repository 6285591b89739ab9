// Package orphan 分页扫描还没有关联内容对象的路径记录。
package orphan

import (
	"context"
	"iter"

	"fileident/pkg/meta"
	"fileident/pkg/types"
)

// DefaultPageSize 是默认的分页大小
const DefaultPageSize = 100

// Lister 是扫描器依赖的查询能力 (meta.Repository 实现了它)
type Lister interface {
	ListOrphans(ctx context.Context, f meta.OrphanFilter, limit int) ([]meta.FilePath, error)
}

// Page 是一页扫描结果
type Page struct {
	Records []meta.FilePath
	// NextCursor 是本页最后一条记录的 id；空页时等于请求的游标
	NextCursor types.FilePathID
	// Last 为 true 表示扫描已经结束 (本页不满)
	Last bool
}

// Scanner 按 id 升序分页，用 id > cursor 代替有状态的游标
type Scanner struct {
	lister   Lister
	filter   meta.OrphanFilter
	pageSize int
}

// NewScanner 创建扫描器；filter 中的 Cursor 会被 Page 的参数覆盖
func NewScanner(lister Lister, filter meta.OrphanFilter, pageSize int) *Scanner {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Scanner{lister: lister, filter: filter, pageSize: pageSize}
}

// PageSize 返回分页大小
func (s *Scanner) PageSize() int {
	return s.pageSize
}

// Page 读取 cursor 之后的一页
func (s *Scanner) Page(ctx context.Context, cursor types.FilePathID) (Page, error) {
	records, err := s.lister.ListOrphans(ctx, s.filter.After(cursor), s.pageSize)
	if err != nil {
		return Page{}, err
	}

	next := cursor
	if len(records) > 0 {
		next = records[len(records)-1].ID
	}
	return Page{
		Records:    records,
		NextCursor: next,
		Last:       len(records) < s.pageSize,
	}, nil
}

// Pages 从头遍历所有页；出错时产出一次错误后停止
func (s *Scanner) Pages(ctx context.Context) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		var cursor types.FilePathID
		for {
			page, err := s.Page(ctx, cursor)
			if err != nil {
				yield(Page{}, err)
				return
			}
			if len(page.Records) > 0 && !yield(page, nil) {
				return
			}
			if page.Last {
				return
			}
			cursor = page.NextCursor
		}
	}
}
