// Package indexer 把一个 Location 目录树写成路径记录，供内容识别使用。
package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"fileident/pkg/ignore"
	"fileident/pkg/isopath"
	"fileident/pkg/meta"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize 是单个写入事务的记录数
const DefaultBatchSize = 500

// Writer 是索引器需要的写入能力 (meta.Repository 实现了它)
type Writer interface {
	UpsertFilePaths(ctx context.Context, rows []meta.FilePath) error
}

// Result 汇总一次索引
type Result struct {
	Files   int
	Dirs    int
	Ignored int
	Bytes   int64
}

// Indexer 遍历目录并批量写入
type Indexer struct {
	writer    Writer
	batchSize int
	log       *slog.Logger
}

func New(writer Writer, batchSize int, log *slog.Logger) *Indexer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{writer: writer, batchSize: batchSize, log: log}
}

// Index 遍历 Location 根目录
// 遍历和写库在两个协程中流水线执行：遍历产出批次，写入者逐批提交
func (ix *Indexer) Index(ctx context.Context, loc *meta.Location) (*Result, error) {
	matcher, err := ignore.NewMatcher(loc.Path)
	if err != nil {
		return nil, err
	}

	var res Result
	batches := make(chan []meta.FilePath, 2)
	g, gctx := errgroup.WithContext(ctx)

	// 1. 写入者
	g.Go(func() error {
		for rows := range batches {
			if err := ix.writer.UpsertFilePaths(gctx, rows); err != nil {
				return fmt.Errorf("failed to write file paths: %w", err)
			}
		}
		return nil
	})

	// 2. 遍历者
	g.Go(func() error {
		defer close(batches)

		buf := make([]meta.FilePath, 0, ix.batchSize)
		flush := func() error {
			if len(buf) == 0 {
				return nil
			}
			select {
			case batches <- buf:
			case <-gctx.Done():
				return gctx.Err()
			}
			buf = make([]meta.FilePath, 0, ix.batchSize)
			return nil
		}

		err := filepath.WalkDir(loc.Path, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				// 无权限的子目录只跳过，不中断整个索引
				ix.log.Warn("skipping unreadable path", slog.String("path", path), slog.Any("error", err))
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			if path == loc.Path {
				return nil
			}

			rel, err := filepath.Rel(loc.Path, path)
			if err != nil {
				return err
			}
			if matcher.Matches(rel, d.IsDir()) {
				res.Ignored++
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			// 符号链接等非普通文件不索引
			if !d.IsDir() && !d.Type().IsRegular() {
				res.Ignored++
				return nil
			}

			row, err := ix.row(loc, rel, d)
			if err != nil {
				return err
			}
			if row.IsDir {
				res.Dirs++
			} else {
				res.Files++
				res.Bytes += row.SizeInBytes
			}

			buf = append(buf, row)
			if len(buf) >= ix.batchSize {
				return flush()
			}
			return nil
		})
		if err != nil {
			return err
		}
		return flush()
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	ix.log.Info("location indexed",
		slog.String("path", loc.Path),
		slog.Int("files", res.Files),
		slog.Int("dirs", res.Dirs),
		slog.Int("ignored", res.Ignored),
	)
	return &res, nil
}

func (ix *Indexer) row(loc *meta.Location, rel string, d fs.DirEntry) (meta.FilePath, error) {
	iso, err := isopath.FromRelative(loc.ID, rel, d.IsDir())
	if err != nil {
		return meta.FilePath{}, err
	}
	info, err := d.Info()
	if err != nil {
		return meta.FilePath{}, fmt.Errorf("failed to stat %s: %w", rel, err)
	}

	row := meta.FilePath{
		LocationID:       loc.ID,
		MaterializedPath: iso.MaterializedPath,
		Name:             iso.Name,
		Extension:        iso.Extension,
		IsDir:            iso.IsDir,
		DateModified:     info.ModTime(),
	}
	if !iso.IsDir {
		row.SizeInBytes = info.Size()
	}
	return row, nil
}
