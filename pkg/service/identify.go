// Package service 在 App 之上编排索引、识别和断点存储，CLI 和守护进程共用它。
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"fileident/pkg/app"
	"fileident/pkg/indexer"
	"fileident/pkg/job"
	"fileident/pkg/meta"
	"fileident/pkg/storage"
)

// ErrNotIndexed 表示目录还没有被索引成 Location
var ErrNotIndexed = errors.New("location is not indexed")

// IdentifyRequest 描述一次识别
type IdentifyRequest struct {
	Path         string
	SubPath      string
	Shallow      bool
	WithPriority bool
	ChunkSize    int
	PageSize     int
	// Fresh 丢弃已有断点，从头开始
	Fresh bool
}

// IdentifyService 是识别流程的应用服务
type IdentifyService struct {
	app *app.App
	log *slog.Logger
}

func NewIdentifyService(application *app.App) *IdentifyService {
	log := application.Logger
	if log == nil {
		log = slog.Default()
	}
	return &IdentifyService{app: application, log: log}
}

// Index 确保目录是一个 Location 并把目录树写入路径表
func (s *IdentifyService) Index(ctx context.Context, path string) (*meta.Location, *indexer.Result, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, err
	}
	loc, err := s.app.Repo.EnsureLocation(ctx, abs)
	if err != nil {
		return nil, nil, err
	}
	res, err := indexer.New(s.app.Repo, 0, s.log).Index(ctx, loc)
	if err != nil {
		return loc, nil, fmt.Errorf("failed to index %s: %w", abs, err)
	}
	return loc, res, nil
}

// Locate 按目录路径找到已索引的 Location
func (s *IdentifyService) Locate(ctx context.Context, path string) (*meta.Location, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	loc, err := s.app.Repo.FindLocationByPath(ctx, abs)
	if errors.Is(err, meta.ErrLocationNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotIndexed, abs)
	}
	return loc, err
}

// Identify 运行一次识别
//
// 深度识别每提交一个步骤就写一次断点，中断或失败后下次调用从断点继续；
// 正常完成时删除断点。浅层识别只覆盖一个目录层级，不写断点。
// progress 在每个步骤之后以当前报告回调，可以为 nil。
func (s *IdentifyService) Identify(ctx context.Context, req IdentifyRequest, progress func(*job.Report)) (*job.Report, error) {
	loc, err := s.Locate(ctx, req.Path)
	if err != nil {
		return nil, err
	}
	deps := s.app.JobDeps()

	// 1. 浅层识别
	if req.Shallow {
		j, err := job.New(job.Options{
			LocationID:   loc.ID,
			SubPath:      req.SubPath,
			Mode:         meta.ShallowScan,
			ChunkSize:    req.ChunkSize,
			PageSize:     req.PageSize,
			WithPriority: true,
		}, deps)
		if err != nil {
			return nil, err
		}
		return s.drive(ctx, j, progress, nil)
	}

	// 2. 深度识别：先尝试恢复
	key := storage.CheckpointKey(loc.ID)
	j, err := s.load(ctx, loc, key, req, deps)
	if err != nil {
		return nil, err
	}
	if j == nil {
		j, err = job.New(job.Options{
			LocationID:   loc.ID,
			SubPath:      req.SubPath,
			Mode:         meta.DeepScan,
			ChunkSize:    req.ChunkSize,
			PageSize:     req.PageSize,
			WithPriority: req.WithPriority,
		}, deps)
		if err != nil {
			return nil, err
		}
	}

	// 3. 驱动并持久化
	save := func() error { return s.save(ctx, key, j) }
	report, err := s.drive(ctx, j, progress, save)
	if err != nil {
		if resumable(err) {
			// 中断时 ctx 已取消，换一个不受取消影响的上下文写断点
			if serr := s.save(context.WithoutCancel(ctx), key, j); serr != nil {
				s.log.Warn("failed to save checkpoint", slog.Any("error", serr))
			}
		}
		return report, err
	}

	if err := s.app.Checkpoints.Delete(ctx, key); err != nil {
		s.log.Warn("failed to delete checkpoint", slog.String("key", key), slog.Any("error", err))
	}
	return report, nil
}

// resumable 判断失败后断点是否值得保留：中断和存储层故障可以重试，参数错误不行
func resumable(err error) bool {
	if errors.Is(err, job.ErrInterrupted) {
		return true
	}
	kind, ok := job.KindOf(err)
	return ok && kind == job.KindDatabase
}

func (s *IdentifyService) load(ctx context.Context, loc *meta.Location, key string, req IdentifyRequest, deps job.Deps) (*job.FileIdentifier, error) {
	if req.Fresh {
		if err := s.app.Checkpoints.Delete(ctx, key); err != nil {
			return nil, err
		}
		return nil, nil
	}

	blob, err := s.app.Checkpoints.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	// 断点只在范围一致时才恢复
	// 范围不同就从头开始：已关联的记录不再是孤儿，重新扫描只会跳过它们
	state, err := job.DecodeState(blob)
	if err != nil {
		return nil, err
	}
	if state.Options.Mode != meta.DeepScan || !sameSubPath(loc.Path, state.Options.SubPath, req.SubPath) {
		s.log.Info("discarding checkpoint of a different scope",
			slog.String("key", key),
			slog.String("checkpoint_sub_path", state.Options.SubPath),
			slog.String("sub_path", req.SubPath),
		)
		if err := s.app.Checkpoints.Delete(ctx, key); err != nil {
			return nil, err
		}
		return nil, nil
	}

	j, err := job.Resume(blob, deps)
	if err != nil {
		return nil, err
	}
	s.log.Info("resuming from checkpoint", slog.String("key", key))
	return j, nil
}

// sameSubPath 比较两个子路径在 Location 内是否指向同一个目录
func sameSubPath(root, a, b string) bool {
	return normalizeSubPath(root, a) == normalizeSubPath(root, b)
}

func normalizeSubPath(root, sub string) string {
	if filepath.IsAbs(sub) {
		if rel, err := filepath.Rel(root, sub); err == nil {
			sub = rel
		}
	}
	sub = filepath.ToSlash(filepath.Clean(sub))
	if sub == "." {
		return ""
	}
	return sub
}

func (s *IdentifyService) save(ctx context.Context, key string, j *job.FileIdentifier) error {
	blob, err := j.Snapshot()
	if err != nil {
		return err
	}
	return s.app.Checkpoints.Put(ctx, key, blob)
}

func (s *IdentifyService) drive(ctx context.Context, j *job.FileIdentifier, progress func(*job.Report), checkpoint func() error) (*job.Report, error) {
	for {
		done, err := j.Step(ctx)
		if err != nil {
			return j.Report(), err
		}
		if done {
			return j.Report(), nil
		}
		if checkpoint != nil {
			if err := checkpoint(); err != nil {
				return j.Report(), fmt.Errorf("failed to save checkpoint: %w", err)
			}
		}
		if progress != nil {
			progress(j.Report())
		}
	}
}

// Status 汇总一个 Location 的识别进度
type Status struct {
	Location *meta.Location
	Stats    *meta.LocationStats
	// Checkpoint 为 nil 表示没有未完成的识别
	Checkpoint *job.ResumableState
}

// Status 读取统计和断点
func (s *IdentifyService) Status(ctx context.Context, path string) (*Status, error) {
	loc, err := s.Locate(ctx, path)
	if err != nil {
		return nil, err
	}
	stats, err := s.app.Repo.Stats(ctx, loc.ID)
	if err != nil {
		return nil, err
	}

	st := &Status{Location: loc, Stats: stats}
	blob, err := s.app.Checkpoints.Get(ctx, storage.CheckpointKey(loc.ID))
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		if st.Checkpoint, err = job.DecodeState(blob); err != nil {
			return nil, err
		}
	}
	return st, nil
}
