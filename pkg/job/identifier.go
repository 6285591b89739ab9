// Package job 驱动内容识别任务：扫描孤儿 -> 计算 CasID -> 分组切块 -> 派发 -> 等待 -> 提交检查点。
//
// 一个"步骤"处理扫描器的一页。每一步结束后游标和未派发的累加器被写入 ResumableState，
// 外部在步骤之间暂停或取消时，这个状态就是精确的恢复点。
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"fileident/pkg/batch"
	"fileident/pkg/identifier"
	"fileident/pkg/isopath"
	"fileident/pkg/meta"
	"fileident/pkg/metrics"
	"fileident/pkg/orphan"
	"fileident/pkg/processor"
	"fileident/pkg/synclog"
	"fileident/pkg/tasks"
	"fileident/pkg/types"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency 是一页内并发提取元数据的文件数
const DefaultConcurrency = 8

// Repository 是任务需要的查询能力
type Repository interface {
	GetLocation(ctx context.Context, id types.LocationID) (*meta.Location, error)
	orphan.Lister
}

// Deps 是任务的外部协作者
type Deps struct {
	Repo Repository
	// Objects 供处理器创建 / 关联对象，通常就是 Repo 本身或它的缓存装饰
	Objects    processor.Store
	Sync       *synclog.Manager
	Dispatcher tasks.Dispatcher

	// 以下可选
	Metrics     *metrics.IdentifierMetrics
	Logger      *slog.Logger
	Concurrency int
}

func (d *Deps) validate() error {
	switch {
	case d.Repo == nil:
		return errors.New("job: repository is required")
	case d.Objects == nil:
		return errors.New("job: object store is required")
	case d.Sync == nil:
		return errors.New("job: sync manager is required")
	case d.Dispatcher == nil:
		return errors.New("job: dispatcher is required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Concurrency <= 0 {
		d.Concurrency = DefaultConcurrency
	}
	return nil
}

// FileIdentifier 是内容识别任务的状态机
// 非并发安全：同一时间只能有一个调用方驱动它
type FileIdentifier struct {
	deps Deps
	log  *slog.Logger

	// state 是最近一次提交的检查点
	state ResumableState
	phase Phase
	err   error

	location *meta.Location
	scanner  *orphan.Scanner
	elapsed  time.Duration
}

// New 创建一个新任务
func New(opts Options, deps Deps) (*FileIdentifier, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if opts.LocationID == 0 {
		return nil, fatal(KindMissingField, errors.New("location id is required"))
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = batch.DefaultChunkSize
	}
	if opts.PageSize <= 0 {
		opts.PageSize = orphan.DefaultPageSize
	}

	return &FileIdentifier{
		deps: deps,
		log:  deps.Logger.With(slog.Int64("location_id", int64(opts.LocationID))),
		state: ResumableState{
			Version: StateVersion,
			Options: opts,
			Phase:   PhaseIdle,
		},
		phase: PhaseIdle,
	}, nil
}

// Resume 从断点 Blob 恢复任务
func Resume(blob []byte, deps Deps) (*FileIdentifier, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	s, err := DecodeState(blob)
	if err != nil {
		return nil, err
	}

	phase := PhaseIdle
	if s.Phase == PhaseCompleted {
		phase = PhaseCompleted
	}
	return &FileIdentifier{
		deps:  deps,
		log:   deps.Logger.With(slog.Int64("location_id", int64(s.Options.LocationID))),
		state: *s,
		phase: phase,
	}, nil
}

// Phase 返回当前阶段
func (j *FileIdentifier) Phase() Phase {
	return j.phase
}

// Done 判断任务是否已经结束 (完成或失败)
func (j *FileIdentifier) Done() bool {
	return j.phase == PhaseCompleted || j.phase == PhaseFailed
}

// Snapshot 编码最近一次提交的检查点
func (j *FileIdentifier) Snapshot() ([]byte, error) {
	s := j.state
	return EncodeState(&s)
}

// Report 返回当前的运行报告
func (j *FileIdentifier) Report() *Report {
	return &Report{
		LocationID: j.state.Options.LocationID,
		Phase:      j.phase,
		Stats:      j.state.Stats,
		Errors:     slices.Clone(j.state.Errors),
		Duration:   j.elapsed,
	}
}

// Run 连续执行步骤直到完成、失败或被中断
func (j *FileIdentifier) Run(ctx context.Context) (*Report, error) {
	for {
		done, err := j.Step(ctx)
		if err != nil {
			return j.Report(), err
		}
		if done {
			return j.Report(), nil
		}
	}
}

// Step 执行一个步骤：一页扫描及其派生的提取、切块、派发和等待
// 返回 done=true 表示任务已结束 (完成或失败)
func (j *FileIdentifier) Step(ctx context.Context) (bool, error) {
	if j.Done() {
		return true, j.err
	}
	// 取消只在步骤边界生效
	if err := ctx.Err(); err != nil {
		return false, j.interrupt(err)
	}
	if err := j.init(ctx); err != nil {
		return true, j.fail(err)
	}

	start := time.Now()
	opts := j.state.Options

	// 1. 扫描一页
	j.phase = PhaseScanning
	page, err := j.scanner.Page(ctx, j.state.Cursor)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, j.interrupt(ctxErr)
		}
		return true, j.fail(fatal(KindDatabase, fmt.Errorf("failed to list orphan paths: %w", err)))
	}

	// 2. 并发提取元数据并计算 CasID
	j.phase = PhaseExtracting
	found, err := j.extract(ctx, page.Records)
	if err != nil {
		return false, j.interrupt(err)
	}

	// 3. 先合并上一步遗留的累加器，再应用切分规则
	// 合并在前，同一个 CasID 才不会被拆到两个单元里
	j.phase = PhaseBatching
	merged := batch.Merge(j.state.Pending, found.batch)
	chunker := batch.NewChunker(opts.ChunkSize)
	units := chunker.AddGroups(merged.Groups())

	var pending batch.Batch
	if page.Last {
		if rest := chunker.Flush(); rest != nil {
			units = append(units, rest)
		}
	} else {
		pending = chunker.Pending()
	}

	// 4. 派发，不等待
	j.phase = PhaseDispatching
	handles, dispatchErr := j.dispatch(ctx, units)

	// 5. 一起等待所有单元
	// 即使派发中途失败，已派发的单元也要等它们结束
	j.phase = PhaseAwaitingResults
	results, err := tasks.WaitAll(ctx, handles)
	if err != nil {
		return false, j.interrupt(err)
	}
	if dispatchErr != nil {
		return true, j.fail(fmt.Errorf("failed to dispatch work unit: %w", dispatchErr))
	}

	var out processor.Output
	var unitErrs []error
	for _, r := range results {
		if r.Err != nil {
			unitErrs = append(unitErrs, fmt.Errorf("unit %s: %w", r.TaskID, r.Err))
			continue
		}
		if o, ok := r.Output.(processor.Output); ok {
			out.Add(o)
		}
	}
	if len(unitErrs) > 0 {
		// 单元之间互不影响，全部结束后再统一失败
		return true, j.fail(fatal(KindDatabase, errors.Join(unitErrs...)))
	}

	// 6. 所有单元都确认完成，提交检查点
	next := j.state
	next.Cursor = page.NextCursor
	next.Pending = pending
	next.Errors = append(slices.Clone(j.state.Errors), found.errors...)
	next.Stats.Orphans += len(page.Records)
	next.Stats.Identified += found.identified
	next.Stats.Skipped += found.skipped
	next.Stats.Failed += len(found.errors)
	next.Stats.Units += len(units)
	next.Stats.CreatedObjects += out.CreatedObjects
	next.Stats.LinkedObjects += out.LinkedObjects
	next.Stats.LinkedFilePaths += out.LinkedFilePaths
	next.Stats.Steps++
	next.Phase = PhaseScanning
	if page.Last {
		next.Phase = PhaseCompleted
	}

	j.state = next
	j.phase = next.Phase

	took := time.Since(start)
	j.elapsed += took
	j.deps.Metrics.ObserveFiles(found.identified, found.skipped, len(found.errors))
	j.deps.Metrics.ObserveObjects(out.CreatedObjects, out.LinkedObjects)
	j.deps.Metrics.ObserveStep(took)

	j.log.Info("file identifier step committed",
		slog.Int64("cursor", int64(next.Cursor)),
		slog.Int("orphans", len(page.Records)),
		slog.Int("units", len(units)),
		slog.Int("pending", pending.Len()),
		slog.Duration("duration", took),
	)

	return page.Last, nil
}

// init 在第一次执行步骤时加载 Location 并构造扫描器
func (j *FileIdentifier) init(ctx context.Context) error {
	if j.scanner != nil {
		return nil
	}
	opts := j.state.Options

	loc, err := j.deps.Repo.GetLocation(ctx, opts.LocationID)
	if err != nil {
		return fatal(KindDatabase, fmt.Errorf("failed to load location %d: %w", opts.LocationID, err))
	}
	if loc.Path == "" {
		return fatal(KindMissingField, fmt.Errorf("location %d has no path", loc.ID))
	}

	// Deep 且没有子路径时扫描整个 Location
	var childrenPath string
	if opts.SubPath != "" || opts.Mode == meta.ShallowScan {
		iso, err := isopath.ResolveSubPath(loc.ID, loc.Path, opts.SubPath)
		if err != nil {
			return fatal(KindSubPath, err)
		}
		childrenPath, err = iso.MaterializedPathForChildren()
		if err != nil {
			return fatal(KindSubPath, err)
		}
	}

	filter := meta.DeepOrphans(loc.ID, childrenPath)
	if opts.Mode == meta.ShallowScan {
		filter = meta.ShallowOrphans(loc.ID, childrenPath)
	}

	j.location = loc
	j.scanner = orphan.NewScanner(j.deps.Repo, filter, opts.PageSize)
	return nil
}

// extracted 是一页记录的提取结果
type extracted struct {
	batch      batch.Batch
	identified int
	skipped    int
	errors     []NonCriticalError
}

// extract 并发分析一页记录；只有 ctx 被取消时才返回错误
func (j *FileIdentifier) extract(ctx context.Context, records []meta.FilePath) (extracted, error) {
	metas := make([]*identifier.FileMetadata, len(records))
	failures := make([]*NonCriticalError, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.deps.Concurrency)
	for i := range records {
		g.Go(func() error {
			md, nc, err := j.analyze(gctx, &records[i])
			if err != nil {
				return err
			}
			metas[i], failures[i] = md, nc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return extracted{}, err
	}

	// 按记录顺序汇总，保证结果是确定的
	out := extracted{batch: make(batch.Batch)}
	for i := range records {
		if failures[i] != nil {
			out.errors = append(out.errors, *failures[i])
			continue
		}
		md := metas[i]
		if md.CasID == nil {
			// 数据库里非空、磁盘上已经是空文件：没有 CasID，保持孤儿
			out.skipped++
			continue
		}
		out.identified++
		out.batch[*md.CasID] = append(out.batch[*md.CasID], batch.FilePathToLink{
			ID:    records[i].ID,
			PubID: records[i].PubID,
			Kind:  md.Kind,
		})
	}
	return out, nil
}

// analyze 处理单条记录
// 非致命失败以 NonCriticalError 返回，error 只用于 ctx 取消
func (j *FileIdentifier) analyze(ctx context.Context, fp *meta.FilePath) (md *identifier.FileMetadata, nc *NonCriticalError, err error) {
	iso, err := isopath.FromDB(fp.LocationID, fp.MaterializedPath, fp.Name, fp.Extension, fp.IsDir)
	if err != nil {
		return nil, &NonCriticalError{
			Kind:    FailedToExtractIsolatedFilePathData,
			Path:    fp.MaterializedPath + fp.Name,
			Message: err.Error(),
		}, nil
	}
	path := iso.Join(j.location.Path)

	// 磁盘上已经变成目录的记录会让 Extract panic，这里降级为单条记录的失败
	defer func() {
		if r := recover(); r != nil {
			md, err = nil, nil
			nc = &NonCriticalError{
				Kind:    FailedToExtractFileMetadata,
				Path:    path,
				Message: fmt.Sprint(r),
			}
		}
	}()

	md, err = identifier.Extract(ctx, j.location.Path, iso)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		kind := FailedToExtractFileMetadata
		if identifier.IsOnDemandError(err) {
			kind = FailedToExtractOnDemandMetadata
		}
		return nil, &NonCriticalError{Kind: kind, Path: path, Message: err.Error()}, nil
	}

	var casID string
	if md.CasID != nil {
		casID = md.CasID.String()
	}
	j.log.Debug("analyzed file",
		slog.String("path", path),
		slog.String("cas_id", casID),
		slog.String("kind", md.Kind.String()),
	)
	return md, nil, nil
}

// dispatch 为每个单元构造处理器并派发，返回已经拿到的句柄
func (j *FileIdentifier) dispatch(ctx context.Context, units []batch.Batch) ([]*tasks.Handle, error) {
	handles := make([]*tasks.Handle, 0, len(units))
	for _, unit := range units {
		p := processor.New(unit, j.deps.Objects, j.deps.Sync, j.state.Options.WithPriority)
		h, err := j.deps.Dispatcher.Dispatch(ctx, p)
		if err != nil {
			return handles, err
		}
		handles = append(handles, h)
		j.deps.Metrics.ObserveUnit(unit.Len())
	}
	return handles, nil
}

// interrupt 保留上一次提交的检查点，之后可以继续调用 Step
func (j *FileIdentifier) interrupt(cause error) error {
	j.phase = PhaseInterrupted
	j.log.Info("file identifier interrupted", slog.Int64("cursor", int64(j.state.Cursor)))
	return fmt.Errorf("%w: %w", ErrInterrupted, cause)
}

func (j *FileIdentifier) fail(err error) error {
	j.phase = PhaseFailed
	j.err = err
	j.log.Error("file identifier failed", slog.Any("error", err))
	return err
}

// Shallow 只识别一个目录的直接子文件，以高优先级派发 (用户打开目录时触发)
func Shallow(ctx context.Context, deps Deps, locationID types.LocationID, subPath string, chunkSize int) (*Report, error) {
	j, err := New(Options{
		LocationID:   locationID,
		SubPath:      subPath,
		Mode:         meta.ShallowScan,
		ChunkSize:    chunkSize,
		WithPriority: true,
	}, deps)
	if err != nil {
		return nil, err
	}
	return j.Run(ctx)
}
