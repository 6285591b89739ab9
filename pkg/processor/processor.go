// Package processor 执行一个工作单元：为每个 CasID 创建或复用内容对象，并关联路径记录。
package processor

import (
	"context"
	"errors"
	"fmt"

	"fileident/pkg/batch"
	"fileident/pkg/meta"
	"fileident/pkg/synclog"
	"fileident/pkg/types"

	"github.com/google/uuid"
)

// Store 是处理器依赖的持久化能力
// meta.Repository 实现了它，storage/cache 在它外面加了一层缓存
type Store interface {
	// FindObjectByCasID 未找到时返回 (nil, nil)
	FindObjectByCasID(ctx context.Context, casID types.CasID) (*meta.Object, error)
	// CreateObject 遇到唯一约束冲突时返回 meta.ErrObjectExists
	CreateObject(ctx context.Context, obj *meta.Object, ops []meta.SyncOperation) error
	LinkFilePaths(ctx context.Context, objectID types.ObjectID, casID types.CasID, ids []types.FilePathID, ops []meta.SyncOperation) (int64, error)
}

// Output 是单个工作单元的执行结果
type Output struct {
	CreatedObjects  int
	LinkedObjects   int
	LinkedFilePaths int
}

// Add 累加另一个单元的结果
func (o *Output) Add(other Output) {
	o.CreatedObjects += other.CreatedObjects
	o.LinkedObjects += other.LinkedObjects
	o.LinkedFilePaths += other.LinkedFilePaths
}

// ObjectProcessor 是可派发的任务 (实现 tasks.Task)
// 不同的处理器持有互不相交的 Batch，彼此之间不共享可变状态
type ObjectProcessor struct {
	id           uuid.UUID
	batch        batch.Batch
	store        Store
	sync         *synclog.Manager
	withPriority bool
}

// New 创建处理器，b 的所有权转移给处理器
func New(b batch.Batch, store Store, sync *synclog.Manager, withPriority bool) *ObjectProcessor {
	return &ObjectProcessor{
		id:           uuid.New(),
		batch:        b,
		store:        store,
		sync:         sync,
		withPriority: withPriority,
	}
}

func (p *ObjectProcessor) ID() uuid.UUID { return p.id }

func (p *ObjectProcessor) WithPriority() bool { return p.withPriority }

// Len 返回单元内的记录数
func (p *ObjectProcessor) Len() int { return p.batch.Len() }

// Batch 返回处理器持有的单元，调用方不能修改
func (p *ObjectProcessor) Batch() batch.Batch { return p.batch }

// Run 依次处理每个 CasID 分组，返回 Output
func (p *ObjectProcessor) Run(ctx context.Context) (any, error) {
	var out Output

	for _, g := range p.batch.Groups() {
		if len(g.Paths) == 0 {
			continue
		}
		created, linked, err := p.process(ctx, g)
		if err != nil {
			return out, fmt.Errorf("failed to process cas_id %s: %w", g.CasID.Short(), err)
		}
		if created {
			out.CreatedObjects++
		} else {
			out.LinkedObjects++
		}
		out.LinkedFilePaths += linked
	}
	return out, nil
}

// process: 查找 -> (未找到) 创建 -> (冲突) 重新查找 -> 关联
func (p *ObjectProcessor) process(ctx context.Context, g batch.Group) (bool, int, error) {
	// 1. 查找已有对象
	obj, err := p.store.FindObjectByCasID(ctx, g.CasID)
	if err != nil {
		return false, 0, fmt.Errorf("failed to find object: %w", err)
	}

	// 2. 不存在则创建
	created := false
	if obj == nil {
		obj, created, err = p.create(ctx, g)
		if err != nil {
			return false, 0, err
		}
	}

	// 3. 关联所有路径
	ids := make([]types.FilePathID, 0, len(g.Paths))
	ops := make([]meta.SyncOperation, 0, len(g.Paths)*2)
	for _, fp := range g.Paths {
		ids = append(ids, fp.ID)
		ops = append(ops,
			p.sync.SharedUpdate(synclog.ModelFilePath, fp.PubID, "cas_id", g.CasID.String()),
			p.sync.SharedUpdate(synclog.ModelFilePath, fp.PubID, "object", map[string]any{"pub_id": obj.PubID}),
		)
	}

	n, err := p.store.LinkFilePaths(ctx, obj.ID, g.CasID, ids, ops)
	if err != nil {
		return false, 0, err
	}
	return created, int(n), nil
}

// create 尝试创建对象；如果其他单元抢先创建了，就重新查询并当作"已找到"处理
func (p *ObjectProcessor) create(ctx context.Context, g batch.Group) (*meta.Object, bool, error) {
	// 同一分组内的路径种类一致 (内容相同)，取第一个即可
	k := g.Paths[0].Kind

	obj := &meta.Object{
		PubID: uuid.NewString(),
		CasID: g.CasID,
		Kind:  int(k),
	}
	op := p.sync.SharedCreate(synclog.ModelObject, obj.PubID, map[string]any{
		"cas_id": g.CasID.String(),
		"kind":   int(k),
	})

	err := p.store.CreateObject(ctx, obj, []meta.SyncOperation{op})
	if err == nil {
		return obj, true, nil
	}
	if !errors.Is(err, meta.ErrObjectExists) {
		return nil, false, fmt.Errorf("failed to create object: %w", err)
	}

	existing, err := p.store.FindObjectByCasID(ctx, g.CasID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to refetch object: %w", err)
	}
	if existing == nil {
		// 冲突之后却查不到，说明存储层的约束与查询不一致
		return nil, false, fmt.Errorf("object %s vanished after create conflict", g.CasID.Short())
	}
	return existing, false, nil
}
