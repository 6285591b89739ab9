// Package cache 用 Redis 为内容对象的查找加一层缓存。
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fileident/pkg/core"
	"fileident/pkg/meta"
	"fileident/pkg/processor"
	"fileident/pkg/types"

	"github.com/redis/go-redis/v9"
)

// CachedObjects 是一个装饰器，为 processor.Store 的 FindObjectByCasID 添加 Redis 缓存
// 对象一旦创建就不会再改变 CasID，所以缓存的正向结果永远不会过时；
// "未找到" 不缓存，否则会挡住其他单元刚刚创建的对象
type CachedObjects struct {
	backend processor.Store // 被装饰的底层存储 (通常是 meta.Repository)
	client  *redis.Client
	ttl     time.Duration // 缓存过期时间 (例如 24h)
}

type Config struct {
	RedisURL string        // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 过期时间
}

// NewCachedObjects 连接 Redis 并包装 backend
func NewCachedObjects(backend processor.Store, cfg Config) (*CachedObjects, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewCachedObjectsWithClient(backend, client, cfg.TTL), nil
}

// NewCachedObjectsWithClient 使用现有的客户端
func NewCachedObjectsWithClient(backend processor.Store, client *redis.Client, ttl time.Duration) *CachedObjects {
	return &CachedObjects{backend: backend, client: client, ttl: ttl}
}

// Close 关闭 Redis 连接
func (s *CachedObjects) Close() error {
	return s.client.Close()
}

// cacheKey 生成 Redis Key，添加前缀防止冲突
func (s *CachedObjects) cacheKey(casID types.CasID) string {
	return "fi:obj:" + casID.String()
}

// cachedObject 是写入 Redis 的精简结构
type cachedObject struct {
	ID    types.ObjectID `cbor:"1,keyasint"`
	PubID string         `cbor:"2,keyasint"`
	Kind  int            `cbor:"3,keyasint"`
}

// FindObjectByCasID 优先查 Redis
func (s *CachedObjects) FindObjectByCasID(ctx context.Context, casID types.CasID) (*meta.Object, error) {
	key := s.cacheKey(casID)

	// 1. 查 Redis
	raw, err := s.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var c cachedObject
		if err := core.DecodeObject(raw, &c); err == nil {
			return &meta.Object{ID: c.ID, PubID: c.PubID, CasID: casID, Kind: c.Kind}, nil
		}
		// 损坏的缓存条目当作未命中
		slog.Warn("dropping undecodable cache entry", slog.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		// 缓存故障降级：Redis 挂了就直接查数据库
		slog.Warn("redis lookup failed", slog.String("key", key), slog.Any("error", err))
	}

	// 2. 缓存未命中，查底层存储
	obj, err := s.backend.FindObjectByCasID(ctx, casID)
	if err != nil || obj == nil {
		return obj, err
	}

	// 3. 缓存回填
	s.fill(ctx, obj)
	return obj, nil
}

// CreateObject 穿透到底层，成功后写入缓存
func (s *CachedObjects) CreateObject(ctx context.Context, obj *meta.Object, ops []meta.SyncOperation) error {
	if err := s.backend.CreateObject(ctx, obj, ops); err != nil {
		return err
	}
	s.fill(ctx, obj)
	return nil
}

// LinkFilePaths 透传
func (s *CachedObjects) LinkFilePaths(ctx context.Context, objectID types.ObjectID, casID types.CasID, ids []types.FilePathID, ops []meta.SyncOperation) (int64, error) {
	return s.backend.LinkFilePaths(ctx, objectID, casID, ids, ops)
}

// fill 写入缓存，失败只记录日志
func (s *CachedObjects) fill(ctx context.Context, obj *meta.Object) {
	raw, err := core.EncodeCanonical(cachedObject{ID: obj.ID, PubID: obj.PubID, Kind: obj.Kind})
	if err != nil {
		return
	}
	// 使用 WithoutCancel 确保即使上层 ctx 取消，回填也能完成
	fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.client.Set(fillCtx, s.cacheKey(obj.CasID), raw, s.ttl).Err(); err != nil {
		slog.Warn("redis fill failed", slog.String("cas_id", obj.CasID.Short()), slog.Any("error", err))
	}
}
