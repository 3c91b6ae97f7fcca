package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"ledgerseal/pkg/storage"
	"ledgerseal/pkg/types"

	"github.com/redis/go-redis/v9"
)

// CachedStore 是一个装饰器，它为底层的 storage.Store 添加 Redis 缓存层
// 缓存只记录“这段内容已经上传过、地址是什么”，不缓存内容本身
type CachedStore struct {
	backend storage.Store // 被装饰的底层存储 (如 S3 / IPFS)
	client  *redis.Client
	ttl     time.Duration
	// namespace 区分后端：同一个 Redis 服务多个存储时，地址不会串用
	namespace string
}

type Config struct {
	RedisURL string        // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 过期时间
	// Namespace 标识被装饰的后端，例如 "s3:minio:9000/bucket/prefix"
	Namespace string
}

func NewCachedStore(backend storage.Store, cfg Config) (*CachedStore, error) {
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

	return &CachedStore{
		backend:   backend,
		client:    client,
		ttl:       cfg.TTL,
		namespace: cfg.Namespace,
	}, nil
}

// blobKey 以本地计算的 CID 为键，值是后端返回的地址
func (s *CachedStore) blobKey(local types.ContentAddress) string {
	return "ls:" + s.namespace + ":blob:" + string(local)
}

// addrKey 记录后端地址的存在性
func (s *CachedStore) addrKey(addr types.ContentAddress) string {
	return "ls:" + s.namespace + ":addr:" + string(addr)
}

// Put 命中缓存时直接返回已知地址，不再访问后端
func (s *CachedStore) Put(ctx context.Context, data []byte) (types.ContentAddress, error) {
	local, err := storage.AddressOf(data)
	if err != nil {
		return "", storage.Rejected("address", err)
	}

	// 1. 查 Redis
	known, err := s.client.Get(ctx, s.blobKey(local)).Result()
	switch {
	case err == nil && known != "":
		return types.ContentAddress(known), nil
	case err != nil && !errors.Is(err, redis.Nil):
		// 缓存故障降级：Redis 挂了就直接走后端
		slog.Warn("redis lookup failed, falling back to backend", slog.Any("err", err))
	}

	// 2. 穿透到底层存储
	addr, err := s.backend.Put(ctx, data)
	if err != nil {
		return "", err
	}

	// 3. 写入缓存 (只有后端成功了才写)
	// 这里的错误不影响主流程
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.blobKey(local), string(addr), s.ttl)
	pipe.Set(ctx, s.addrKey(addr), "1", s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("redis fill failed", slog.Any("err", err))
	}

	return addr, nil
}

// Has 优先查 Redis
func (s *CachedStore) Has(ctx context.Context, addr types.ContentAddress) (bool, error) {
	val, err := s.client.Exists(ctx, s.addrKey(addr)).Result()
	if err != nil {
		slog.Warn("redis exists failed, falling back to backend", slog.Any("err", err))
	} else if val > 0 {
		return true, nil
	}

	found, err := s.backend.Has(ctx, addr)
	if err != nil {
		return false, err
	}

	// 缓存回填：异步写入，不阻塞主流程
	if found {
		go func() {
			fillCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.client.Set(fillCtx, s.addrKey(addr), "1", s.ttl)
		}()
	}
	return found, nil
}

// Get 透传 - 不缓存 Blob 数据
func (s *CachedStore) Get(ctx context.Context, addr types.ContentAddress) (io.ReadCloser, error) {
	return s.backend.Get(ctx, addr)
}

// Close 释放 Redis 连接
func (s *CachedStore) Close() error {
	return s.client.Close()
}
