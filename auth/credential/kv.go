package credential

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kochabx/kais/errors"
	"github.com/kochabx/kais/store/redis"
)

// KV 凭据存储的键值契约，键已带前缀
type KV interface {
	// Get 读取键，不存在时 ok 为 false
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Batcher 可选接口：一次性写入和删除多个键，Store 用它保证令牌对的原子性
type Batcher interface {
	Batch(ctx context.Context, set map[string]string, del []string) error
}

var (
	_ Batcher = (*MemoryKV)(nil)
	_ Batcher = (*FileKV)(nil)
	_ Batcher = (*RedisKV)(nil)
)

// MemoryKV 内存存储，进程退出即丢失
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryKV 创建内存存储
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *MemoryKV) Batch(_ context.Context, set map[string]string, del []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range del {
		delete(m.data, k)
	}
	for k, v := range set {
		m.data[k] = v
	}
	return nil
}

// FileKV 以 JSON 对象保存在单个文件中，写入先落临时文件再原子替换，权限 0600
type FileKV struct {
	mu   sync.Mutex
	path string
}

// NewFileKV 创建文件存储，目录不存在时在首次写入时创建
func NewFileKV(path string) *FileKV {
	return &FileKV{path: path}
}

// Path 返回文件路径
func (f *FileKV) Path() string {
	return f.path
}

// read 读取整个文件；文件不存在或内容损坏都按空处理
func (f *FileKV) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, 500, "read %s", f.path)
	}

	m := map[string]string{}
	if json.Unmarshal(data, &m) != nil {
		return map[string]string{}, nil
	}
	return m, nil
}

func (f *FileKV) write(m map[string]string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, 500, "encode credentials")
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, 500, "create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, 500, "create temp file in %s", dir)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, 500, "write %s", tmp.Name())
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return errors.Wrap(err, 500, "chmod %s", tmp.Name())
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, 500, "sync %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, 500, "close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return errors.Wrap(err, 500, "replace %s", f.path)
	}
	return nil
}

func (f *FileKV) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := f.read()
	if err != nil {
		return "", false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

func (f *FileKV) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := f.read()
	if err != nil {
		return err
	}
	m[key] = value
	return f.write(m)
}

func (f *FileKV) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := f.read()
	if err != nil {
		return err
	}
	changed := false
	for _, k := range keys {
		if _, ok := m[k]; ok {
			delete(m, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return f.write(m)
}

func (f *FileKV) Batch(_ context.Context, set map[string]string, del []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := f.read()
	if err != nil {
		return err
	}
	for _, k := range del {
		delete(m, k)
	}
	for k, v := range set {
		m[k] = v
	}
	return f.write(m)
}

// RedisKV 基于 Redis 的存储，多个进程共享同一会话
type RedisKV struct {
	client *redis.Client
	ttl    time.Duration // 0 表示不过期
}

// NewRedisKV 创建 Redis 存储
func NewRedisKV(client *redis.Client, ttl time.Duration) *RedisKV {
	return &RedisKV{client: client, ttl: ttl}
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.UniversalClient().Get(ctx, key).Result()
	if errors.Is(err, redis.ErrNil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, 500, "redis get %s", key)
	}
	return v, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string) error {
	if err := r.client.UniversalClient().Set(ctx, key, value, r.ttl).Err(); err != nil {
		return errors.Wrap(err, 500, "redis set %s", key)
	}
	return nil
}

func (r *RedisKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.UniversalClient().Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, 500, "redis del")
	}
	return nil
}

// Batch 在 MULTI/EXEC 事务中执行。集群模式下请使用带 hash tag 的前缀（如 "{kais}_"），让所有键落在同一 slot。
func (r *RedisKV) Batch(ctx context.Context, set map[string]string, del []string) error {
	_, err := r.client.UniversalClient().TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		if len(del) > 0 {
			pipe.Del(ctx, del...)
		}
		for k, v := range set {
			pipe.Set(ctx, k, v, r.ttl)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, 500, "redis batch")
	}
	return nil
}
