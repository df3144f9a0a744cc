package cache

import (
	"context"
	"sync"

	"github.com/gogf/gf/v2/frame/g"
)

// SchemaCache 进程内Schema快照缓存。
// 以数据源Identity为键，同一键的并发构建由条目级互斥串行化，
// 确保慢速的结构提取只执行一次。空白快照视为未命中，不会被保留。
type SchemaCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	mu       sync.Mutex
	snapshot string
}

// NewSchemaCache 创建Schema缓存
func NewSchemaCache() *SchemaCache {
	return &SchemaCache{
		entries: make(map[string]*cacheEntry),
	}
}

// GetOrBuild 命中则直接返回快照，否则在条目锁内调用build构建。
// build返回错误或空白快照时不缓存，下次调用会重新构建。
func (c *SchemaCache) GetOrBuild(ctx context.Context, identity string, build func(ctx context.Context) (string, error)) (string, error) {
	entry := c.entry(identity)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.snapshot != "" {
		g.Log().Debugf(ctx, "Schema缓存命中 - Identity: %s", identity)
		return entry.snapshot, nil
	}

	snapshot, err := build(ctx)
	if err != nil {
		return "", err
	}
	if snapshot == "" {
		return "", nil
	}

	entry.snapshot = snapshot
	g.Log().Infof(ctx, "Schema缓存写入 - Identity: %s, 快照长度: %d", identity, len(snapshot))
	return snapshot, nil
}

// Get 只读查询，未命中返回空串
func (c *SchemaCache) Get(identity string) string {
	c.mu.Lock()
	entry, ok := c.entries[identity]
	c.mu.Unlock()
	if !ok {
		return ""
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.snapshot
}

// Invalidate 失效指定数据源的快照，结构变更后由调用方显式触发
func (c *SchemaCache) Invalidate(identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, identity)
}

func (c *SchemaCache) entry(identity string) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[identity]
	if !ok {
		entry = &cacheEntry{}
		c.entries[identity] = entry
	}
	return entry
}
