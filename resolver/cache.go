package resolver

import (
	"context"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aptpod/multipath-go/errors"
	"github.com/aptpod/multipath-go/message"
)

// DefaultCacheSizeは、Cacheが保持するIdentityの数のデフォルト値です。
const DefaultCacheSize = 1024

var _ Resolver = (*Cache)(nil)

// Cacheは、メモリ上に登録内容を保持するResolverです。
//
// 保持数を超えた場合は最も長く参照されていないIdentityから破棄します。
type Cache struct {
	entries *lru.Cache[message.Identity, message.InterfaceSet]
}

// NewCacheは、最大size個のIdentityを保持するCacheを生成します。
//
// sizeが0以下の場合は DefaultCacheSize を使用します。
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[message.Identity, message.InterfaceSet](size)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries}, nil
}

// Resolveは、登録されているインターフェースの一覧のコピーを返却します。
func (c *Cache) Resolve(ctx context.Context, id message.Identity) (message.InterfaceSet, error) {
	v, ok := c.entries.Get(id)
	if !ok {
		return nil, errors.Errorf("resolve %v: %w", id, ErrNotFound)
	}
	return slices.Clone(v), nil
}

// Advertiseは、idのインターフェースの一覧を置き換えます。
func (c *Cache) Advertise(ctx context.Context, id message.Identity, ifaces message.InterfaceSet) error {
	c.entries.Add(id, slices.Clone(ifaces))
	return nil
}

// Removeは、idの登録を削除します。
func (c *Cache) Remove(id message.Identity) {
	c.entries.Remove(id)
}

// Lenは、登録されているIdentityの数を返却します。
func (c *Cache) Len() int {
	return c.entries.Len()
}
