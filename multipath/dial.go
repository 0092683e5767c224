package multipath

import (
	"context"

	"github.com/aptpod/multipath-go/errors"
	"github.com/aptpod/multipath-go/message"
	"github.com/aptpod/multipath-go/resolver"
)

// Dialは、remoteのインターフェースを名前解決し、コネクションを確立します。
//
// remoteのインターフェースが見つからない場合は errors.ErrNoReachableInterface を返却します。
func Dial(ctx context.Context, r resolver.Resolver, remote message.Identity, opts ...ConnOption) (*Conn, error) {
	ifaces, err := r.Resolve(ctx, remote)
	if err != nil {
		if errors.Is(err, resolver.ErrNotFound) {
			return nil, errors.Errorf("resolve %v: %w", remote, errors.Join(err, errors.ErrNoReachableInterface))
		}
		return nil, errors.Errorf("resolve %v: %w", remote, err)
	}
	c, err := NewConn(opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Connect(ctx, remote, ifaces); err != nil {
		_ = c.Close(context.Background())
		return nil, err
	}
	return c, nil
}
