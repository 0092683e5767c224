package resolver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aptpod/multipath-go/message"
	. "github.com/aptpod/multipath-go/resolver"
)

func TestCache(t *testing.T) {
	ctx := context.Background()
	ifaces := message.InterfaceSet{
		message.MustInterface("10.0.0.3:9000"),
		message.MustInterface("10.0.0.4:9000"),
	}

	t.Run("登録したインターフェースを解決できる", func(t *testing.T) {
		c, err := NewCache(0)
		require.NoError(t, err)
		require.NoError(t, c.Advertise(ctx, 2, ifaces))

		got, err := c.Resolve(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, ifaces, got)

		// 返却値を変更しても登録内容は変わらない
		got[0] = message.MustInterface("10.0.0.9:9000")
		got2, err := c.Resolve(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, ifaces, got2)
	})

	t.Run("未登録", func(t *testing.T) {
		c, err := NewCache(0)
		require.NoError(t, err)
		_, err = c.Resolve(ctx, 1)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("上書きと削除", func(t *testing.T) {
		c, err := NewCache(0)
		require.NoError(t, err)
		require.NoError(t, c.Advertise(ctx, 2, ifaces))
		require.NoError(t, c.Advertise(ctx, 2, ifaces[:1]))
		got, err := c.Resolve(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, ifaces[:1], got)

		c.Remove(2)
		_, err = c.Resolve(ctx, 2)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("保持数を超えると古いものから破棄される", func(t *testing.T) {
		c, err := NewCache(2)
		require.NoError(t, err)
		require.NoError(t, c.Advertise(ctx, 1, ifaces))
		require.NoError(t, c.Advertise(ctx, 2, ifaces))
		_, err = c.Resolve(ctx, 1)
		require.NoError(t, err)
		require.NoError(t, c.Advertise(ctx, 3, ifaces))

		assert.Equal(t, 2, c.Len())
		_, err = c.Resolve(ctx, 2)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = c.Resolve(ctx, 1)
		assert.NoError(t, err)
	})
}
