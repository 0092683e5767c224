package transport_test

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	. "github.com/aptpod/multipath-go/transport"
)

func TestMemoryNetwork(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()

	t.Run("送受信", func(t *testing.T) {
		n := NewMemoryNetwork()
		ln, err := n.Listen("10.0.0.3:9000")
		require.NoError(t, err)
		defer ln.Close()

		cli, err := n.Dial(ctx, DialConfig{Address: "10.0.0.3:9000", LocalAddress: "10.0.0.1:0"})
		require.NoError(t, err)
		defer cli.Close()
		srv, err := ln.Accept(ctx)
		require.NoError(t, err)
		defer srv.Close()

		assert.Equal(t, "10.0.0.3:9000", cli.RemoteAddr().String())
		assert.Equal(t, "10.0.0.1:40001", cli.LocalAddr().String())
		assert.Equal(t, cli.LocalAddr().String(), srv.RemoteAddr().String())

		msg := []byte{1, 2, 3, 4, 5}
		go func() {
			_, err := cli.Write(msg)
			assert.NoError(t, err)
		}()
		got := make([]byte, len(msg))
		_, err = io.ReadFull(srv, got)
		require.NoError(t, err)
		assert.Equal(t, msg, got)
	})

	t.Run("クローズするとピアはEOFを受け取る", func(t *testing.T) {
		n := NewMemoryNetwork()
		ln, err := n.Listen("10.0.0.3:9000")
		require.NoError(t, err)
		defer ln.Close()

		cli, err := n.Dial(ctx, DialConfig{Address: "10.0.0.3:9000"})
		require.NoError(t, err)
		srv, err := ln.Accept(ctx)
		require.NoError(t, err)
		defer srv.Close()

		require.NoError(t, cli.Close())
		_, err = srv.Read(make([]byte, 1))
		assert.ErrorIs(t, err, io.EOF)
		assert.True(t, IsClosed(err))

		_, err = cli.Read(make([]byte, 1))
		assert.ErrorIs(t, err, net.ErrClosed)
		assert.True(t, IsClosed(err))
	})

	t.Run("異常終了", func(t *testing.T) {
		n := NewMemoryNetwork()
		ln, err := n.Listen("10.0.0.4:9000")
		require.NoError(t, err)
		defer ln.Close()

		cli, err := n.Dial(ctx, DialConfig{Address: "10.0.0.4:9000"})
		require.NoError(t, err)
		defer cli.Close()
		srv, err := ln.Accept(ctx)
		require.NoError(t, err)
		defer srv.Close()

		assert.Equal(t, 1, n.Abort("10.0.0.4:9000"))
		_, err = srv.Read(make([]byte, 1))
		assert.ErrorIs(t, err, ErrConnectionReset)
		assert.False(t, IsClosed(err))
		_, err = cli.Write([]byte{1})
		assert.ErrorIs(t, err, ErrConnectionReset)
	})

	t.Run("待ち受けていないアドレス", func(t *testing.T) {
		n := NewMemoryNetwork()
		_, err := n.Dial(ctx, DialConfig{Address: "10.0.0.9:9000"})
		assert.ErrorIs(t, err, ErrConnectionRefused)
	})

	t.Run("同じアドレスで二重に待ち受ける", func(t *testing.T) {
		n := NewMemoryNetwork()
		ln, err := n.Listen("10.0.0.3:9000")
		require.NoError(t, err)
		_, err = n.Listen("10.0.0.3:9000")
		assert.ErrorIs(t, err, ErrAddressInUse)

		require.NoError(t, ln.Close())
		_, err = ln.Accept(ctx)
		assert.ErrorIs(t, err, net.ErrClosed)

		ln2, err := n.Listen("10.0.0.3:9000")
		require.NoError(t, err)
		require.NoError(t, ln2.Close())
	})
}
