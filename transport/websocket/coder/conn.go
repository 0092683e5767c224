package coder

import (
	"context"
	"io"
	"net"

	cwebsocket "github.com/coder/websocket"

	"github.com/aptpod/multipath-go/errors"
	"github.com/aptpod/multipath-go/transport/websocket"
)

var _ websocket.Conn = (*Conn)(nil)

// Connは、 coder/websocketのConnのラッパーです。
type Conn struct {
	wsconn         *cwebsocket.Conn
	underlyingConn net.Conn
	local, remote  net.Addr
}

// Newは、Connを返却します。
func New(wsconn *cwebsocket.Conn, local, remote net.Addr) *Conn {
	wsconn.SetReadLimit(-1)
	return &Conn{
		wsconn: wsconn,
		local:  local,
		remote: remote,
	}
}

// NewWithUnderlyingConnは、underlying connを指定してConnを返却します。
func NewWithUnderlyingConn(wsconn *cwebsocket.Conn, conn net.Conn) *Conn {
	c := New(wsconn, conn.LocalAddr(), conn.RemoteAddr())
	c.underlyingConn = conn
	return c
}

// Readerは、WebSocketのReaderを取得します。
func (c *Conn) Reader(ctx context.Context) (websocket.MessageType, io.Reader, error) {
	tp, rd, err := c.wsconn.Reader(ctx)
	if err != nil {
		return 0, nil, handleError(err)
	}
	switch tp {
	case cwebsocket.MessageBinary:
		return websocket.MessageBinary, rd, nil
	case cwebsocket.MessageText:
		return websocket.MessageText, rd, nil
	}
	panic("unreachable")
}

// Writerは、WebSocketのWriterを取得します。
func (c *Conn) Writer(ctx context.Context, tp websocket.MessageType) (io.WriteCloser, error) {
	mt := cwebsocket.MessageBinary
	if tp == websocket.MessageText {
		mt = cwebsocket.MessageText
	}
	wr, err := c.wsconn.Writer(ctx, mt)
	if err != nil {
		return nil, handleError(err)
	}
	return wr, nil
}

// Closeは、正常終了のステータスでWebSocketをクローズします。
//
// 既にクローズハンドシェイクが完了している場合はエラーを返却しません。
func (c *Conn) Close() error {
	err := handleError(c.wsconn.Close(cwebsocket.StatusNormalClosure, ""))
	if err == io.EOF || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *Conn) LocalAddr() net.Addr  { return c.local }
func (c *Conn) RemoteAddr() net.Addr { return c.remote }

// UnderlyingConnは、WebSocketの基盤となるnet.Connを返します。
// Dialで取得したnet.Connがある場合はそれを返し、ない場合はnilを返します。
func (c *Conn) UnderlyingConn() net.Conn {
	return c.underlyingConn
}
