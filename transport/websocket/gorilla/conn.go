package gorilla

import (
	"context"
	"io"
	"net"
	"time"

	gwebsocket "github.com/gorilla/websocket"

	"github.com/aptpod/multipath-go/transport/websocket"
)

var _ websocket.Conn = (*Conn)(nil)

// Connは、 gorilla/websocketのConnのラッパーです。
type Conn struct {
	wsconn *gwebsocket.Conn
}

// Newは、Connを返却します。
func New(wsconn *gwebsocket.Conn) *Conn {
	return &Conn{
		wsconn: wsconn,
	}
}

// Readerは、WebSocketのReaderを取得します。
func (c *Conn) Reader(ctx context.Context) (websocket.MessageType, io.Reader, error) {
	tp, rd, err := c.wsconn.NextReader()
	if err != nil {
		return 0, nil, handleError(err)
	}
	switch tp {
	case gwebsocket.BinaryMessage:
		return websocket.MessageBinary, rd, nil
	case gwebsocket.TextMessage:
		return websocket.MessageText, rd, nil
	}
	panic("unreachable")
}

// Writerは、WebSocketのWriterを取得します。
func (c *Conn) Writer(ctx context.Context, tp websocket.MessageType) (io.WriteCloser, error) {
	mt := gwebsocket.BinaryMessage
	if tp == websocket.MessageText {
		mt = gwebsocket.TextMessage
	}
	res, err := c.wsconn.NextWriter(mt)
	if err != nil {
		return nil, handleError(err)
	}
	return res, nil
}

// Closeは、正常終了のクローズフレームを送信してWebSocketをクローズします。
func (c *Conn) Close() error {
	msg := gwebsocket.FormatCloseMessage(gwebsocket.CloseNormalClosure, "")
	_ = c.wsconn.WriteControl(gwebsocket.CloseMessage, msg, time.Now().Add(time.Second))
	return handleError(c.wsconn.Close())
}

func (c *Conn) LocalAddr() net.Addr  { return c.wsconn.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.wsconn.RemoteAddr() }

// UnderlyingConnは、WebSocketの基盤となるnet.Connを返します。
func (c *Conn) UnderlyingConn() net.Conn {
	return c.wsconn.NetConn()
}
