package websocket

import (
	"context"
	"io"
	"net"
)

// MessageTypeは、WebSocketのメッセージタイプを表します。
type MessageType int

const (
	MessageText   MessageType = iota + 1 // テキストメッセージ
	MessageBinary                        // バイナリメッセージ
)

// Connは、WebSocketのコネクションインターフェースです。
//
// 正常なクローズフレームを受信した場合、Readerは io.EOF を返却する必要があります。
type Conn interface {
	// Closeは、コネクションをクローズします。
	Close() error

	// Readerは、WebSocketメッセージのReaderを返却します。
	Reader(context.Context) (MessageType, io.Reader, error)

	// Writerは、WebSocketメッセージのWriterを返却します。
	Writer(context.Context, MessageType) (io.WriteCloser, error)

	// LocalAddrは、ローカル側のアドレスを返却します。
	LocalAddr() net.Addr
	// RemoteAddrは、リモート側のアドレスを返却します。
	RemoteAddr() net.Addr
}

// UnderlyingConnSupporterは、WebSocketの基盤となるnet.Connを返却できるConnです。
type UnderlyingConnSupporter interface {
	UnderlyingConn() net.Conn
}
