package quic

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	quic "github.com/quic-go/quic-go"

	"github.com/aptpod/multipath-go/errors"
	"github.com/aptpod/multipath-go/transport"
)

// for test
var lingerTimeout = 3 * time.Second

var _ transport.Conn = (*Conn)(nil)

/*
Conn は、QUICコネクション上の1本の双方向ストリームをパスのソケットとして扱います。

Close はストリームの送信側を閉じ、ピアからの終端を受け取るか lingerTimeout が経過した後にQUICコネクションを閉じます。
*/
type Conn struct {
	conn    quic.Connection
	stream  quic.Stream
	onClose func()

	closed    atomic.Bool
	closeOnce sync.Once
	eofOnce   sync.Once
	readEOF   chan struct{}
}

func newConn(conn quic.Connection, stream quic.Stream, onClose func()) *Conn {
	return &Conn{
		conn:    conn,
		stream:  stream,
		onClose: onClose,
		readEOF: make(chan struct{}),
	}
}

func (c *Conn) Read(p []byte) (int, error) {
	n, err := c.stream.Read(p)
	return n, c.wrapError(err)
}

func (c *Conn) Write(p []byte) (int, error) {
	n, err := c.stream.Write(p)
	return n, c.wrapError(err)
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		_ = c.stream.Close()
		go func() {
			select {
			case <-c.readEOF:
			case <-time.After(lingerTimeout):
			}
			_ = c.conn.CloseWithError(0, "")
			if c.onClose != nil {
				c.onClose()
			}
		}()
	})
	return nil
}

func (c *Conn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *Conn) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) {
		c.eofOnce.Do(func() { close(c.readEOF) })
		return io.EOF
	}
	if c.closed.Load() {
		return fmt.Errorf("%v: %w", err, net.ErrClosed)
	}
	if isErrTransportClosed(err) {
		c.eofOnce.Do(func() { close(c.readEOF) })
		return io.EOF
	}
	return err
}

func isErrTransportClosed(err error) bool {
	if err == context.Canceled {
		return true
	}

	var aerr *quic.ApplicationError
	if errors.As(err, &aerr) {
		if aerr.ErrorCode == 0 {
			return true
		}
	}

	var serr *quic.StreamError
	if errors.As(err, &serr) {
		if serr.ErrorCode == 0 {
			return true
		}
	}
	return false
}
