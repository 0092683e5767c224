package webtransport

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	quic "github.com/quic-go/quic-go"
	webtransgo "github.com/quic-go/webtransport-go"

	"github.com/aptpod/multipath-go/errors"
	"github.com/aptpod/multipath-go/transport"
)

// for test
var lingerTimeout = 3 * time.Second

var _ transport.Conn = (*Conn)(nil)

/*
Conn は、WebTransportのセッション上の1本の双方向ストリームです。

Close はストリームの送信側を閉じ、ピアからの終端を受け取るか lingerTimeout が経過した後にセッションを閉じます。
*/
type Conn struct {
	sess    *webtransgo.Session
	stream  io.ReadWriteCloser
	onClose func()

	closed    atomic.Bool
	closeOnce sync.Once
	eofOnce   sync.Once
	readEOF   chan struct{}
}

func newConn(sess *webtransgo.Session, stream io.ReadWriteCloser, onClose func()) *Conn {
	return &Conn{
		sess:    sess,
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
			case <-c.sess.Context().Done():
			case <-time.After(lingerTimeout):
			}
			_ = c.sess.CloseWithError(0, "")
			if c.onClose != nil {
				c.onClose()
			}
		}()
	})
	return nil
}

func (c *Conn) LocalAddr() net.Addr  { return c.sess.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.sess.RemoteAddr() }

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
	if c.isSessionClosed(err) {
		c.eofOnce.Do(func() { close(c.readEOF) })
		return io.EOF
	}
	return err
}

// isSessionClosedは、errがピアによる正常なセッションまたはストリームの終了を表すかどうかを返却します。
func (c *Conn) isSessionClosed(err error) bool {
	if err == context.Canceled {
		return true
	}

	var serr *webtransgo.StreamError
	if errors.As(err, &serr) {
		return serr.ErrorCode == 0
	}

	var aerr *quic.ApplicationError
	if errors.As(err, &aerr) {
		return aerr.ErrorCode == 0
	}

	select {
	case <-c.sess.Context().Done():
		return true
	default:
		return false
	}
}
