package quic

import (
	"context"
	"crypto/tls"
	"net"
	"sync"

	quic "github.com/quic-go/quic-go"

	"github.com/aptpod/multipath-go/transport"
)

var _ transport.Listener = (*Listener)(nil)

// Listenerは、QUICコネクションを受け付け、ピアが開いた最初の双方向ストリームをパスとして返却します。
type Listener struct {
	ln       *quic.Listener
	acceptCh chan *Conn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Listenは、addrで待ち受けるListenerを生成します。
//
// tlsConf.NextProtosは `multipath` に上書きします。
func Listen(addr string, tlsConf *tls.Config, conf *quic.Config) (*Listener, error) {
	tlsConf = tlsConf.Clone()
	tlsConf.NextProtos = []string{NextProto}
	ln, err := quic.ListenAddr(addr, tlsConf, conf)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		ln:       ln,
		acceptCh: make(chan *Conn),
		ctx:      ctx,
		cancel:   cancel,
	}
	l.wg.Add(1)
	go l.acceptLoop()
	return l, nil
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()
	for {
		conn, err := l.ln.Accept(l.ctx)
		if err != nil {
			return
		}
		l.wg.Add(1)
		go l.acceptStream(conn)
	}
}

func (l *Listener) acceptStream(conn quic.Connection) {
	defer l.wg.Done()
	stream, err := conn.AcceptStream(l.ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "")
		return
	}
	c := newConn(conn, stream, nil)
	select {
	case <-l.ctx.Done():
		_ = conn.CloseWithError(0, "")
	case l.acceptCh <- c:
	}
}

// Acceptは、次のパスを受け付けます。
func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.ctx.Done():
		return nil, net.ErrClosed
	case c := <-l.acceptCh:
		return c, nil
	}
}

// Closeは、受け付けを停止します。受け付け済みのパスはクローズしません。
func (l *Listener) Close() error {
	l.cancel()
	err := l.ln.Close()
	l.wg.Wait()
	return err
}

func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}
