package webtransport

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"

	webtransgo "github.com/quic-go/webtransport-go"

	"github.com/aptpod/multipath-go/transport"
)

var _ transport.Listener = (*Listener)(nil)

// Listenerは、HTTP/3サーバーでWebTransportのセッションを受け付け、ピアが開いた最初の双方向ストリームをパスとして返却します。
type Listener struct {
	conn     net.PacketConn
	srv      *webtransgo.Server
	acceptCh chan *Conn

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Listenは、addrで待ち受け、pathへのリクエストをWebTransportのセッションとして受け付けるListenerを生成します。
//
// Closeすると、受け付け済みのパスもクローズします。
func Listen(addr, path string, tlsConf *tls.Config) (*Listener, error) {
	if path == "" {
		path = DefaultPath
	}
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		conn:     conn,
		acceptCh: make(chan *Conn),
		ctx:      ctx,
		cancel:   cancel,
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, l.handle)
	l.srv = &webtransgo.Server{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	l.srv.H3.TLSConfig = tlsConf.Clone()
	l.srv.H3.Handler = mux

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		_ = l.srv.Serve(conn)
	}()
	return l, nil
}

func (l *Listener) handle(w http.ResponseWriter, r *http.Request) {
	sess, err := l.srv.Upgrade(w, r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	stream, err := sess.AcceptStream(l.ctx)
	if err != nil {
		_ = sess.CloseWithError(0, "")
		return
	}
	c := newConn(sess, stream, nil)
	select {
	case <-l.ctx.Done():
		_ = sess.CloseWithError(0, "")
		return
	case l.acceptCh <- c:
	}
	select {
	case <-l.ctx.Done():
	case <-sess.Context().Done():
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

// Closeは、HTTP/3サーバーを停止します。
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.cancel()
		err = l.srv.Close()
		_ = l.conn.Close()
		l.wg.Wait()
	})
	return err
}

func (l *Listener) Addr() net.Addr {
	return l.conn.LocalAddr()
}
