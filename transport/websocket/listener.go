package websocket

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aptpod/multipath-go/transport"
)

// DefaultPathは、WebSocketのエンドポイントのデフォルトのパスです。
const DefaultPath = "/multipath"

// UpgradeFuncは、HTTPリクエストをWebSocketへアップグレードする関数です。
type UpgradeFunc func(w http.ResponseWriter, r *http.Request) (Conn, error)

var _ transport.Listener = (*Listener)(nil)

// Listenerは、HTTPサーバーでWebSocketのアップグレードを受け付けるListenerです。
type Listener struct {
	ln       net.Listener
	srv      *http.Server
	upgrade  UpgradeFunc
	acceptCh chan *Stream

	closeOnce sync.Once
	closedCh  chan struct{}
	wg        sync.WaitGroup
}

// NewListenerは、addrで待ち受け、pathへのリクエストをupgradeでWebSocketにするListenerを生成します。
func NewListener(addr, path string, upgrade UpgradeFunc) (*Listener, error) {
	if path == "" {
		path = DefaultPath
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	l := &Listener{
		ln:       ln,
		upgrade:  upgrade,
		acceptCh: make(chan *Stream),
		closedCh: make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, l.handle)
	l.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		_ = l.srv.Serve(ln)
	}()
	return l, nil
}

func (l *Listener) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrade(w, r)
	if err != nil {
		return
	}
	s := NewStream(conn)
	select {
	case <-l.closedCh:
		_ = s.Close()
		return
	case l.acceptCh <- s:
	}
	select {
	case <-l.closedCh:
	case <-s.Done():
	}
}

// Acceptは、次のパスを受け付けます。
func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closedCh:
		return nil, net.ErrClosed
	case s := <-l.acceptCh:
		return s, nil
	}
}

// Closeは、HTTPサーバーを停止します。受け付け済みのパスはクローズしません。
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closedCh)
		err = l.srv.Close()
		l.wg.Wait()
	})
	return err
}

func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}
