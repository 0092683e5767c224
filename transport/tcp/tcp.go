// Package tcp は、TCPのソケットをパスとして使用するためのパッケージです。
package tcp

import (
	"context"
	"net"
	"time"

	"github.com/aptpod/multipath-go/transport"
	"github.com/aptpod/multipath-go/transport/metrics"
)

var (
	_ transport.Dialer   = (*Dialer)(nil)
	_ transport.Listener = (*Listener)(nil)
	_ transport.Conn     = (*Conn)(nil)
)

// Connは、TCPのソケットです。
type Conn struct {
	*net.TCPConn
}

// MetricsProviderは、TCP_INFOからメトリクスを取得するプロバイダーを返却します。
func (c *Conn) MetricsProvider() metrics.MetricsProvider {
	return metrics.NewTCPInfoProvider(c.TCPConn)
}

// DialerConfigは、Dialerの設定です。
type DialerConfig struct {
	// EnableMultipathTCPは、カーネルのMultipath TCPを有効にします。
	EnableMultipathTCP bool
	// KeepAliveは、TCPキープアライブの間隔です。0の場合はOSのデフォルトです。
	KeepAlive time.Duration
}

// Dialerは、TCPのソケットを開きます。
type Dialer struct {
	DialerConfig
}

// NewDefaultDialerは、デフォルト設定のDialerを返却します。
func NewDefaultDialer() *Dialer {
	return NewDialer(DialerConfig{})
}

// NewDialerは、Dialerを返却します。
func NewDialer(c DialerConfig) *Dialer {
	return &Dialer{DialerConfig: c}
}

// Dialは、TCPのソケットを開きます。
func (d *Dialer) Dial(ctx context.Context, c transport.DialConfig) (transport.Conn, error) {
	nd := net.Dialer{KeepAlive: d.KeepAlive}
	nd.SetMultipathTCP(d.EnableMultipathTCP)
	if c.LocalAddress != "" {
		laddr, err := net.ResolveTCPAddr("tcp", c.LocalAddress)
		if err != nil {
			return nil, err
		}
		nd.LocalAddr = laddr
	}
	conn, err := nd.DialContext(ctx, "tcp", c.Address)
	if err != nil {
		return nil, err
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return nil, net.UnknownNetworkError(conn.LocalAddr().Network())
	}
	return &Conn{TCPConn: tcpConn}, nil
}

type acceptResult struct {
	conn *net.TCPConn
	err  error
}

// Listenerは、TCPのソケットを受け付けます。
type Listener struct {
	ln       *net.TCPListener
	acceptCh chan acceptResult
	closedCh chan struct{}
	done     chan struct{}
}

// Listenは、addrで待ち受けるListenerを生成します。
func Listen(addr string) (*Listener, error) {
	laddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}
	ln, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		return nil, err
	}
	l := &Listener{
		ln:       ln,
		acceptCh: make(chan acceptResult),
		closedCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go l.acceptLoop()
	return l, nil
}

func (l *Listener) acceptLoop() {
	defer close(l.done)
	for {
		conn, err := l.ln.AcceptTCP()
		select {
		case l.acceptCh <- acceptResult{conn: conn, err: err}:
		case <-l.closedCh:
			if conn != nil {
				conn.Close()
			}
			return
		}
		if err != nil {
			return
		}
	}
}

// Acceptは、次のソケットを受け付けます。
func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closedCh:
		return nil, net.ErrClosed
	case res := <-l.acceptCh:
		if res.err != nil {
			return nil, res.err
		}
		return &Conn{TCPConn: res.conn}, nil
	}
}

// Closeは、受け付けを停止します。
func (l *Listener) Close() error {
	select {
	case <-l.closedCh:
		return nil
	default:
	}
	close(l.closedCh)
	err := l.ln.Close()
	<-l.done
	return err
}

func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}
