package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/aptpod/multipath-go/errors"
)

var (
	// ErrConnectionRefused は、接続先で待ち受けているListenerが存在しない場合に返されます。
	ErrConnectionRefused = errors.New("connection refused")
	// ErrConnectionReset は、ソケットが異常終了した場合に返されます。
	ErrConnectionReset = errors.New("connection reset")
	// ErrAddressInUse は、同じアドレスで既に待ち受けている場合に返されます。
	ErrAddressInUse = errors.New("address already in use")
)

const (
	memoryNetwork           = "memory"
	memoryEphemeralPortBase = 40000
)

type memoryAddr string

func (a memoryAddr) Network() string { return memoryNetwork }
func (a memoryAddr) String() string  { return string(a) }

/*
MemoryNetwork は、プロセス内で完結するネットワークです。

アドレスは "host:port" 形式の任意の文字列で、net.Pipe で接続されたソケットのペアを生成します。
テストで複数のインターフェースを持つノードを再現するために使用します。
*/
type MemoryNetwork struct {
	mu        sync.Mutex
	listeners map[string]*memoryListener
	pairs     []*memoryPair
	nextPort  int
}

// NewMemoryNetwork は、MemoryNetworkを生成します。
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		listeners: make(map[string]*memoryListener),
		nextPort:  memoryEphemeralPortBase,
	}
}

// Listen は、addressで待ち受けるListenerを生成します。
func (n *MemoryNetwork) Listen(address string) (Listener, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.listeners[address]; ok {
		return nil, fmt.Errorf("listen %s: %w", address, ErrAddressInUse)
	}
	l := &memoryListener{
		network:  n,
		addr:     memoryAddr(address),
		acceptCh: make(chan Conn, 64),
		closedCh: make(chan struct{}),
	}
	n.listeners[address] = l
	return l, nil
}

// Dial は、c.Address で待ち受けているListenerへ接続します。
func (n *MemoryNetwork) Dial(ctx context.Context, c DialConfig) (Conn, error) {
	n.mu.Lock()
	l, ok := n.listeners[c.Address]
	if !ok {
		n.mu.Unlock()
		return nil, fmt.Errorf("dial %s: %w", c.Address, ErrConnectionRefused)
	}
	local := n.localAddressLocked(c.LocalAddress)
	c1, c2 := net.Pipe()
	pair := &memoryPair{listenAddr: c.Address}
	pair.client = &memoryConn{Conn: c1, pair: pair, local: memoryAddr(local), remote: l.addr}
	pair.server = &memoryConn{Conn: c2, pair: pair, local: l.addr, remote: memoryAddr(local)}
	n.pairs = append(n.pairs, pair)
	n.mu.Unlock()

	select {
	case <-ctx.Done():
		pair.abort()
		return nil, ctx.Err()
	case <-l.closedCh:
		pair.abort()
		return nil, fmt.Errorf("dial %s: %w", c.Address, ErrConnectionRefused)
	case l.acceptCh <- pair.server:
	}
	return pair.client, nil
}

// Abort は、addressのListenerで受け付けた全てのソケットを異常終了させます。
//
// 両端のReadとWriteは ErrConnectionReset を返却します。異常終了したソケットの数を返却します。
func (n *MemoryNetwork) Abort(address string) int {
	n.mu.Lock()
	var targets []*memoryPair
	rest := n.pairs[:0]
	for _, p := range n.pairs {
		if p.listenAddr == address {
			targets = append(targets, p)
			continue
		}
		rest = append(rest, p)
	}
	n.pairs = rest
	n.mu.Unlock()

	for _, p := range targets {
		p.abort()
	}
	return len(targets)
}

func (n *MemoryNetwork) localAddressLocked(address string) string {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		host, port = "127.0.0.1", "0"
	}
	if port != "0" {
		return address
	}
	n.nextPort++
	return net.JoinHostPort(host, strconv.Itoa(n.nextPort))
}

func (n *MemoryNetwork) removeListener(address string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.listeners, address)
}

type memoryListener struct {
	network  *MemoryNetwork
	addr     memoryAddr
	acceptCh chan Conn

	once     sync.Once
	closedCh chan struct{}
}

func (l *memoryListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closedCh:
		return nil, net.ErrClosed
	case conn := <-l.acceptCh:
		return conn, nil
	}
}

func (l *memoryListener) Close() error {
	l.once.Do(func() {
		l.network.removeListener(string(l.addr))
		close(l.closedCh)
		for {
			select {
			case conn := <-l.acceptCh:
				conn.Close()
			default:
				return
			}
		}
	})
	return nil
}

func (l *memoryListener) Addr() net.Addr {
	return l.addr
}

type memoryPair struct {
	listenAddr string
	aborted    atomic.Bool
	client     *memoryConn
	server     *memoryConn
}

func (p *memoryPair) abort() {
	p.aborted.Store(true)
	p.client.Conn.Close()
	p.server.Conn.Close()
}

type memoryConn struct {
	net.Conn
	pair          *memoryPair
	local, remote memoryAddr
	closed        atomic.Bool
}

func (c *memoryConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	return n, c.wrapError(err)
}

func (c *memoryConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	return n, c.wrapError(err)
}

func (c *memoryConn) Close() error {
	c.closed.Store(true)
	return c.Conn.Close()
}

func (c *memoryConn) LocalAddr() net.Addr  { return c.local }
func (c *memoryConn) RemoteAddr() net.Addr { return c.remote }

func (c *memoryConn) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if c.pair.aborted.Load() {
		return fmt.Errorf("%v: %w", err, ErrConnectionReset)
	}
	if c.closed.Load() {
		return fmt.Errorf("%v: %w", err, net.ErrClosed)
	}
	return err
}
