package multipath_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aptpod/multipath-go/errors"
	"github.com/aptpod/multipath-go/message"
	. "github.com/aptpod/multipath-go/multipath"
	"github.com/aptpod/multipath-go/transport"
)

const (
	identityA message.Identity = 1001
	identityB message.Identity = 2002

	testTimeout = 5 * time.Second
	tick        = 10 * time.Millisecond
)

var (
	interfacesA = message.InterfaceSet{
		message.MustInterface("10.0.0.1:9000"),
		message.MustInterface("10.0.0.2:9000"),
	}
	interfacesB = message.InterfaceSet{
		message.MustInterface("10.0.0.3:9000"),
		message.MustInterface("10.0.0.4:9000"),
	}
)

// recorderは、通知されたイベントを記録します。
type recorder struct {
	newConn       chan *Conn
	failed        chan *ConnectionFailedEvent
	closed        chan *ConnectionClosedEvent
	pathConnected chan *PathConnectedEvent
	pathError     chan *PathErrorEvent
	legacy        chan *LegacyDataEvent
}

func newRecorder() *recorder {
	return &recorder{
		newConn:       make(chan *Conn, 64),
		failed:        make(chan *ConnectionFailedEvent, 64),
		closed:        make(chan *ConnectionClosedEvent, 64),
		pathConnected: make(chan *PathConnectedEvent, 64),
		pathError:     make(chan *PathErrorEvent, 64),
		legacy:        make(chan *LegacyDataEvent, 64),
	}
}

func (r *recorder) connOptions() []ConnOption {
	return []ConnOption{
		WithConnConnectionFailedEventHandler(ConnectionFailedEventHandlerFunc(func(ev *ConnectionFailedEvent) { r.failed <- ev })),
		WithConnConnectionClosedEventHandler(ConnectionClosedEventHandlerFunc(func(ev *ConnectionClosedEvent) { r.closed <- ev })),
		WithConnPathConnectedEventHandler(PathConnectedEventHandlerFunc(func(ev *PathConnectedEvent) { r.pathConnected <- ev })),
		WithConnPathErrorEventHandler(PathErrorEventHandlerFunc(func(ev *PathErrorEvent) { r.pathError <- ev })),
	}
}

func (r *recorder) serverOptions() []ServerOption {
	return []ServerOption{
		WithServerNewConnectionEventHandler(NewConnectionEventHandlerFunc(func(ev *NewConnectionEvent) { r.newConn <- ev.Conn })),
		WithServerConnectionClosedEventHandler(ConnectionClosedEventHandlerFunc(func(ev *ConnectionClosedEvent) { r.closed <- ev })),
		WithServerPathConnectedEventHandler(PathConnectedEventHandlerFunc(func(ev *PathConnectedEvent) { r.pathConnected <- ev })),
		WithServerPathErrorEventHandler(PathErrorEventHandlerFunc(func(ev *PathErrorEvent) { r.pathError <- ev })),
		WithServerLegacyDataEventHandler(LegacyDataEventHandlerFunc(func(ev *LegacyDataEvent) { r.legacy <- ev })),
	}
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(testTimeout):
		t.Fatalf("timeout waiting for %T", *new(T))
	}
	panic("unreachable")
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

// newTestServerは、ifacesで待ち受けるServerを生成します。
func newTestServer(t *testing.T, network *transport.MemoryNetwork, id message.Identity, ifaces message.InterfaceSet, opts ...ServerOption) *Server {
	t.Helper()
	var ls []transport.Listener
	for _, v := range ifaces {
		l, err := network.Listen(v.String())
		require.NoError(t, err)
		ls = append(ls, l)
	}
	opts = append([]ServerOption{
		WithServerLocalIdentity(id),
		WithServerListeners(ls...),
	}, opts...)
	srv, err := NewServer(opts...)
	require.NoError(t, err)
	return srv
}

// serveは、Serveを開始し、停止する関数を返却します。
func serve(t *testing.T, srv *Server) (stop func()) {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(context.Background())
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		require.NoError(t, srv.Close(ctx))
		if err := receive(t, done); err != nil {
			require.ErrorIs(t, err, errors.ErrConnectionClosed)
		}
		srv.Dispatcher().Wait()
	}
}

func newTestConn(t *testing.T, network *transport.MemoryNetwork, opts ...ConnOption) *Conn {
	t.Helper()
	opts = append([]ConnOption{
		WithConnLocalIdentity(identityA),
		WithConnDialer(network),
		WithConnLocalInterfaces(interfacesA...),
	}, opts...)
	c, err := NewConn(opts...)
	require.NoError(t, err)
	return c
}

// closeConnは、コネクションをクローズしてDispatcherの停止を待ちます。
func closeConn(t *testing.T, c *Conn) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, c.Close(ctx))
	DispatcherOf(c).Wait()
}

// readFullは、nバイト受信するまで待ちます。
func readFull(t *testing.T, c *Conn, n int) []byte {
	t.Helper()
	ctx := testContext(t)
	var res []byte
	for len(res) < n {
		b, err := c.ReceiveContext(ctx)
		require.NoError(t, err)
		res = append(res, b...)
	}
	return res
}

func pattern(n int) []byte {
	res := make([]byte, n)
	for i := range res {
		res[i] = byte(i % 251)
	}
	return res
}

// readControlは、生のソケットから[ハンドシェイクヘッダー][パス制御ヘッダー]を読み込みます。
func readControl(t *testing.T, sock io.Reader) (*message.HandshakeHeader, *message.PathHeader) {
	t.Helper()
	hs, err := message.ReadHandshakeHeader(sock)
	require.NoError(t, err)
	ph, err := message.ReadPathHeader(sock)
	require.NoError(t, err)
	return hs, ph
}

// writeControlは、生のソケットへ[ハンドシェイクヘッダー][パス制御ヘッダー]を書き込みます。
func writeControl(t *testing.T, sock io.Writer, hs *message.HandshakeHeader, ph *message.PathHeader) {
	t.Helper()
	b, err := message.Marshal(hs)
	require.NoError(t, err)
	b, err = ph.AppendBinary(b)
	require.NoError(t, err)
	_, err = sock.Write(b)
	require.NoError(t, err)
}
