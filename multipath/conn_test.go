package multipath_test

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AlekSi/pointer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aptpod/multipath-go/errors"
	"github.com/aptpod/multipath-go/message"
	. "github.com/aptpod/multipath-go/multipath"
	"github.com/aptpod/multipath-go/transport"
	"github.com/aptpod/multipath-go/transport/tcp"
)

func TestConn_EndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := testContext(t)
	network := transport.NewMemoryNetwork()

	recB := newRecorder()
	srv := newTestServer(t, network, identityB, interfacesB, recB.serverOptions()...)
	SetConnIDRandom(t, srv, func() uint64 { return 42 })
	defer serve(t, srv)()

	recA := newRecorder()
	conn := newTestConn(t, network, append(recA.connOptions(), WithConnMaxSegmentSize(600))...)
	require.NoError(t, conn.Connect(ctx, identityB, interfacesB))
	assert.Equal(t, ConnStateSending, conn.State())
	assert.Equal(t, message.ConnID(42), conn.ID())
	assert.Equal(t, identityA, conn.LocalIdentity())
	assert.Equal(t, identityB, conn.RemoteIdentity())

	srvConn := receive(t, recB.newConn)
	assert.Equal(t, message.ConnID(42), srvConn.ID())
	assert.Equal(t, identityB, srvConn.LocalIdentity())
	assert.Equal(t, identityA, srvConn.RemoteIdentity())

	ev := receive(t, recA.pathConnected)
	assert.Equal(t, message.PathID(1), ev.PathID)
	assert.Equal(t, interfacesB[0], ev.Interface)
	assert.Same(t, conn, ev.Conn)

	// 2本目のパスをJOINで追加する
	pathID, err := conn.AddPath(ctx, interfacesB[1])
	require.NoError(t, err)
	assert.Equal(t, message.PathID(2), pathID)
	ev = receive(t, recA.pathConnected)
	assert.Equal(t, message.PathID(2), ev.PathID)
	assert.Equal(t, interfacesB[1], ev.Interface)
	receive(t, recB.pathConnected)
	receive(t, recB.pathConnected)

	localKey, remoteKey, err := ConnKeys(ctx, conn)
	require.NoError(t, err)
	srvLocalKey, srvRemoteKey, err := ConnKeys(ctx, srvConn)
	require.NoError(t, err)
	assert.Equal(t, localKey, srvRemoteKey)
	assert.Equal(t, remoteKey, srvLocalKey)

	paths, err := conn.Paths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []message.PathID{1, 2}, paths)
	paths, err = srvConn.Paths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []message.PathID{1, 2}, paths)

	stats, err := conn.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "10.0.0.1:40001", stats[0].LocalAddr)
	assert.Equal(t, "10.0.0.2:40002", stats[1].LocalAddr)

	// 1000バイトは600バイトと400バイトのセグメントに分割され、交互のパスで送信される
	payload := pattern(1000)
	n, err := conn.Send(payload)
	require.NoError(t, err)
	assert.Equal(t, 1000, n)
	assert.Equal(t, payload, readFull(t, srvConn, 1000))

	stats, err = conn.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, uint64(1), stats[0].TxSegments)
	assert.Equal(t, uint64(1), stats[1].TxSegments)

	srvStats, err := srvConn.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, srvStats, 2)
	// ハンドシェイクとセグメントのヘッダーを含む
	control := (&message.HandshakeHeader{Command: message.CommandBuild}).Size() + message.PathHeaderSize
	assert.Equal(t, message.PathID(1), srvStats[0].PathID)
	assert.Equal(t, uint64(1), srvStats[0].RxSegments)
	assert.Equal(t, uint64(control+message.DataSeqHeaderSize+600), srvStats[0].RxBytes)
	assert.Equal(t, message.PathID(2), srvStats[1].PathID)
	assert.Equal(t, uint64(1), srvStats[1].RxSegments)
	assert.Equal(t, uint64(control+message.DataSeqHeaderSize+400), srvStats[1].RxBytes)

	closeConn(t, conn)
	assert.Equal(t, ConnStateClosed, conn.State())
	closedA := receive(t, recA.closed)
	assert.Same(t, conn, closedA.Conn)
	assert.NoError(t, closedA.Err)

	// 受信側は2本のパスが両方クローズされた後にConnectionLostを観測する
	closedB := receive(t, recB.closed)
	assert.Same(t, srvConn, closedB.Conn)
	assert.ErrorIs(t, closedB.Err, errors.ErrConnectionLost)
	assert.Equal(t, ConnStateClosed, srvConn.State())
	assert.ErrorIs(t, srvConn.Err(), errors.ErrConnectionLost)
	srvStats, err = srvConn.Stats(ctx)
	require.NoError(t, err)
	assert.Empty(t, srvStats)

	assert.Empty(t, recA.pathError)
	assert.Empty(t, recB.pathError)

	_, err = conn.Send(payload)
	assert.ErrorIs(t, err, errors.ErrNotConnected)
	_, err = srvConn.ReceiveContext(ctx)
	assert.ErrorIs(t, err, io.EOF)

	conns, err := srv.Connections(ctx)
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestConn_Send(t *testing.T) {
	defer goleak.VerifyNone(t)
	t.Run("接続前", func(t *testing.T) {
		conn := newTestConn(t, transport.NewMemoryNetwork())
		defer closeConn(t, conn)

		_, err := conn.Send([]byte{1})
		assert.ErrorIs(t, err, errors.ErrNotConnected)
	})
	t.Run("ラウンドロビンで均等に振り分ける", func(t *testing.T) {
		ctx := testContext(t)
		network := transport.NewMemoryNetwork()
		recB := newRecorder()
		srv := newTestServer(t, network, identityB, interfacesB, recB.serverOptions()...)
		defer serve(t, srv)()

		recA := newRecorder()
		conn := newTestConn(t, network, append(recA.connOptions(), WithConnMaxSegmentSize(10), WithConnAutoJoin(true))...)
		require.NoError(t, conn.Connect(ctx, identityB, interfacesB))
		defer closeConn(t, conn)
		receive(t, recA.pathConnected)
		receive(t, recA.pathConnected)
		srvConn := receive(t, recB.newConn)

		payload := pattern(100)
		for i := 0; i < 4; i++ {
			n, err := conn.Send(payload[i*25 : (i+1)*25])
			require.NoError(t, err)
			assert.Equal(t, 25, n)
		}
		assert.Equal(t, payload, readFull(t, srvConn, 100))

		// 25バイトの送信は10,10,5の3セグメントになり、全体で12セグメントが2本に6つずつ振り分けられる
		stats, err := conn.Stats(ctx)
		require.NoError(t, err)
		require.Len(t, stats, 2)
		assert.Equal(t, uint64(6), stats[0].TxSegments)
		assert.Equal(t, uint64(6), stats[1].TxSegments)
	})
	t.Run("接続済みのパスがない", func(t *testing.T) {
		ctx := testContext(t)
		network := transport.NewMemoryNetwork()
		srv := newTestServer(t, network, identityB, interfacesB)
		defer serve(t, srv)()

		// 2本目のパスはソケットを開けないまま待たせる
		dialer := transport.DialerFunc(func(ctx context.Context, c transport.DialConfig) (transport.Conn, error) {
			if c.Address == interfacesB[1].String() {
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return network.Dial(ctx, c)
		})
		recA := newRecorder()
		conn := newTestConn(t, network, append(recA.connOptions(), WithConnDialer(dialer))...)
		require.NoError(t, conn.Connect(ctx, identityB, interfacesB))
		defer closeConn(t, conn)
		receive(t, recA.pathConnected)
		_, err := conn.AddPath(ctx, interfacesB[1])
		require.NoError(t, err)

		assert.Equal(t, 1, network.Abort(interfacesB[0].String()))
		pathErr := receive(t, recA.pathError)
		assert.ErrorIs(t, pathErr.Err, errors.ErrPathError)

		_, err = conn.Send([]byte{1})
		assert.ErrorIs(t, err, errors.ErrNoActivePath)
		assert.Equal(t, ConnStateSending, conn.State())
	})
}

func TestConn_PathFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := testContext(t)
	network := transport.NewMemoryNetwork()
	recB := newRecorder()
	srv := newTestServer(t, network, identityB, interfacesB, recB.serverOptions()...)
	defer serve(t, srv)()

	recA := newRecorder()
	conn := newTestConn(t, network, append(recA.connOptions(), WithConnAutoJoin(true))...)
	require.NoError(t, conn.Connect(ctx, identityB, interfacesB))
	defer closeConn(t, conn)
	receive(t, recA.pathConnected)
	receive(t, recA.pathConnected)
	srvConn := receive(t, recB.newConn)

	// 1本のパスの失敗はコネクションへ波及しない
	assert.Equal(t, 1, network.Abort(interfacesB[1].String()))
	ev := receive(t, recA.pathError)
	assert.Same(t, conn, ev.Conn)
	pathErr, ok := errors.AsPathError(ev.Err)
	require.True(t, ok)
	assert.Equal(t, uint32(2), pathErr.PathID)
	assert.Equal(t, interfacesB[1].String(), pathErr.Interface)
	assert.ErrorIs(t, ev.Err, transport.ErrConnectionReset)
	srvEv := receive(t, recB.pathError)
	assert.Same(t, srvConn, srvEv.Conn)

	assert.Equal(t, ConnStateSending, conn.State())
	assert.Equal(t, ConnStateSending, srvConn.State())

	payload := pattern(300)
	_, err := conn.Send(payload)
	require.NoError(t, err)
	assert.Equal(t, payload, readFull(t, srvConn, 300))

	// 失われたパスは再度追加できる
	pathID, err := conn.AddPath(ctx, interfacesB[1])
	require.NoError(t, err)
	assert.Equal(t, message.PathID(3), pathID)
	assert.Equal(t, message.PathID(3), receive(t, recA.pathConnected).PathID)

	// 全てのパスを失うとConnectionLostでクローズされる
	network.Abort(interfacesB[0].String())
	network.Abort(interfacesB[1].String())
	closedA := receive(t, recA.closed)
	assert.ErrorIs(t, closedA.Err, errors.ErrConnectionLost)
	closedB := receive(t, recB.closed)
	assert.ErrorIs(t, closedB.Err, errors.ErrConnectionLost)
	assert.Equal(t, ConnStateClosed, conn.State())
}

func TestConn_Connect(t *testing.T) {
	defer goleak.VerifyNone(t)
	t.Run("インターフェースが空", func(t *testing.T) {
		recA := newRecorder()
		conn := newTestConn(t, transport.NewMemoryNetwork(), recA.connOptions()...)
		defer closeConn(t, conn)

		err := conn.Connect(context.Background(), identityB, nil)
		assert.ErrorIs(t, err, errors.ErrNoReachableInterface)
		assert.Equal(t, ConnStateInit, conn.State())
		assert.Empty(t, recA.failed)
	})
	t.Run("接続先が存在しない", func(t *testing.T) {
		recA := newRecorder()
		conn := newTestConn(t, transport.NewMemoryNetwork(), recA.connOptions()...)

		err := conn.Connect(testContext(t), identityB, interfacesB)
		assert.ErrorIs(t, err, transport.ErrConnectionRefused)
		assert.Equal(t, ConnStateClosed, conn.State())
		ev := receive(t, recA.failed)
		assert.Same(t, conn, ev.Conn)
		assert.Equal(t, identityB, ev.Remote)
		assert.ErrorIs(t, ev.Err, transport.ErrConnectionRefused)
		DispatcherOf(conn).Wait()
		assert.Empty(t, recA.closed)
	})
	t.Run("リトライ", func(t *testing.T) {
		ctx := testContext(t)
		network := transport.NewMemoryNetwork()
		srv := newTestServer(t, network, identityB, interfacesB)
		defer serve(t, srv)()

		var attempts atomic.Int32
		dialer := transport.DialerFunc(func(ctx context.Context, c transport.DialConfig) (transport.Conn, error) {
			if attempts.Add(1) < 3 {
				return nil, transport.ErrConnectionRefused
			}
			return network.Dial(ctx, c)
		})
		conn := newTestConn(t, network, WithConnDialer(dialer), WithConnDialRetry(3, time.Millisecond))
		defer closeConn(t, conn)
		require.NoError(t, conn.Connect(ctx, identityB, interfacesB))
		assert.Equal(t, int32(3), attempts.Load())
	})
	t.Run("二重に接続", func(t *testing.T) {
		ctx := testContext(t)
		network := transport.NewMemoryNetwork()
		srv := newTestServer(t, network, identityB, interfacesB)
		defer serve(t, srv)()

		conn := newTestConn(t, network)
		defer closeConn(t, conn)
		require.NoError(t, conn.Connect(ctx, identityB, interfacesB))
		assert.ErrorIs(t, conn.Connect(ctx, identityB, interfacesB), errors.ErrAlreadyConnected)
	})
	t.Run("ハンドシェイクのタイムアウト", func(t *testing.T) {
		network := transport.NewMemoryNetwork()
		l, err := network.Listen(interfacesB[0].String())
		require.NoError(t, err)
		defer l.Close()

		recA := newRecorder()
		conn := newTestConn(t, network, append(recA.connOptions(), WithConnHandshakeTimeout(50*time.Millisecond))...)
		err = conn.Connect(testContext(t), identityB, interfacesB)
		assert.ErrorIs(t, err, errors.ErrHandshakeTimeout)
		assert.ErrorIs(t, receive(t, recA.failed).Err, errors.ErrHandshakeTimeout)
		DispatcherOf(conn).Wait()
	})
	t.Run("BUILD-ACKのキーが一致しない", func(t *testing.T) {
		network := transport.NewMemoryNetwork()
		l, err := network.Listen(interfacesB[0].String())
		require.NoError(t, err)
		defer l.Close()

		done := make(chan struct{})
		go func() {
			defer close(done)
			sock, err := l.Accept(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			defer sock.Close()
			_, ph := readControl(t, sock)
			writeControl(t, sock, &message.HandshakeHeader{
				Command:  message.CommandBuildAck,
				Identity: identityB,
			}, &message.PathHeader{
				PathID:      ph.PathID,
				Owner:       ph.Owner,
				SenderKey:   1,
				ReceiverKey: ph.SenderKey + 1,
				ConnID:      42,
			})
		}()

		recA := newRecorder()
		conn := newTestConn(t, network, recA.connOptions()...)
		err = conn.Connect(testContext(t), identityB, interfacesB)
		assert.ErrorIs(t, err, errors.ErrHandshakeMismatch)
		assert.Zero(t, conn.ID())
		receive(t, recA.failed)
		<-done
		DispatcherOf(conn).Wait()
	})
	t.Run("BUILDに応答せずクローズされる", func(t *testing.T) {
		network := transport.NewMemoryNetwork()
		l, err := network.Listen(interfacesB[0].String())
		require.NoError(t, err)
		defer l.Close()

		done := make(chan struct{})
		go func() {
			defer close(done)
			sock, err := l.Accept(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			readControl(t, sock)
			sock.Close()
		}()

		recA := newRecorder()
		conn := newTestConn(t, network, recA.connOptions()...)
		err = conn.Connect(testContext(t), identityB, interfacesB)
		assert.ErrorIs(t, err, errors.ErrHandshakeMismatch)
		assert.NotErrorIs(t, err, errors.ErrConnectionLost)
		assert.ErrorIs(t, receive(t, recA.failed).Err, errors.ErrHandshakeMismatch)
		<-done
		DispatcherOf(conn).Wait()
	})
	t.Run("キャンセル", func(t *testing.T) {
		network := transport.NewMemoryNetwork()
		l, err := network.Listen(interfacesB[0].String())
		require.NoError(t, err)
		defer l.Close()

		recA := newRecorder()
		conn := newTestConn(t, network, recA.connOptions()...)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, conn.Connect(ctx, identityB, interfacesB), context.DeadlineExceeded)
		assert.ErrorIs(t, receive(t, recA.failed).Err, context.DeadlineExceeded)
		DispatcherOf(conn).Wait()
	})
}

func TestConn_AddPath(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := testContext(t)
	network := transport.NewMemoryNetwork()
	recB := newRecorder()
	srv := newTestServer(t, network, identityB, interfacesB, recB.serverOptions()...)
	defer serve(t, srv)()

	recA := newRecorder()
	conn := newTestConn(t, network, recA.connOptions()...)
	_, err := conn.AddPath(ctx, interfacesB[1])
	assert.ErrorIs(t, err, errors.ErrNotConnected)

	require.NoError(t, conn.Connect(ctx, identityB, interfacesB))
	defer closeConn(t, conn)
	srvConn := receive(t, recB.newConn)

	t.Run("既存のパスと同じインターフェース", func(t *testing.T) {
		pathID, err := conn.AddPath(ctx, interfacesB[0])
		require.NoError(t, err)
		assert.Equal(t, message.PathID(1), pathID)
		stats, err := conn.Stats(ctx)
		require.NoError(t, err)
		assert.Len(t, stats, 1)
	})
	t.Run("受け付けた側のコネクション", func(t *testing.T) {
		_, err := srvConn.AddPath(ctx, interfacesA[1])
		assert.ErrorIs(t, err, errors.ErrNotInitiator)
	})
	t.Run("JOINが応答なしで拒否される", func(t *testing.T) {
		_, remote, err := ConnKeys(ctx, conn)
		require.NoError(t, err)
		require.NoError(t, SetRemoteKey(ctx, conn, remote+1))

		pathID, err := conn.AddPath(ctx, interfacesB[1])
		require.NoError(t, err)
		assert.Equal(t, message.PathID(2), pathID)

		ev := receive(t, recA.pathError)
		assert.Same(t, conn, ev.Conn)
		pathErr, ok := errors.AsPathError(ev.Err)
		require.True(t, ok)
		assert.Equal(t, uint32(2), pathErr.PathID)
		assert.ErrorIs(t, ev.Err, errors.ErrHandshakeMismatch)

		stats, err := conn.Stats(ctx)
		require.NoError(t, err)
		require.Len(t, stats, 1)
		assert.Equal(t, message.PathID(1), stats[0].PathID)
		assert.Equal(t, ConnStateSending, conn.State())
	})
}

func TestConn_Close(t *testing.T) {
	defer goleak.VerifyNone(t)
	t.Run("二重にクローズ", func(t *testing.T) {
		ctx := testContext(t)
		network := transport.NewMemoryNetwork()
		recB := newRecorder()
		srv := newTestServer(t, network, identityB, interfacesB, recB.serverOptions()...)
		defer serve(t, srv)()

		recA := newRecorder()
		conn := newTestConn(t, network, append(recA.connOptions(), WithConnAutoJoin(true))...)
		require.NoError(t, conn.Connect(ctx, identityB, interfacesB))

		require.NoError(t, conn.Close(ctx))
		require.NoError(t, conn.Close(ctx))
		DispatcherOf(conn).Wait()
		assert.Equal(t, ConnStateClosed, conn.State())
		assert.Len(t, recA.closed, 1)
		assert.NoError(t, conn.Err())

		receive(t, recB.closed)
		assert.Empty(t, recB.closed)
	})
	t.Run("接続前", func(t *testing.T) {
		recA := newRecorder()
		conn := newTestConn(t, transport.NewMemoryNetwork(), recA.connOptions()...)
		require.NoError(t, conn.Close(context.Background()))
		DispatcherOf(conn).Wait()
		assert.Equal(t, ConnStateClosed, conn.State())
		assert.Empty(t, recA.closed)
		assert.ErrorIs(t, conn.Connect(context.Background(), identityB, interfacesB), errors.ErrConnectionClosed)
	})
	t.Run("クローズ前に送信したデータは届く", func(t *testing.T) {
		ctx := testContext(t)
		network := transport.NewMemoryNetwork()
		recB := newRecorder()
		srv := newTestServer(t, network, identityB, interfacesB, recB.serverOptions()...)
		defer serve(t, srv)()

		conn := newTestConn(t, network, WithConnAutoJoin(true), WithConnMaxSegmentSize(100))
		require.NoError(t, conn.Connect(ctx, identityB, interfacesB))
		srvConn := receive(t, recB.newConn)

		payload := pattern(10000)
		_, err := conn.Send(payload)
		require.NoError(t, err)
		closeConn(t, conn)

		got, err := io.ReadAll(srvConn)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})
}

func TestConn_Read(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := testContext(t)
	network := transport.NewMemoryNetwork()
	recB := newRecorder()
	srv := newTestServer(t, network, identityB, interfacesB, recB.serverOptions()...)
	defer serve(t, srv)()

	conn := newTestConn(t, network)
	require.NoError(t, conn.Connect(ctx, identityB, interfacesB))
	srvConn := receive(t, recB.newConn)

	// 受け付けた側からも送信できる
	n, err := srvConn.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 3)
	n, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "hel", string(buf[:n]))
	n, err = conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "lo", string(buf[:n]))
	assert.Nil(t, conn.Receive())

	closeConn(t, conn)
	n, err = conn.Read(buf)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestConn_TCP(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := testContext(t)

	l, err := tcp.Listen("127.0.0.1:0")
	require.NoError(t, err)
	recB := newRecorder()
	srv, err := NewServer(append([]ServerOption{
		WithServerLocalIdentity(identityB),
		WithServerListeners(l),
	}, recB.serverOptions()...)...)
	require.NoError(t, err)
	defer serve(t, srv)()

	conn, err := NewConnWithConfig(&ConnConfig{
		LocalIdentity:  identityA,
		MaxSegmentSize: pointer.ToInt(512),
	})
	require.NoError(t, err)
	iface := message.MustInterface(l.Addr().String())
	require.NoError(t, conn.Connect(ctx, identityB, message.InterfaceSet{iface}))
	srvConn := receive(t, recB.newConn)

	payload := pattern(64 * 1024)
	_, err = conn.Send(payload)
	require.NoError(t, err)
	assert.Equal(t, payload, readFull(t, srvConn, len(payload)))

	stats, err := conn.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, iface, stats[0].Interface)
	assert.NotEmpty(t, stats[0].LocalAddr)
	assert.Equal(t, uint64(len(payload)/512), stats[0].TxSegments)
	control := (&message.HandshakeHeader{Command: message.CommandBuild}).Size() + message.PathHeaderSize
	wantTx := uint64(control + len(payload)/512*message.DataSeqHeaderSize + len(payload))
	assert.Eventually(t, func() bool {
		stats, err := conn.Stats(ctx)
		return err == nil && len(stats) == 1 && stats[0].TxBytes == wantTx
	}, testTimeout, tick)

	closeConn(t, conn)
	assert.ErrorIs(t, receive(t, recB.closed).Err, errors.ErrConnectionLost)
}

func TestNewConn_InvalidConfig(t *testing.T) {
	_, err := NewConnWithConfig(&ConnConfig{MaxSegmentSize: pointer.ToInt(0)})
	assert.ErrorIs(t, err, errors.ErrMultipath)
	_, err = NewConnWithConfig(&ConnConfig{DialAttempts: pointer.ToInt(-1)})
	assert.ErrorIs(t, err, errors.ErrMultipath)
}
