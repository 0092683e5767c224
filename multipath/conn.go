package multipath

import (
	"context"
	"io"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/aptpod/multipath-go/errors"
	"github.com/aptpod/multipath-go/internal/ch"
	"github.com/aptpod/multipath-go/internal/segment"
	"github.com/aptpod/multipath-go/log"
	"github.com/aptpod/multipath-go/message"
	"github.com/aptpod/multipath-go/metrics"
)

/*
Conn は、2つのIdentityの間の1本の論理的なバイトストリームを、複数のパスで運ぶマルチパスコネクションです。

送信したバイト列はセグメントに分割され、接続済みのパスへラウンドロビンで振り分けられます。
受信側はシーケンス番号でセグメントを並べ直し、欠けや重複のない順序通りのバイト列をアプリケーションへ渡します。

1本のパスが失われてもコネクションは継続します。全てのパスを失った場合は errors.ErrConnectionLost でクローズされます。
*/
type Conn struct {
	d             *Dispatcher
	ownDispatcher bool
	cfg           ConnConfig
	logger        log.Logger
	metrics       *metrics.Metrics
	maxSegment    int
	server        *Server

	// 以下はイベントループの中でのみ使用する
	ctx          context.Context
	local        message.Identity
	localKey     message.ConnKey
	remoteKey    message.ConnKey
	remoteIfaces message.InterfaceSet
	paths        []*path
	rr           roundRobin
	nextPathID   message.PathID
	dialCount    int
	sendSeq      message.SeqNum
	readBuffer   *segment.ReadBuffer
	connectDone  chan error
	connecting   *path

	state  atomic.Uint32
	id     atomic.Uint64
	remote atomic.Uint64

	rxMu     sync.Mutex
	rx       []byte
	rxNotify chan struct{}

	closedCh chan struct{}
	closeErr error
}

// NewConnは、Connを生成します。
//
// 生成したConnは Connect を呼び出すまで接続しません。
func NewConn(opts ...ConnOption) (*Conn, error) {
	cfg := DefaultConnConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return NewConnWithConfig(cfg)
}

// NewConnWithConfigは、設定からConnを生成します。
func NewConnWithConfig(cfg *ConnConfig) (*Conn, error) {
	c := *cfg
	if err := c.setDefaults(); err != nil {
		return nil, err
	}
	conn := newConn(&c)
	if conn.d == nil {
		conn.d = NewDispatcher()
		conn.ownDispatcher = true
	}
	return conn, nil
}

func newConn(cfg *ConnConfig) *Conn {
	c := &Conn{
		d:          cfg.Dispatcher,
		cfg:        *cfg,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		maxSegment: cfg.maxSegmentSize(),
		ctx:        context.Background(),
		local:      cfg.LocalIdentity,
		nextPathID: 1,
		readBuffer: segment.NewReadBuffer(0),
		rxNotify:   make(chan struct{}, 1),
		closedCh:   make(chan struct{}),
	}
	c.state.Store(uint32(ConnStateInit))
	return c
}

// Stateは、コネクションの状態を返却します。
func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

// IDは、サーバーが割り当てたConnIDを返却します。接続前は0です。
func (c *Conn) ID() message.ConnID {
	return message.ConnID(c.id.Load())
}

// LocalIdentityは、ローカルのIdentityを返却します。
func (c *Conn) LocalIdentity() message.Identity {
	return c.local
}

// RemoteIdentityは、接続先のIdentityを返却します。
func (c *Conn) RemoteIdentity() message.Identity {
	return message.Identity(c.remote.Load())
}

// Closedは、コネクションがClosedになるとクローズされるチャネルを返却します。
func (c *Conn) Closed() <-chan struct{} {
	return c.closedCh
}

// Errは、コネクションがClosedになった原因を返却します。
//
// ローカルからクローズした場合とClosedになる前はnilです。
func (c *Conn) Err() error {
	select {
	case <-c.closedCh:
		return c.closeErr
	default:
		return nil
	}
}

func (c *Conn) setState(s ConnState) {
	old := ConnState(c.state.Swap(uint32(s)))
	if old != s {
		c.logger.Infof(c.ctx, "connection state %v -> %v", old, s)
	}
}

/*
Connect は、remoteのインターフェースの一覧の先頭へ最初のパスを開き、コネクションを確立します。

ifacesが空の場合は errors.ErrNoReachableInterface を返却します。
最初のパスが接続されるとコネクションは送信可能になり、Connect は戻ります。
接続に失敗した場合はエラーを返却し、ConnectionFailedEvent を通知します。
*/
func (c *Conn) Connect(ctx context.Context, remote message.Identity, ifaces message.InterfaceSet) error {
	if len(ifaces) == 0 {
		return errors.Errorf("connect to %v: %w", remote, errors.ErrNoReachableInterface)
	}
	done := make(chan error, 1)
	var startErr error
	err := c.d.Do(ctx, func() {
		switch c.State() {
		case ConnStateInit:
		case ConnStateClosed:
			startErr = errors.ErrConnectionClosed
			return
		default:
			startErr = errors.ErrAlreadyConnected
			return
		}
		c.remote.Store(uint64(remote))
		c.remoteIfaces = slices.Clone(ifaces)
		c.localKey = c.d.keys.generate()
		c.setState(ConnStateBind)
		c.connectDone = done
		c.setState(ConnStateConnecting)
		c.connecting = c.openPath(ifaces[0])
	})
	if err != nil {
		if errors.Is(err, errors.ErrDispatcherClosed) {
			return errors.ErrConnectionClosed
		}
		return err
	}
	if startErr != nil {
		return startErr
	}
	res, ok := ch.ReadOrDoneOne[error](ctx, done)
	if !ok {
		_ = c.d.Post(func() {
			if c.State() == ConnStateSending {
				c.close()
				return
			}
			c.failConnect(ctx.Err())
		})
		return ctx.Err()
	}
	return res
}

// openPathは、ifaceへ新しいパスを開きます。イベントループの中で呼び出します。
func (c *Conn) openPath(iface message.Interface) *path {
	id := c.nextPathID
	c.nextPathID++
	p := newOutboundPath(c, id, iface, c.cfg.localAddress(c.dialCount))
	c.dialCount++
	c.paths = append(c.paths, p)
	p.logger.Debugf(p.ctx, "open path to %v", iface)
	p.dial(c.cfg.Dialer, c.cfg.dialRetry(), c.cfg.HandshakeTimeout)
	return p
}

// onPathReadyは、ソケットを開いたパスからBUILDまたはJOINを送信します。
func (c *Conn) onPathReady(p *path) {
	hs := &message.HandshakeHeader{
		Command:  message.CommandBuild,
		Identity: c.local,
		Port:     interfaceOfAddr(p.sock.LocalAddr()).Port,
	}
	ph := &message.PathHeader{
		PathID:    p.id,
		Owner:     c.local,
		SenderKey: c.localKey,
	}
	next := PathStateBuildSent
	if c.State() != ConnStateConnecting {
		hs.Command = message.CommandJoin
		ph.ReceiverKey = c.remoteKey
		ph.ConnID = c.ID()
		next = PathStateJoinSent
	}
	if err := p.sendControl(hs, ph); err != nil {
		p.terminate(PathStateError, err)
		return
	}
	p.setState(next)
}

// onControlは、開始側のパスでBUILD-ACKまたはJOIN-ACKを受け取ります。
func (c *Conn) onControl(p *path, hs *message.HandshakeHeader, ph *message.PathHeader) {
	if err := c.validateAck(p, hs, ph); err != nil {
		c.metrics.HandshakeRejected(metrics.RejectReasonKeyMismatch)
		p.reject(metrics.RejectReasonKeyMismatch, err)
		return
	}
	if p.state == PathStateBuildSent {
		c.remoteKey = ph.SenderKey
		c.id.Store(uint64(ph.ConnID))
		c.ctx = log.WithTrackConnID(c.ctx, uint64(ph.ConnID))
		p.ctx = log.WithTrackPathID(c.ctx, uint32(p.id))
	}
	p.connected()
	c.onPathConnected(p)
}

func (c *Conn) validateAck(p *path, hs *message.HandshakeHeader, ph *message.PathHeader) error {
	var want message.Command
	switch p.state {
	case PathStateBuildSent:
		want = message.CommandBuildAck
	case PathStateJoinSent:
		want = message.CommandJoinAck
	default:
		return errors.Errorf("unexpected %v in %v: %w", hs.Command, p.state, errors.ErrHandshakeMismatch)
	}
	switch {
	case hs.Command != want:
		return errors.Errorf("unexpected %v in %v: %w", hs.Command, p.state, errors.ErrHandshakeMismatch)
	case hs.Identity != c.RemoteIdentity():
		return errors.Errorf("identity %v, expected %v: %w", hs.Identity, c.RemoteIdentity(), errors.ErrHandshakeMismatch)
	case ph.PathID != p.id:
		return errors.Errorf("path id %d, expected %d: %w", ph.PathID, p.id, errors.ErrHandshakeMismatch)
	case ph.Owner != c.local:
		return errors.Errorf("owner %v, expected %v: %w", ph.Owner, c.local, errors.ErrHandshakeMismatch)
	case ph.ReceiverKey != c.localKey:
		return errors.Errorf("receiver key mismatch: %w", errors.ErrHandshakeMismatch)
	case ph.ConnID == 0:
		return errors.Errorf("connection id is unset: %w", errors.ErrHandshakeMismatch)
	case ph.SenderKey == 0:
		return errors.Errorf("sender key is unset: %w", errors.ErrHandshakeMismatch)
	}
	if want == message.CommandJoinAck {
		if ph.ConnID != c.ID() {
			return errors.Errorf("connection id %v, expected %v: %w", ph.ConnID, c.ID(), errors.ErrHandshakeMismatch)
		}
		if ph.SenderKey != c.remoteKey {
			return errors.Errorf("sender key mismatch: %w", errors.ErrHandshakeMismatch)
		}
	}
	return nil
}

// onPathConnectedは、パスがConnectedになった時に呼び出します。
func (c *Conn) onPathConnected(p *path) {
	c.metrics.PathConnected()
	p.logger.Infof(p.ctx, "path connected to %v", p.iface)

	switch c.State() {
	case ConnStateConnecting:
		c.connecting = nil
		c.setState(ConnStateSending)
		c.metrics.ConnectionOpened()
		c.notifyPathConnected(p)
		c.connectDone <- nil
		if c.cfg.AutoJoin {
			for _, iface := range c.remoteIfaces {
				c.addPath(iface)
			}
		}
	case ConnStateSending:
		c.notifyPathConnected(p)
	default:
		p.closeGracefully()
	}
}

func (c *Conn) notifyPathConnected(p *path) {
	ev := &PathConnectedEvent{Conn: c, PathID: p.id, Interface: p.iface}
	h := c.cfg.PathConnectedEventHandler
	c.d.notifyApp(func() { h.OnPathConnected(ev) })
}

// onPathTerminatedは、パスがClosedまたはErrorになった時に呼び出します。
func (c *Conn) onPathTerminated(p *path, err error) {
	idx := slices.Index(c.paths, p)
	if idx < 0 {
		return
	}
	n := len(c.paths)
	c.paths = slices.Delete(c.paths, idx, idx+1)
	c.rr.removed(idx, n)

	if p.established {
		c.metrics.PathDisconnected()
	}
	if err != nil {
		c.metrics.PathError()
		pe := &errors.PathError{PathID: uint32(p.id), Interface: p.iface.String(), Err: err}
		ev := &PathErrorEvent{Conn: c, Err: pe}
		h := c.cfg.PathErrorEventHandler
		c.d.notifyApp(func() { h.OnPathError(ev) })
	}

	switch c.State() {
	case ConnStateConnecting:
		if p == c.connecting {
			if err == nil {
				err = errors.ErrConnectionLost
			}
			c.failConnect(err)
		}
	case ConnStateSending:
		if len(c.paths) == 0 {
			c.finish(errors.ErrConnectionLost)
		}
	case ConnStateClosing:
		if len(c.paths) == 0 {
			c.finish(nil)
		}
	}
}

// failConnectは、確立前のコネクションを失敗として終了します。
func (c *Conn) failConnect(err error) {
	switch c.State() {
	case ConnStateBind, ConnStateConnecting:
	default:
		return
	}
	c.logger.Warnf(c.ctx, "failed to connect to %v: %v", c.RemoteIdentity(), err)
	c.setState(ConnStateClosed)
	for _, p := range slices.Clone(c.paths) {
		p.terminate(PathStateClosed, nil)
	}
	c.paths = nil
	c.connecting = nil
	c.d.keys.release(c.localKey)
	c.closeErr = err
	c.wakeReceiver()
	close(c.closedCh)
	if c.connectDone != nil {
		c.connectDone <- err
	}
	ev := &ConnectionFailedEvent{Conn: c, Remote: c.RemoteIdentity(), Err: err}
	h := c.cfg.ConnectionFailedEventHandler
	c.d.notifyApp(func() { h.OnConnectionFailed(ev) })
	if c.ownDispatcher {
		c.d.Close()
	}
}

// finishは、確立済みのコネクションをClosedにします。
func (c *Conn) finish(err error) {
	c.setState(ConnStateClosed)
	c.d.keys.release(c.localKey)
	if c.server != nil {
		c.server.removeConn(c)
	}
	c.metrics.ConnectionClosed()
	c.closeErr = err
	c.wakeReceiver()
	close(c.closedCh)
	ev := &ConnectionClosedEvent{Conn: c, Err: err}
	h := c.cfg.ConnectionClosedEventHandler
	c.d.notifyApp(func() { h.OnConnectionClosed(ev) })
	if c.ownDispatcher {
		c.d.Close()
	}
}

/*
AddPath は、接続先のifaceへJOINで新しいパスを追加し、そのPathIDを返却します。

コネクションが送信可能になっている必要があります。
ifaceへのパスが既に存在する場合は何もせず、既存のパスのPathIDを返却します。
*/
func (c *Conn) AddPath(ctx context.Context, iface message.Interface) (message.PathID, error) {
	var (
		res    message.PathID
		addErr error
	)
	err := c.d.Do(ctx, func() {
		if c.server != nil {
			addErr = errors.ErrNotInitiator
			return
		}
		if c.State() != ConnStateSending {
			addErr = errors.ErrNotConnected
			return
		}
		res = c.addPath(iface)
	})
	if err != nil {
		if errors.Is(err, errors.ErrDispatcherClosed) {
			return 0, errors.ErrNotConnected
		}
		return 0, err
	}
	return res, addErr
}

func (c *Conn) addPath(iface message.Interface) message.PathID {
	for _, p := range c.paths {
		if p.iface == iface {
			return p.id
		}
	}
	return c.openPath(iface).id
}

// Sendは、pを送信します。
//
// 送信可能でない場合は errors.ErrNotConnected、接続済みのパスがない場合は errors.ErrNoActivePath を返却します。
// 一部だけを受け付けることはありません。
func (c *Conn) Send(p []byte) (int, error) {
	return c.SendContext(context.Background(), p)
}

// SendContextは、Sendと同様ですが、送信の受付をctxでキャンセルできます。
func (c *Conn) SendContext(ctx context.Context, p []byte) (int, error) {
	var (
		n       int
		sendErr error
	)
	err := c.d.Do(ctx, func() {
		n, sendErr = c.send(p)
	})
	if err != nil {
		if errors.Is(err, errors.ErrDispatcherClosed) {
			return 0, errors.ErrNotConnected
		}
		return 0, err
	}
	return n, sendErr
}

func (c *Conn) send(b []byte) (int, error) {
	if c.State() != ConnStateSending {
		return 0, errors.ErrNotConnected
	}
	if !slices.ContainsFunc(c.paths, func(p *path) bool { return p.state == PathStateConnected }) {
		return 0, errors.ErrNoActivePath
	}
	wr := segment.SenderFunc(func(seq message.SeqNum, payload []byte) error {
		idx := c.rr.next(len(c.paths), func(i int) bool {
			return c.paths[i].state == PathStateConnected
		})
		if idx < 0 {
			return errors.ErrNoActivePath
		}
		return c.paths[idx].sendSegment(c.local, seq, payload)
	})
	n, next, err := segment.SendTo(wr, c.sendSeq, b, c.maxSegment)
	c.sendSeq = next
	c.metrics.AddTxBytes(n)
	return n, err
}

// Writeは、io.Writerの実装です。
func (c *Conn) Write(p []byte) (int, error) {
	return c.Send(p)
}

// onSegmentは、接続済みのパスからデータセグメントを受け取ります。
func (c *Conn) onSegment(p *path, seg *message.Segment) {
	switch c.State() {
	case ConnStateSending, ConnStateClosing:
	default:
		return
	}
	if seg.Header.Owner != c.RemoteIdentity() {
		p.logger.Debugf(p.ctx, "discard segment from %v", seg.Header.Owner)
		return
	}
	data := c.readBuffer.Receive(seg.Header.Seq, seg.Payload)
	if len(data) == 0 {
		return
	}
	c.metrics.AddRxBytes(len(data))
	c.rxMu.Lock()
	c.rx = append(c.rx, data...)
	c.rxMu.Unlock()
	c.wakeReceiver()

	ev := &DataAvailableEvent{Conn: c, Size: len(data)}
	h := c.cfg.DataAvailableEventHandler
	c.d.notifyApp(func() { h.OnDataAvailable(ev) })
}

func (c *Conn) wakeReceiver() {
	select {
	case c.rxNotify <- struct{}{}:
	default:
	}
}

// Receiveは、順序通りに並んだ受信済みのバイト列を全て取り出します。
//
// 読み出せるデータがない場合はnilを返却します。ブロックしません。
func (c *Conn) Receive() []byte {
	c.rxMu.Lock()
	defer c.rxMu.Unlock()
	if len(c.rx) == 0 {
		return nil
	}
	res := c.rx
	c.rx = nil
	return res
}

// ReceiveContextは、受信済みのバイト列があるまで待ってから取り出します。
//
// コネクションがClosedになり、全て読み出した後は io.EOF を返却します。
func (c *Conn) ReceiveContext(ctx context.Context) ([]byte, error) {
	for {
		if b := c.Receive(); b != nil {
			return b, nil
		}
		select {
		case <-c.closedCh:
			if b := c.Receive(); b != nil {
				return b, nil
			}
			return nil, io.EOF
		case <-c.rxNotify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Readは、io.Readerの実装です。
func (c *Conn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		c.rxMu.Lock()
		if len(c.rx) > 0 {
			n := copy(p, c.rx)
			c.rx = c.rx[n:]
			if len(c.rx) == 0 {
				c.rx = nil
			}
			c.rxMu.Unlock()
			return n, nil
		}
		c.rxMu.Unlock()
		select {
		case <-c.closedCh:
			c.rxMu.Lock()
			empty := len(c.rx) == 0
			c.rxMu.Unlock()
			if empty {
				return 0, io.EOF
			}
		case <-c.rxNotify:
		}
	}
}

/*
Close は、コネクションをクローズします。

送信可能なコネクションはClosingになり、各パスは送信キューを書き込み終えてからソケットをクローズします。
全てのパスが終了するとClosedになり、Close は戻ります。
接続中のコネクションは接続に失敗したものとして終了します。

複数回呼び出しても、ConnectionClosedEvent は1度だけ通知されます。
*/
func (c *Conn) Close(ctx context.Context) error {
	err := c.d.Do(ctx, c.close)
	if err != nil && !errors.Is(err, errors.ErrDispatcherClosed) {
		return err
	}
	select {
	case <-c.closedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) close() {
	switch c.State() {
	case ConnStateInit:
		c.setState(ConnStateClosed)
		close(c.closedCh)
		if c.ownDispatcher {
			c.d.Close()
		}
	case ConnStateBind, ConnStateConnecting:
		c.failConnect(errors.ErrConnectionClosed)
	case ConnStateSending:
		c.setState(ConnStateClosing)
		if len(c.paths) == 0 {
			c.finish(nil)
			return
		}
		for _, p := range slices.Clone(c.paths) {
			p.closeGracefully()
		}
	}
}

// Statsは、各パスの統計情報を返却します。
func (c *Conn) Stats(ctx context.Context) ([]PathStats, error) {
	var res []PathStats
	err := c.d.Do(ctx, func() {
		res = make([]PathStats, 0, len(c.paths))
		for _, p := range c.paths {
			res = append(res, p.stats())
		}
	})
	if err != nil {
		if errors.Is(err, errors.ErrDispatcherClosed) {
			return nil, errors.ErrConnectionClosed
		}
		return nil, err
	}
	return res, nil
}

// ReceiveStatsは、受信したセグメントの並べ直しの状況を返却します。
func (c *Conn) ReceiveStats(ctx context.Context) (ReceiveStats, error) {
	var res ReceiveStats
	err := c.d.Do(ctx, func() {
		res = ReceiveStats{
			NextSeq:         c.readBuffer.Next(),
			PendingSegments: c.readBuffer.Pending(),
			PendingBytes:    c.readBuffer.PendingBytes(),
		}
	})
	if err != nil {
		if errors.Is(err, errors.ErrDispatcherClosed) {
			return ReceiveStats{}, errors.ErrConnectionClosed
		}
		return ReceiveStats{}, err
	}
	return res, nil
}

// Pathsは、接続済みのパスのPathIDを返却します。
func (c *Conn) Paths(ctx context.Context) ([]message.PathID, error) {
	stats, err := c.Stats(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]message.PathID, 0, len(stats))
	for _, v := range stats {
		if v.State == PathStateConnected {
			res = append(res, v.PathID)
		}
	}
	return res, nil
}
