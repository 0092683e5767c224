package multipath

import (
	"context"
	"net"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/aptpod/multipath-go/errors"
	"github.com/aptpod/multipath-go/log"
	"github.com/aptpod/multipath-go/message"
	"github.com/aptpod/multipath-go/metrics"
	"github.com/aptpod/multipath-go/transport"
)

/*
Server は、待ち受けたソケットのハンドシェイクを解釈し、コネクションへ振り分けるデマルチプレクサーです。

未知のConnIDを持つBUILDを受信すると新しいConnIDを割り当ててコネクションを生成し、NewConnectionEvent を通知します。
既知のConnIDを持つBUILDまたはJOINは、両方のキーが一致する場合のみそのコネクションへパスとして追加します。
一致しない場合は応答せずにソケットをクローズします。
*/
type Server struct {
	cfg           ServerConfig
	d             *Dispatcher
	ownDispatcher bool
	logger        log.Logger
	metrics       *metrics.Metrics

	// 以下はイベントループの中でのみ使用する
	connIDs *connIDSet
	conns   map[message.ConnID]*Conn
	pending map[*path]struct{}
	closing bool

	mu      sync.Mutex
	cancels []context.CancelFunc
	closed  bool
	serving sync.WaitGroup
}

// NewServerは、Serverを生成します。
func NewServer(opts ...ServerOption) (*Server, error) {
	cfg := DefaultServerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return NewServerWithConfig(cfg)
}

// NewServerWithConfigは、設定からServerを生成します。
func NewServerWithConfig(cfg *ServerConfig) (*Server, error) {
	c := *cfg
	if len(c.Listeners) == 0 {
		return nil, errors.Errorf("no listener: %w", errors.ErrMultipath)
	}
	if c.MaxSegmentSize != nil && *c.MaxSegmentSize <= 0 {
		return nil, errors.Errorf("invalid MaxSegmentSize %d: %w", *c.MaxSegmentSize, errors.ErrMultipath)
	}
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.NewConnectionEventHandler == nil {
		c.NewConnectionEventHandler = nopNewConnectionEventHandler{}
	}
	if c.LegacyDataEventHandler == nil {
		c.LegacyDataEventHandler = nopLegacyDataEventHandler{}
	}
	s := &Server{
		cfg:     c,
		d:       c.Dispatcher,
		logger:  c.Logger,
		metrics: c.Metrics,
		connIDs: newConnIDSet(),
		conns:   make(map[message.ConnID]*Conn),
		pending: make(map[*path]struct{}),
	}
	if s.d == nil {
		s.d = NewDispatcher()
		s.ownDispatcher = true
	}
	return s, nil
}

// Dispatcherは、サーバーが使用するDispatcherを返却します。
func (s *Server) Dispatcher() *Dispatcher {
	return s.d
}

/*
Serve は、全てのListenerでソケットの受け付けを開始し、ctxがキャンセルされるか Close が呼び出されるまでブロックします。

Resolver が設定されている場合は、受け付けを開始する前に AdvertiseInterfaces を登録します。
*/
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.ErrConnectionClosed
	}
	s.cancels = append(s.cancels, cancel)
	s.serving.Add(1)
	s.mu.Unlock()
	defer s.serving.Done()

	if s.cfg.Resolver != nil && len(s.cfg.AdvertiseInterfaces) > 0 {
		if err := s.cfg.Resolver.Advertise(ctx, s.cfg.LocalIdentity, s.cfg.AdvertiseInterfaces); err != nil {
			return errors.Errorf("advertise %v: %w", s.cfg.LocalIdentity, err)
		}
		s.logger.Infof(ctx, "advertised %v as %v", s.cfg.AdvertiseInterfaces, s.cfg.LocalIdentity)
	}

	eg, ctx := errgroup.WithContext(ctx)
	for _, l := range s.cfg.Listeners {
		l := l
		eg.Go(func() error {
			return s.acceptLoop(ctx, l)
		})
	}
	return eg.Wait()
}

func (s *Server) acceptLoop(ctx context.Context, l transport.Listener) error {
	s.logger.Infof(ctx, "listening on %v", l.Addr())
	for {
		sock, err := l.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return errors.Errorf("accept on %v: %w", l.Addr(), err)
		}
		if err := s.d.Post(func() { s.accept(sock) }); err != nil {
			sock.Close()
			return nil
		}
	}
}

func (s *Server) accept(sock transport.Conn) {
	if s.closing {
		sock.Close()
		return
	}
	p := newInboundPath(s, sock)
	s.pending[p] = struct{}{}
	p.logger.Debugf(p.ctx, "accepted socket from %v", sock.RemoteAddr())
	p.accept(s.cfg.HandshakeTimeout)
}

// onPathTerminatedは、コネクションに所属する前のパスが終了した時に呼び出します。
func (s *Server) onPathTerminated(p *path, err error) {
	delete(s.pending, p)
}

func (s *Server) reject(p *path, reason string, err error) {
	s.metrics.HandshakeRejected(reason)
	p.reject(reason, err)
}

// onControlは、受け付けたソケットの最初のハンドシェイクを振り分けます。
func (s *Server) onControl(p *path, hs *message.HandshakeHeader, ph *message.PathHeader) {
	if p.state != PathStateListening {
		s.reject(p, metrics.RejectReasonMalformed, errors.Errorf("unexpected %v in %v: %w", hs.Command, p.state, errors.ErrHandshakeMismatch))
		return
	}
	if s.closing {
		s.reject(p, metrics.RejectReasonConnectionClosing, errors.ErrConnectionClosed)
		return
	}
	switch hs.Command {
	case message.CommandBuild:
		if c, ok := s.conns[ph.ConnID]; ok && ph.ConnID != 0 {
			p.setState(PathStateJoinReceived)
			s.join(c, p, hs, ph)
			return
		}
		p.setState(PathStateBuildReceived)
		s.build(p, hs, ph)
	case message.CommandJoin:
		p.setState(PathStateJoinReceived)
		c, ok := s.conns[ph.ConnID]
		if !ok {
			s.reject(p, metrics.RejectReasonUnknownConnection, errors.Errorf("unknown connection %v: %w", ph.ConnID, errors.ErrHandshakeMismatch))
			return
		}
		s.join(c, p, hs, ph)
	default:
		s.reject(p, metrics.RejectReasonMalformed, errors.Errorf("unexpected %v: %w", hs.Command, errors.ErrHandshakeMismatch))
	}
}

// buildは、新しいコネクションを生成し、パスをその最初のパスとして接続します。
func (s *Server) build(p *path, hs *message.HandshakeHeader, ph *message.PathHeader) {
	if ph.SenderKey == 0 || ph.Owner != hs.Identity {
		s.reject(p, metrics.RejectReasonMalformed, errors.Errorf("invalid BUILD from %v: %w", hs.Identity, errors.ErrHandshakeMismatch))
		return
	}
	id := s.connIDs.generate()
	c := newConn(s.cfg.connConfig(s.d))
	c.server = s
	c.remote.Store(uint64(hs.Identity))
	c.remoteKey = ph.SenderKey
	c.localKey = s.d.keys.generate()
	c.id.Store(uint64(id))
	c.ctx = log.WithTrackConnID(c.ctx, uint64(id))
	c.setState(ConnStateSending)
	s.conns[id] = c
	s.metrics.ConnectionOpened()
	c.logger.Infof(c.ctx, "new connection from %v", hs.Identity)

	ev := &NewConnectionEvent{Conn: c}
	h := s.cfg.NewConnectionEventHandler
	s.d.notifyApp(func() { h.OnNewConnection(ev) })

	s.attach(c, p, ph, message.CommandBuildAck)
}

// joinは、既存のコネクションのキーを検証し、一致した場合のみパスを追加します。
func (s *Server) join(c *Conn, p *path, hs *message.HandshakeHeader, ph *message.PathHeader) {
	if c.State() != ConnStateSending {
		s.reject(p, metrics.RejectReasonConnectionClosing, errors.Errorf("join to %v connection: %w", c.State(), errors.ErrConnectionClosed))
		return
	}
	remote := c.RemoteIdentity()
	if ph.SenderKey != c.remoteKey || ph.ReceiverKey != c.localKey || hs.Identity != remote || ph.Owner != remote {
		s.reject(p, metrics.RejectReasonKeyMismatch, errors.Errorf("join to %v from %v: %w", c.ID(), hs.Identity, errors.ErrHandshakeMismatch))
		return
	}
	if slices.ContainsFunc(c.paths, func(v *path) bool { return v.id == ph.PathID }) {
		s.reject(p, metrics.RejectReasonDuplicatePath, errors.Errorf("path %d already exists: %w", ph.PathID, errors.ErrHandshakeMismatch))
		return
	}
	s.attach(c, p, ph, message.CommandJoinAck)
}

// attachは、パスをコネクションへ移し、ACKを返信して接続します。
func (s *Server) attach(c *Conn, p *path, ph *message.PathHeader, cmd message.Command) {
	delete(s.pending, p)
	p.owner = c
	p.id = ph.PathID
	p.ctx = log.WithTrackPathID(c.ctx, uint32(ph.PathID))
	c.paths = append(c.paths, p)

	hs := &message.HandshakeHeader{
		Command:  cmd,
		Identity: s.cfg.LocalIdentity,
		Port:     interfaceOfAddr(p.sock.LocalAddr()).Port,
	}
	ack := &message.PathHeader{
		PathID:      ph.PathID,
		Owner:       ph.Owner,
		SenderKey:   c.localKey,
		ReceiverKey: c.remoteKey,
		ConnID:      c.ID(),
	}
	if err := p.sendControl(hs, ack); err != nil {
		p.terminate(PathStateError, err)
		return
	}
	p.connected()
	c.onPathConnected(p)
}

// removeConnは、Closedになったコネクションの登録を解除します。
func (s *Server) removeConn(c *Conn) {
	id := c.ID()
	delete(s.conns, id)
	s.connIDs.release(id)
}

func (s *Server) onLegacyData(ev *LegacyDataEvent) {
	h := s.cfg.LegacyDataEventHandler
	s.d.notifyApp(func() { h.OnLegacyData(ev) })
}

// Connectionsは、生存中のコネクションの一覧を返却します。
func (s *Server) Connections(ctx context.Context) ([]*Conn, error) {
	var res []*Conn
	err := s.d.Do(ctx, func() {
		res = s.connections()
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Server) connections() []*Conn {
	res := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		res = append(res, c)
	}
	slices.SortFunc(res, func(a, b *Conn) int {
		switch {
		case a.ID() < b.ID():
			return -1
		case a.ID() > b.ID():
			return 1
		}
		return 0
	})
	return res
}

/*
Close は、全てのListenerを停止し、受け付けた全てのコネクションをクローズします。

全てのコネクションがClosedになるまで待ちます。
*/
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()

	var errs []error
	for _, l := range s.cfg.Listeners {
		if err := l.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	for _, cancel := range cancels {
		cancel()
	}
	// 受け付け済みのソケットを全てイベントループへ渡してから閉じる
	s.serving.Wait()

	var conns []*Conn
	err := s.d.Do(ctx, func() {
		s.closing = true
		for p := range s.pending {
			p.terminate(PathStateClosed, nil)
		}
		conns = s.connections()
		for _, c := range conns {
			c.close()
		}
	})
	if err != nil && !errors.Is(err, errors.ErrDispatcherClosed) {
		return err
	}
	for _, c := range conns {
		select {
		case <-c.Closed():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.ownDispatcher {
		s.d.Close()
	}
	return errors.Join(errs...)
}
