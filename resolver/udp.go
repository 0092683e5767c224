package resolver

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aptpod/multipath-go/errors"
	"github.com/aptpod/multipath-go/log"
	"github.com/aptpod/multipath-go/message"
)

const (
	// DefaultRetransmitIntervalは、応答がない場合にクエリを再送する間隔のデフォルト値です。
	DefaultRetransmitInterval = 500 * time.Millisecond

	maxDatagramSize = 64 * 1024
)

// ErrClientClosedは、クローズ済みのClientを使用した場合のエラーです。
var ErrClientClosed = errors.New("resolver: client closed")

var _ Resolver = (*Client)(nil)

// ClientOptionは、Clientのオプションです。
type ClientOption func(c *Client)

// WithClientLoggerは、ロガーを設定します。
func WithClientLogger(l log.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithClientRetransmitIntervalは、クエリの再送間隔を設定します。
func WithClientRetransmitInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.interval = d
	}
}

/*
Client は、名前解決サービスへUDPでクエリを送信するResolverです。

クエリは message.ResolutionHeader でエンコードし、応答はQueryIDで対応付けます。
応答がない場合は、ctxが完了するまで一定間隔で同じクエリを再送します。
*/
type Client struct {
	conn     net.PacketConn
	server   net.Addr
	logger   log.Logger
	interval time.Duration

	nextID atomic.Uint32

	mu    sync.Mutex
	waits map[uint32]chan *message.ResolutionHeader

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewClientは、serverへクエリを送信するClientを生成します。
//
// connの所有権はClientへ移ります。
func NewClient(conn net.PacketConn, server net.Addr, opts ...ClientOption) *Client {
	c := &Client{
		conn:     conn,
		server:   server,
		logger:   log.NewNop(),
		interval: DefaultRetransmitInterval,
		waits:    make(map[uint32]chan *message.ResolutionHeader),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.readLoop()
	}()
	return c
}

// Resolveは、QUERYを送信してidのインターフェースの一覧を取得します。
//
// サービスがQUERY-FAILを返却した場合は ErrNotFound を返却します。
func (c *Client) Resolve(ctx context.Context, id message.Identity) (message.InterfaceSet, error) {
	res, err := c.roundTrip(ctx, &message.ResolutionHeader{
		Method:   message.MethodQuery,
		Identity: id,
	})
	if err != nil {
		return nil, errors.Errorf("resolve %v: %w", id, err)
	}
	switch res.Method {
	case message.MethodQueryOK:
		return res.Interfaces, nil
	case message.MethodQueryFail:
		return nil, errors.Errorf("resolve %v: %w", id, ErrNotFound)
	default:
		return nil, errors.Errorf("unexpected %v for QUERY: %w", res.Method, errors.ErrMalformedHeader)
	}
}

// Advertiseは、INSERTを送信してidのインターフェースの一覧を登録します。
func (c *Client) Advertise(ctx context.Context, id message.Identity, ifaces message.InterfaceSet) error {
	res, err := c.roundTrip(ctx, &message.ResolutionHeader{
		Method:     message.MethodInsert,
		Identity:   id,
		Interfaces: ifaces,
	})
	if err != nil {
		return errors.Errorf("advertise %v: %w", id, err)
	}
	if res.Method != message.MethodInsertOK {
		return errors.Errorf("unexpected %v for INSERT: %w", res.Method, errors.ErrMalformedHeader)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, req *message.ResolutionHeader) (*message.ResolutionHeader, error) {
	req.QueryID = c.nextID.Add(1)
	b, err := message.Marshal(req)
	if err != nil {
		return nil, err
	}

	wait := make(chan *message.ResolutionHeader, 1)
	c.mu.Lock()
	c.waits[req.QueryID] = wait
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.waits, req.QueryID)
		c.mu.Unlock()
	}()

	timer := time.NewTimer(c.interval)
	defer timer.Stop()
	for {
		if _, err := c.conn.WriteTo(b, c.server); err != nil {
			select {
			case <-c.done:
				return nil, ErrClientClosed
			default:
			}
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.done:
			return nil, ErrClientClosed
		case res := <-wait:
			return res, nil
		case <-timer.C:
			c.logger.Debugf(ctx, "retransmit %v query %d", req.Method, req.QueryID)
			timer.Reset(c.interval)
		}
	}
}

func (c *Client) readLoop() {
	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := c.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Errorf(context.Background(), "failed to read resolution response: %v", err)
			}
			return
		}
		if addr.String() != c.server.String() {
			c.logger.Warnf(context.Background(), "discard resolution response from unexpected %v", addr)
			continue
		}
		var res message.ResolutionHeader
		if _, err := res.Decode(buf[:n]); err != nil {
			c.logger.Warnf(context.Background(), "discard resolution response from %v: %v", addr, err)
			continue
		}
		c.mu.Lock()
		wait, ok := c.waits[res.QueryID]
		c.mu.Unlock()
		if !ok {
			continue
		}
		select {
		case wait <- &res:
		default:
		}
	}
}

// Closeは、ソケットをクローズし、応答待ちのクエリを全て終了させます。
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
		c.wg.Wait()
	})
	return err
}

// ServerOptionは、Serverのオプションです。
type ServerOption func(s *Server)

// WithServerLoggerは、ロガーを設定します。
func WithServerLogger(l log.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

/*
Server は、UDPで受信したクエリをResolverで処理して応答する名前解決サービスです。

INSERTはAdvertise、QUERYはResolveに対応します。見つからない場合はQUERY-FAILを返却します。
*/
type Server struct {
	conn     net.PacketConn
	resolver Resolver
	logger   log.Logger
}

// NewServerは、connで待ち受け、rで名前解決するServerを生成します。
func NewServer(conn net.PacketConn, r Resolver, opts ...ServerOption) *Server {
	s := &Server{
		conn:     conn,
		resolver: r,
		logger:   log.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serveは、ctxが完了するまでクエリに応答します。
//
// 終了時にソケットをクローズします。
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		s.conn.Close()
	})
	defer stop()
	defer s.conn.Close()

	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		var req message.ResolutionHeader
		if _, err := req.Decode(buf[:n]); err != nil {
			s.logger.Warnf(ctx, "discard resolution query from %v: %v", addr, err)
			continue
		}
		res := s.handle(ctx, &req)
		if res == nil {
			continue
		}
		b, err := message.Marshal(res)
		if err != nil && res.Method == message.MethodQueryOK {
			// エンコードできないインターフェースを含む場合は見つからなかったものとして応答する
			s.logger.Warnf(ctx, "failed to encode %v for %v: %v", res.Method, res.Identity, err)
			res.Method = message.MethodQueryFail
			res.Interfaces = nil
			b, err = message.Marshal(res)
		}
		if err != nil {
			s.logger.Errorf(ctx, "failed to encode %v: %v", res.Method, err)
			continue
		}
		if _, err := s.conn.WriteTo(b, addr); err != nil {
			s.logger.Warnf(ctx, "failed to reply to %v: %v", addr, err)
		}
	}
}

func (s *Server) handle(ctx context.Context, req *message.ResolutionHeader) *message.ResolutionHeader {
	res := &message.ResolutionHeader{
		QueryID:  req.QueryID,
		Identity: req.Identity,
	}
	switch req.Method {
	case message.MethodInsert:
		if err := s.resolver.Advertise(ctx, req.Identity, req.Interfaces); err != nil {
			s.logger.Warnf(ctx, "failed to insert %v: %v", req.Identity, err)
			return nil
		}
		res.Method = message.MethodInsertOK
	case message.MethodQuery:
		ifaces, err := s.resolver.Resolve(ctx, req.Identity)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				s.logger.Warnf(ctx, "failed to resolve %v: %v", req.Identity, err)
			}
			res.Method = message.MethodQueryFail
			return res
		}
		if len(ifaces) > message.MaxInterfaceCount {
			ifaces = ifaces[:message.MaxInterfaceCount]
		}
		res.Method = message.MethodQueryOK
		res.Interfaces = ifaces
	default:
		s.logger.Warnf(ctx, "unexpected method %v", req.Method)
		return nil
	}
	return res
}
