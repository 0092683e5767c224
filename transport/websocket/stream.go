package websocket

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/aptpod/multipath-go/transport"
	"github.com/aptpod/multipath-go/transport/metrics"
)

var (
	_ transport.Conn             = (*Stream)(nil)
	_ transport.MetricsSupporter = (*Stream)(nil)
)

// Streamは、WebSocketのバイナリメッセージの列をバイトストリームとして扱うパスのソケットです。
//
// 1回のWriteが1つのバイナリメッセージになります。
type Stream struct {
	conn Conn

	rmu sync.Mutex
	rd  io.Reader

	wmu sync.Mutex

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// NewStreamは、Streamを生成します。
func NewStream(conn Conn) *Stream {
	return &Stream{
		conn: conn,
		done: make(chan struct{}),
	}
}

func (s *Stream) Read(p []byte) (int, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()
	for {
		if s.rd == nil {
			_, rd, err := s.conn.Reader(context.Background())
			if err != nil {
				return 0, s.wrapError(err)
			}
			s.rd = rd
		}
		n, err := s.rd.Read(p)
		if err == io.EOF {
			s.rd = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		if err != nil {
			return n, s.wrapError(err)
		}
		return n, nil
	}
}

func (s *Stream) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	wr, err := s.conn.Writer(context.Background(), MessageBinary)
	if err != nil {
		return 0, s.wrapError(err)
	}
	n, err := wr.Write(p)
	if err != nil {
		return n, s.wrapError(err)
	}
	if err := wr.Close(); err != nil {
		return n, s.wrapError(err)
	}
	return n, nil
}

// Closeは、正常終了のクローズフレームを送信してコネクションを閉じます。
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.conn.Close()
		close(s.done)
	})
	return s.closeErr
}

// Doneは、Closeが呼び出されるとクローズされるチャンネルを返却します。
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func (s *Stream) LocalAddr() net.Addr  { return s.conn.LocalAddr() }
func (s *Stream) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// MetricsProviderは、基盤となるコネクションがTCPの場合にTCP_INFOを使用するプロバイダーを返却します。
func (s *Stream) MetricsProvider() metrics.MetricsProvider {
	u, ok := s.conn.(UnderlyingConnSupporter)
	if !ok {
		return nil
	}
	tcpConn, ok := u.UnderlyingConn().(*net.TCPConn)
	if !ok {
		return nil
	}
	return metrics.NewTCPInfoProvider(tcpConn)
}

func (s *Stream) wrapError(err error) error {
	if err == io.EOF {
		return io.EOF
	}
	if s.closed.Load() {
		return fmt.Errorf("%v: %w", err, net.ErrClosed)
	}
	return err
}
