package multipath

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/aptpod/multipath-go/errors"
	"github.com/aptpod/multipath-go/internal/retry"
	"github.com/aptpod/multipath-go/internal/xio"
	"github.com/aptpod/multipath-go/log"
	"github.com/aptpod/multipath-go/message"
	"github.com/aptpod/multipath-go/metrics"
	"github.com/aptpod/multipath-go/transport"
)

// pathOwnerは、パスの終了を受け取る所有者です。
//
// 所属するコネクションが決まるまでは、受け付けたパスはサーバーが所有します。
type pathOwner interface {
	onPathTerminated(p *path, err error)
}

/*
pathは、1本のソケットとそのハンドシェイクの状態です。

フィールドはイベントループの中でのみ変更します。
ソケットの読み込みと書き込みはそれぞれ専用のゴルーチンで行い、結果はイベントとしてイベントループへ投入します。
終端状態になった後に届いたイベントは全て破棄します。
*/
type path struct {
	d      *Dispatcher
	owner  pathOwner
	logger log.Logger
	ctx    context.Context

	id       message.PathID
	outbound bool
	iface    message.Interface
	// 送信元として指定したローカルアドレス
	localAddress string

	state PathState
	sock  transport.Conn
	sendq *sendQueue

	cancelDial context.CancelFunc
	timer      *time.Timer

	// 受け付けたパスでDATAコマンドを受信した
	legacy bool
	// 一度でもConnectedになった
	established bool

	tx         *xio.CountWriter
	rx         *xio.CountReader
	txSegments atomic.Uint64
	rxSegments atomic.Uint64
}

func newOutboundPath(c *Conn, id message.PathID, iface message.Interface, localAddress string) *path {
	return &path{
		d:            c.d,
		owner:        c,
		logger:       c.logger,
		ctx:          log.WithTrackPathID(c.ctx, uint32(id)),
		id:           id,
		outbound:     true,
		iface:        iface,
		localAddress: localAddress,
		state:        PathStateInit,
	}
}

func newInboundPath(s *Server, sock transport.Conn) *path {
	return &path{
		d:      s.d,
		owner:  s,
		logger: s.logger,
		ctx:    log.WithTrackSocketID(context.Background()),
		iface:  interfaceOfAddr(sock.RemoteAddr()),
		state:  PathStateInit,
		sock:   sock,
	}
}

func (p *path) setState(s PathState) {
	p.logger.Debugf(p.ctx, "path state %v -> %v", p.state, s)
	p.state = s
}

// dialは、ソケットを開くゴルーチンを開始します。
func (p *path) dial(dialer transport.Dialer, r retry.Retry, timeout time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancelDial = cancel
	conf := transport.DialConfig{
		Address:      p.iface.String(),
		LocalAddress: p.localAddress,
	}
	go func() {
		defer cancel()
		sock, err := retry.Value(ctx, r, func(ctx context.Context) (transport.Conn, error) {
			s, err := dialer.Dial(ctx, conf)
			if err != nil {
				p.logger.Debugf(p.ctx, "failed to dial %v: %v", conf.Address, err)
			}
			return s, err
		})
		if err != nil {
			_ = p.d.Post(func() { p.onDialFailed(errors.Errorf("dial %v: %w", conf.Address, err)) })
			return
		}
		if err := p.d.Post(func() { p.onDialed(sock, timeout) }); err != nil {
			sock.Close()
		}
	}()
}

func (p *path) onDialFailed(err error) {
	if p.state.IsTerminal() {
		return
	}
	p.terminate(PathStateError, err)
}

func (p *path) onDialed(sock transport.Conn, timeout time.Duration) {
	if p.state.IsTerminal() {
		sock.Close()
		return
	}
	p.sock = sock
	p.setState(PathStateReady)
	p.startIO()
	p.startHandshakeTimer(timeout)
	if c, ok := p.owner.(*Conn); ok {
		c.onPathReady(p)
	}
}

// acceptは、受け付けたソケットからハンドシェイクの待ち受けを開始します。
func (p *path) accept(timeout time.Duration) {
	p.setState(PathStateListening)
	p.startIO()
	p.startHandshakeTimer(timeout)
}

func (p *path) startIO() {
	p.sendq = newSendQueue()
	p.tx = xio.NewCountWriter(p.sock)
	p.rx = xio.NewCountReader(p.sock)
	go p.writeLoop(p.sock, p.tx, p.sendq)
	go p.readLoop(p.sock, p.rx)
}

func (p *path) startHandshakeTimer(timeout time.Duration) {
	p.timer = time.AfterFunc(timeout, func() {
		_ = p.d.Post(p.onHandshakeTimeout)
	})
}

func (p *path) stopHandshakeTimer() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *path) onHandshakeTimeout() {
	if !p.state.isHandshaking() || p.legacy {
		return
	}
	p.logger.Warnf(p.ctx, "handshake timeout in %v", p.state)
	if s, ok := p.owner.(*Server); ok {
		s.metrics.HandshakeRejected(metrics.RejectReasonTimeout)
	}
	p.terminate(PathStateError, errors.ErrHandshakeTimeout)
}

// sendControlは、[ハンドシェイクヘッダー][パス制御ヘッダー]を送信します。
func (p *path) sendControl(hs *message.HandshakeHeader, ph *message.PathHeader) error {
	b := make([]byte, 0, hs.Size()+ph.Size())
	b, err := hs.AppendBinary(b)
	if err != nil {
		return err
	}
	b, err = ph.AppendBinary(b)
	if err != nil {
		return err
	}
	if !p.sendq.push(b) {
		return errors.ErrConnectionClosed
	}
	p.logger.Debugf(p.ctx, "sent %v path=%d conn=%v", hs.Command, ph.PathID, ph.ConnID)
	return nil
}

// sendSegmentは、[データシーケンスヘッダー][ペイロード]を送信キューへ追加します。
func (p *path) sendSegment(owner message.Identity, seq message.SeqNum, payload []byte) error {
	b := message.AppendSegment(make([]byte, 0, message.DataSeqHeaderSize+len(payload)), owner, seq, payload)
	if !p.sendq.push(b) {
		return errors.ErrConnectionClosed
	}
	p.txSegments.Add(1)
	return nil
}

func (p *path) connected() {
	p.stopHandshakeTimer()
	p.setState(PathStateConnected)
	p.established = true
}

// closeGracefullyは、送信キューを全て書き込んだ後にソケットをクローズします。
//
// パスはソケットのクローズを読み込みゴルーチンが検知した時点でClosedになります。
func (p *path) closeGracefully() {
	if p.state.IsTerminal() {
		return
	}
	if p.state != PathStateConnected || p.sendq == nil {
		p.terminate(PathStateClosed, nil)
		return
	}
	p.sendq.closeAfterFlush()
}

// terminateは、パスを終端状態にしてソケットを解放し、所有者へ通知します。
func (p *path) terminate(s PathState, err error) {
	if p.state.IsTerminal() {
		return
	}
	p.setState(s)
	p.stopHandshakeTimer()
	if p.cancelDial != nil {
		p.cancelDial()
	}
	if p.sendq != nil {
		p.sendq.abort()
	}
	if p.sock != nil {
		p.sock.Close()
	}
	if err != nil {
		p.logger.Warnf(p.ctx, "path terminated: %v", err)
	}
	if p.owner != nil {
		p.owner.onPathTerminated(p, err)
	}
}

// rejectは、ハンドシェイクを拒否してソケットを応答なしでクローズします。
func (p *path) reject(reason string, err error) {
	p.logger.Warnf(p.ctx, "handshake rejected (%s): %v", reason, err)
	p.terminate(PathStateError, err)
}

// onIOErrorは、ソケットの読み書きの失敗を受け取ります。
//
// 正常なクローズはClosed、それ以外はErrorになります。
// 接続を開始した側のハンドシェイク中に相手がクローズした場合は、拒否されたものとしてErrorになります。
func (p *path) onIOError(err error) {
	if p.state.IsTerminal() {
		return
	}
	if transport.IsClosed(err) {
		if p.outbound && p.state.isHandshaking() {
			p.terminate(PathStateError, errors.Errorf("peer closed during %v: %w", p.state, errors.ErrHandshakeMismatch))
			return
		}
		p.terminate(PathStateClosed, nil)
		return
	}
	p.terminate(PathStateError, err)
}

func (p *path) writeLoop(sock transport.Conn, wr io.Writer, q *sendQueue) {
	for {
		b, ok := q.pop()
		if !ok {
			break
		}
		if _, err := wr.Write(b); err != nil {
			// 読み込み側がクローズを検知するより先にエラーを通知する
			_ = p.d.Post(func() { p.onIOError(err) })
			sock.Close()
			return
		}
	}
	sock.Close()
}

func (p *path) readLoop(sock transport.Conn, rd io.Reader) {
	fail := func(err error) {
		if err := p.d.Post(func() { p.onIOError(err) }); err != nil {
			sock.Close()
		}
	}
	hs, err := message.ReadHandshakeHeader(rd)
	if err != nil {
		fail(err)
		return
	}
	if !p.outbound && hs.IsDataPacket() {
		p.readLegacyLoop(sock, rd, hs)
		return
	}
	ph, err := message.ReadPathHeader(rd)
	if err != nil {
		fail(err)
		return
	}
	if err := p.d.Post(func() { p.onControl(hs, ph) }); err != nil {
		sock.Close()
		return
	}
	for {
		seg, err := message.ReadSegment(rd, maxReceiveSegmentSize)
		if err != nil {
			fail(err)
			return
		}
		if err := p.d.Post(func() { p.onSegment(seg) }); err != nil {
			sock.Close()
			return
		}
	}
}

// readLegacyLoopは、[DATAハンドシェイクヘッダー][ペイロード]の繰り返しをEOFまで読み込みます。
func (p *path) readLegacyLoop(sock transport.Conn, rd io.Reader, hs *message.HandshakeHeader) {
	remote := sock.RemoteAddr()
	for {
		if int(hs.PayloadSize) > maxReceiveSegmentSize {
			err := errors.Errorf("legacy payload size %d: %w", hs.PayloadSize, errors.ErrMalformedHeader)
			_ = p.d.Post(func() { p.onIOError(err) })
			sock.Close()
			return
		}
		payload := make([]byte, hs.PayloadSize)
		if _, err := io.ReadFull(rd, payload); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			_ = p.d.Post(func() { p.onIOError(err) })
			sock.Close()
			return
		}
		ev := &LegacyDataEvent{
			Identity:   hs.Identity,
			Peer:       hs.Peer,
			Payload:    payload,
			RemoteAddr: remote,
		}
		if err := p.d.Post(func() { p.onLegacyData(ev) }); err != nil {
			sock.Close()
			return
		}
		next, err := message.ReadHandshakeHeader(rd)
		if err == nil && !next.IsDataPacket() {
			err = errors.Errorf("unexpected command %v after DATA: %w", next.Command, errors.ErrMalformedHeader)
		}
		if err != nil {
			_ = p.d.Post(func() { p.onIOError(err) })
			sock.Close()
			return
		}
		hs = next
	}
}

func (p *path) onControl(hs *message.HandshakeHeader, ph *message.PathHeader) {
	if p.state.IsTerminal() {
		return
	}
	switch o := p.owner.(type) {
	case *Conn:
		o.onControl(p, hs, ph)
	case *Server:
		o.onControl(p, hs, ph)
	}
}

func (p *path) onSegment(seg *message.Segment) {
	if p.state != PathStateConnected {
		return
	}
	p.rxSegments.Add(1)
	if c, ok := p.owner.(*Conn); ok {
		c.onSegment(p, seg)
	}
}

func (p *path) onLegacyData(ev *LegacyDataEvent) {
	if p.state.IsTerminal() {
		return
	}
	if !p.legacy {
		p.legacy = true
		p.stopHandshakeTimer()
	}
	if s, ok := p.owner.(*Server); ok {
		s.onLegacyData(ev)
	}
}

func (p *path) stats() PathStats {
	res := PathStats{
		PathID:     p.id,
		Interface:  p.iface,
		State:      p.state,
		TxBytes:    p.tx.Count(),
		RxBytes:    p.rx.Count(),
		TxSegments: p.txSegments.Load(),
		RxSegments: p.rxSegments.Load(),
	}
	if p.sock != nil {
		if addr := p.sock.LocalAddr(); addr != nil {
			res.LocalAddr = addr.String()
		}
		if mp := transport.MetricsProviderOf(p.sock); mp.Measured() {
			res.RTT = mp.RTT()
		}
	}
	return res
}
