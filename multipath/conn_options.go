package multipath

import (
	"net"
	"net/netip"
	"strconv"
	"time"

	"github.com/aptpod/multipath-go/errors"
	"github.com/aptpod/multipath-go/internal/retry"
	"github.com/aptpod/multipath-go/log"
	"github.com/aptpod/multipath-go/message"
	"github.com/aptpod/multipath-go/metrics"
	"github.com/aptpod/multipath-go/transport"
	"github.com/aptpod/multipath-go/transport/tcp"
)

const (
	// DefaultMaxSegmentSizeは、1つのデータセグメントのペイロードの最大サイズのデフォルト値です。
	DefaultMaxSegmentSize = 1400
	// DefaultHandshakeTimeoutは、ハンドシェイクのタイムアウトのデフォルト値です。
	DefaultHandshakeTimeout = 10 * time.Second

	defaultDialAttempts      = 1
	defaultDialRetryInterval = 100 * time.Millisecond

	// 受信するセグメントのペイロードの上限
	maxReceiveSegmentSize = 1 << 24
)

var defaultConnConfig = ConnConfig{
	LocalIdentity:                0,
	LocalInterfaces:              nil,
	Dialer:                       nil,
	Dispatcher:                   nil,
	Logger:                       log.NewNop(),
	Metrics:                      nil,
	HandshakeTimeout:             DefaultHandshakeTimeout,
	MaxSegmentSize:               nil,
	AutoJoin:                     false,
	DialAttempts:                 nil,
	DialRetryInterval:            defaultDialRetryInterval,
	ConnectionFailedEventHandler: nopConnectionFailedEventHandler{},
	DataAvailableEventHandler:    nopDataAvailableEventHandler{},
	ConnectionClosedEventHandler: nopConnectionClosedEventHandler{},
	PathConnectedEventHandler:    nopPathConnectedEventHandler{},
	PathErrorEventHandler:        nopPathErrorEventHandler{},
}

// ConnConfigは、コネクションの設定です。
type ConnConfig struct {
	// ローカルのIdentity
	LocalIdentity message.Identity

	// パスの送信元として使用するローカルのインターフェース
	//
	// 指定した場合、i番目に開くパスは LocalInterfaces[i % len(LocalInterfaces)] のアドレスから接続します。
	// ポートは使用しません。
	LocalInterfaces message.InterfaceSet

	// パスのソケットを開くDialer
	//
	// nilの場合はTCPを使用します。
	Dialer transport.Dialer

	// イベントループ
	//
	// nilの場合はコネクション専用のDispatcherを生成し、コネクションがClosedになると停止します。
	Dispatcher *Dispatcher

	// ロガー
	Logger log.Logger

	// メトリクス
	//
	// nilの場合はメトリクスを記録しません。
	Metrics *metrics.Metrics

	// ソケットの接続からハンドシェイクの完了までのタイムアウト
	HandshakeTimeout time.Duration

	// 1つのデータセグメントのペイロードの最大サイズ
	//
	// nilの場合は DefaultMaxSegmentSize を使用します。
	MaxSegmentSize *int

	// 最初のパスが接続された後、接続先の残りの全てのインターフェースへパスを追加するかどうか
	AutoJoin bool

	// パスのソケットを開く際の最大試行回数
	//
	// nilの場合は1回です。
	DialAttempts *int

	// パスのソケットを開く際の基準リトライ間隔
	DialRetryInterval time.Duration

	ConnectionFailedEventHandler ConnectionFailedEventHandler
	DataAvailableEventHandler    DataAvailableEventHandler
	ConnectionClosedEventHandler ConnectionClosedEventHandler
	PathConnectedEventHandler    PathConnectedEventHandler
	PathErrorEventHandler        PathErrorEventHandler
}

// DefaultConnConfigは、デフォルトのConnConfigを取得します。
func DefaultConnConfig() *ConnConfig {
	c := defaultConnConfig
	return &c
}

func (c *ConnConfig) setDefaults() error {
	if c.Dialer == nil {
		c.Dialer = tcp.NewDefaultDialer()
	}
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.MaxSegmentSize != nil && *c.MaxSegmentSize <= 0 {
		return errors.Errorf("invalid MaxSegmentSize %d: %w", *c.MaxSegmentSize, errors.ErrMultipath)
	}
	if c.DialAttempts != nil && *c.DialAttempts <= 0 {
		return errors.Errorf("invalid DialAttempts %d: %w", *c.DialAttempts, errors.ErrMultipath)
	}
	if c.DialRetryInterval <= 0 {
		c.DialRetryInterval = defaultDialRetryInterval
	}
	if c.ConnectionFailedEventHandler == nil {
		c.ConnectionFailedEventHandler = nopConnectionFailedEventHandler{}
	}
	if c.DataAvailableEventHandler == nil {
		c.DataAvailableEventHandler = nopDataAvailableEventHandler{}
	}
	if c.ConnectionClosedEventHandler == nil {
		c.ConnectionClosedEventHandler = nopConnectionClosedEventHandler{}
	}
	if c.PathConnectedEventHandler == nil {
		c.PathConnectedEventHandler = nopPathConnectedEventHandler{}
	}
	if c.PathErrorEventHandler == nil {
		c.PathErrorEventHandler = nopPathErrorEventHandler{}
	}
	return nil
}

func (c *ConnConfig) maxSegmentSize() int {
	if c.MaxSegmentSize == nil {
		return DefaultMaxSegmentSize
	}
	return *c.MaxSegmentSize
}

func (c *ConnConfig) dialRetry() retry.Retry {
	attempts := defaultDialAttempts
	if c.DialAttempts != nil {
		attempts = *c.DialAttempts
	}
	return retry.Retry{
		MaxAttempt:   attempts,
		BaseInterval: c.DialRetryInterval,
	}
}

// localAddressは、n番目に開くパスの送信元アドレスを返却します。
func (c *ConnConfig) localAddress(n int) string {
	if len(c.LocalInterfaces) == 0 {
		return ""
	}
	iface := c.LocalInterfaces[n%len(c.LocalInterfaces)]
	return net.JoinHostPort(iface.Addr.String(), strconv.Itoa(0))
}

// ConnOptionは、Connのオプションです。
type ConnOption func(*ConnConfig)

// WithConnLocalIdentityは、ローカルのIdentityを設定します。
func WithConnLocalIdentity(id message.Identity) ConnOption {
	return func(o *ConnConfig) {
		o.LocalIdentity = id
	}
}

// WithConnLocalInterfacesは、パスの送信元として使用するローカルのインターフェースを設定します。
func WithConnLocalInterfaces(ifaces ...message.Interface) ConnOption {
	return func(o *ConnConfig) {
		o.LocalInterfaces = ifaces
	}
}

// WithConnDialerは、パスのソケットを開くDialerを設定します。
func WithConnDialer(d transport.Dialer) ConnOption {
	return func(o *ConnConfig) {
		o.Dialer = d
	}
}

// WithConnDispatcherは、共有するDispatcherを設定します。
func WithConnDispatcher(d *Dispatcher) ConnOption {
	return func(o *ConnConfig) {
		o.Dispatcher = d
	}
}

// WithConnLoggerは、ロガーを設定します。
func WithConnLogger(l log.Logger) ConnOption {
	return func(o *ConnConfig) {
		o.Logger = l
	}
}

// WithConnMetricsは、メトリクスを設定します。
func WithConnMetrics(m *metrics.Metrics) ConnOption {
	return func(o *ConnConfig) {
		o.Metrics = m
	}
}

// WithConnHandshakeTimeoutは、ハンドシェイクのタイムアウトを設定します。
func WithConnHandshakeTimeout(d time.Duration) ConnOption {
	return func(o *ConnConfig) {
		o.HandshakeTimeout = d
	}
}

// WithConnMaxSegmentSizeは、データセグメントのペイロードの最大サイズを設定します。
func WithConnMaxSegmentSize(n int) ConnOption {
	return func(o *ConnConfig) {
		o.MaxSegmentSize = &n
	}
}

// WithConnAutoJoinは、接続後に残りのインターフェースへ自動でパスを追加するかどうかを設定します。
func WithConnAutoJoin(b bool) ConnOption {
	return func(o *ConnConfig) {
		o.AutoJoin = b
	}
}

// WithConnDialRetryは、パスのソケットを開く際の試行回数と基準リトライ間隔を設定します。
func WithConnDialRetry(attempts int, interval time.Duration) ConnOption {
	return func(o *ConnConfig) {
		o.DialAttempts = &attempts
		o.DialRetryInterval = interval
	}
}

// WithConnConnectionFailedEventHandlerは、接続に失敗した時のイベントハンドラを設定します。
func WithConnConnectionFailedEventHandler(h ConnectionFailedEventHandler) ConnOption {
	return func(o *ConnConfig) {
		o.ConnectionFailedEventHandler = h
	}
}

// WithConnDataAvailableEventHandlerは、データを受信した時のイベントハンドラを設定します。
func WithConnDataAvailableEventHandler(h DataAvailableEventHandler) ConnOption {
	return func(o *ConnConfig) {
		o.DataAvailableEventHandler = h
	}
}

// WithConnConnectionClosedEventHandlerは、コネクションがクローズされた時のイベントハンドラを設定します。
func WithConnConnectionClosedEventHandler(h ConnectionClosedEventHandler) ConnOption {
	return func(o *ConnConfig) {
		o.ConnectionClosedEventHandler = h
	}
}

// WithConnPathConnectedEventHandlerは、パスが接続された時のイベントハンドラを設定します。
func WithConnPathConnectedEventHandler(h PathConnectedEventHandler) ConnOption {
	return func(o *ConnConfig) {
		o.PathConnectedEventHandler = h
	}
}

// WithConnPathErrorEventHandlerは、パスでエラーが発生した時のイベントハンドラを設定します。
func WithConnPathErrorEventHandler(h PathErrorEventHandler) ConnOption {
	return func(o *ConnConfig) {
		o.PathErrorEventHandler = h
	}
}

// interfaceOfAddrは、net.Addrを可能であればInterfaceへ変換します。
func interfaceOfAddr(addr net.Addr) message.Interface {
	if addr == nil {
		return message.Interface{}
	}
	ap, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return message.Interface{}
	}
	return message.Interface{Addr: ap.Addr().Unmap(), Port: ap.Port()}
}
