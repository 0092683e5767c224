package multipath

import (
	"time"

	"github.com/aptpod/multipath-go/log"
	"github.com/aptpod/multipath-go/message"
	"github.com/aptpod/multipath-go/metrics"
	"github.com/aptpod/multipath-go/resolver"
	"github.com/aptpod/multipath-go/transport"
)

var defaultServerConfig = ServerConfig{
	LocalIdentity:                0,
	Listeners:                    nil,
	Resolver:                     nil,
	AdvertiseInterfaces:          nil,
	Dispatcher:                   nil,
	Logger:                       log.NewNop(),
	Metrics:                      nil,
	HandshakeTimeout:             DefaultHandshakeTimeout,
	MaxSegmentSize:               nil,
	NewConnectionEventHandler:    nopNewConnectionEventHandler{},
	DataAvailableEventHandler:    nopDataAvailableEventHandler{},
	ConnectionClosedEventHandler: nopConnectionClosedEventHandler{},
	PathConnectedEventHandler:    nopPathConnectedEventHandler{},
	PathErrorEventHandler:        nopPathErrorEventHandler{},
	LegacyDataEventHandler:       nopLegacyDataEventHandler{},
}

// ServerConfigは、サーバーの設定です。
type ServerConfig struct {
	// ローカルのIdentity
	LocalIdentity message.Identity

	// 待ち受けるListener。インターフェースごとに1つ指定します。
	Listeners []transport.Listener

	// 名前解決
	//
	// 指定した場合、Serve の開始時に AdvertiseInterfaces を登録します。
	Resolver            resolver.Resolver
	AdvertiseInterfaces message.InterfaceSet

	// イベントループ
	//
	// nilの場合はサーバー専用のDispatcherを生成し、Close で停止します。
	Dispatcher *Dispatcher

	Logger  log.Logger
	Metrics *metrics.Metrics

	// ソケットを受け付けてからハンドシェイクを受信するまでのタイムアウト
	HandshakeTimeout time.Duration

	// 受け付けたコネクションが送信する際のセグメントの最大サイズ
	MaxSegmentSize *int

	NewConnectionEventHandler    NewConnectionEventHandler
	DataAvailableEventHandler    DataAvailableEventHandler
	ConnectionClosedEventHandler ConnectionClosedEventHandler
	PathConnectedEventHandler    PathConnectedEventHandler
	PathErrorEventHandler        PathErrorEventHandler
	LegacyDataEventHandler       LegacyDataEventHandler
}

// DefaultServerConfigは、デフォルトのServerConfigを取得します。
func DefaultServerConfig() *ServerConfig {
	c := defaultServerConfig
	return &c
}

// connConfigは、受け付けたコネクションの設定を返却します。
func (c *ServerConfig) connConfig(d *Dispatcher) *ConnConfig {
	res := DefaultConnConfig()
	res.LocalIdentity = c.LocalIdentity
	res.Dispatcher = d
	res.Logger = c.Logger
	res.Metrics = c.Metrics
	res.HandshakeTimeout = c.HandshakeTimeout
	res.MaxSegmentSize = c.MaxSegmentSize
	res.DataAvailableEventHandler = c.DataAvailableEventHandler
	res.ConnectionClosedEventHandler = c.ConnectionClosedEventHandler
	res.PathConnectedEventHandler = c.PathConnectedEventHandler
	res.PathErrorEventHandler = c.PathErrorEventHandler
	_ = res.setDefaults()
	return res
}

// ServerOptionは、Serverのオプションです。
type ServerOption func(*ServerConfig)

// WithServerLocalIdentityは、ローカルのIdentityを設定します。
func WithServerLocalIdentity(id message.Identity) ServerOption {
	return func(o *ServerConfig) {
		o.LocalIdentity = id
	}
}

// WithServerListenersは、待ち受けるListenerを設定します。
func WithServerListeners(ls ...transport.Listener) ServerOption {
	return func(o *ServerConfig) {
		o.Listeners = ls
	}
}

// WithServerResolverは、名前解決と登録するインターフェースを設定します。
func WithServerResolver(r resolver.Resolver, advertise ...message.Interface) ServerOption {
	return func(o *ServerConfig) {
		o.Resolver = r
		o.AdvertiseInterfaces = advertise
	}
}

// WithServerDispatcherは、共有するDispatcherを設定します。
func WithServerDispatcher(d *Dispatcher) ServerOption {
	return func(o *ServerConfig) {
		o.Dispatcher = d
	}
}

// WithServerLoggerは、ロガーを設定します。
func WithServerLogger(l log.Logger) ServerOption {
	return func(o *ServerConfig) {
		o.Logger = l
	}
}

// WithServerMetricsは、メトリクスを設定します。
func WithServerMetrics(m *metrics.Metrics) ServerOption {
	return func(o *ServerConfig) {
		o.Metrics = m
	}
}

// WithServerHandshakeTimeoutは、ハンドシェイクのタイムアウトを設定します。
func WithServerHandshakeTimeout(d time.Duration) ServerOption {
	return func(o *ServerConfig) {
		o.HandshakeTimeout = d
	}
}

// WithServerMaxSegmentSizeは、データセグメントのペイロードの最大サイズを設定します。
func WithServerMaxSegmentSize(n int) ServerOption {
	return func(o *ServerConfig) {
		o.MaxSegmentSize = &n
	}
}

// WithServerNewConnectionEventHandlerは、新しいコネクションを受け付けた時のイベントハンドラを設定します。
func WithServerNewConnectionEventHandler(h NewConnectionEventHandler) ServerOption {
	return func(o *ServerConfig) {
		o.NewConnectionEventHandler = h
	}
}

// WithServerDataAvailableEventHandlerは、データを受信した時のイベントハンドラを設定します。
func WithServerDataAvailableEventHandler(h DataAvailableEventHandler) ServerOption {
	return func(o *ServerConfig) {
		o.DataAvailableEventHandler = h
	}
}

// WithServerConnectionClosedEventHandlerは、コネクションがクローズされた時のイベントハンドラを設定します。
func WithServerConnectionClosedEventHandler(h ConnectionClosedEventHandler) ServerOption {
	return func(o *ServerConfig) {
		o.ConnectionClosedEventHandler = h
	}
}

// WithServerPathConnectedEventHandlerは、パスが接続された時のイベントハンドラを設定します。
func WithServerPathConnectedEventHandler(h PathConnectedEventHandler) ServerOption {
	return func(o *ServerConfig) {
		o.PathConnectedEventHandler = h
	}
}

// WithServerPathErrorEventHandlerは、パスでエラーが発生した時のイベントハンドラを設定します。
func WithServerPathErrorEventHandler(h PathErrorEventHandler) ServerOption {
	return func(o *ServerConfig) {
		o.PathErrorEventHandler = h
	}
}

// WithServerLegacyDataEventHandlerは、DATAコマンドのデータを受信した時のイベントハンドラを設定します。
func WithServerLegacyDataEventHandler(h LegacyDataEventHandler) ServerOption {
	return func(o *ServerConfig) {
		o.LegacyDataEventHandler = h
	}
}
