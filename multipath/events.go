package multipath

import (
	"net"

	"github.com/aptpod/multipath-go/message"
)

type (
	nopNewConnectionEventHandler    struct{}
	nopConnectionFailedEventHandler struct{}
	nopDataAvailableEventHandler    struct{}
	nopConnectionClosedEventHandler struct{}
	nopPathConnectedEventHandler    struct{}
	nopPathErrorEventHandler        struct{}
	nopLegacyDataEventHandler       struct{}
)

func (h nopNewConnectionEventHandler) OnNewConnection(ev *NewConnectionEvent)          {}
func (h nopConnectionFailedEventHandler) OnConnectionFailed(ev *ConnectionFailedEvent) {}
func (h nopDataAvailableEventHandler) OnDataAvailable(ev *DataAvailableEvent)          {}
func (h nopConnectionClosedEventHandler) OnConnectionClosed(ev *ConnectionClosedEvent) {}
func (h nopPathConnectedEventHandler) OnPathConnected(ev *PathConnectedEvent)          {}
func (h nopPathErrorEventHandler) OnPathError(ev *PathErrorEvent)                      {}
func (h nopLegacyDataEventHandler) OnLegacyData(ev *LegacyDataEvent)                   {}

// NewConnectionEventは、サーバーが新しいコネクションを受け付けた時のイベントです。
type NewConnectionEvent struct {
	// 受け付けたコネクション
	Conn *Conn
}

// NewConnectionEventHandlerは、新しいコネクションを受け付けた時のイベントハンドラです。
type NewConnectionEventHandler interface {
	OnNewConnection(ev *NewConnectionEvent)
}

// NewConnectionEventHandlerFuncは、NewConnectionEventHandlerの関数です。
type NewConnectionEventHandlerFunc func(ev *NewConnectionEvent)

func (f NewConnectionEventHandlerFunc) OnNewConnection(ev *NewConnectionEvent) {
	f(ev)
}

// ConnectionFailedEventは、最初のパスの確立に失敗した時のイベントです。
type ConnectionFailedEvent struct {
	Conn   *Conn
	Remote message.Identity
	// 失敗の原因
	Err error
}

// ConnectionFailedEventHandlerは、接続に失敗した時のイベントハンドラです。
type ConnectionFailedEventHandler interface {
	OnConnectionFailed(ev *ConnectionFailedEvent)
}

// ConnectionFailedEventHandlerFuncは、ConnectionFailedEventHandlerの関数です。
type ConnectionFailedEventHandlerFunc func(ev *ConnectionFailedEvent)

func (f ConnectionFailedEventHandlerFunc) OnConnectionFailed(ev *ConnectionFailedEvent) {
	f(ev)
}

// DataAvailableEventは、順序通りに並んだ新しいデータを受信した時のイベントです。
type DataAvailableEvent struct {
	Conn *Conn
	// 新たに読み出し可能になったバイト数
	Size int
}

// DataAvailableEventHandlerは、データを受信した時のイベントハンドラです。
type DataAvailableEventHandler interface {
	OnDataAvailable(ev *DataAvailableEvent)
}

// DataAvailableEventHandlerFuncは、DataAvailableEventHandlerの関数です。
type DataAvailableEventHandlerFunc func(ev *DataAvailableEvent)

func (f DataAvailableEventHandlerFunc) OnDataAvailable(ev *DataAvailableEvent) {
	f(ev)
}

// ConnectionClosedEventは、確立済みのコネクションがClosedになった時のイベントです。
//
// 1つのコネクションにつき1度だけ通知されます。
type ConnectionClosedEvent struct {
	Conn *Conn
	// ローカルからクローズした場合はnil、全てのパスを失った場合は errors.ErrConnectionLost
	Err error
}

// ConnectionClosedEventHandlerは、コネクションがクローズされた時のイベントハンドラです。
type ConnectionClosedEventHandler interface {
	OnConnectionClosed(ev *ConnectionClosedEvent)
}

// ConnectionClosedEventHandlerFuncは、ConnectionClosedEventHandlerの関数です。
type ConnectionClosedEventHandlerFunc func(ev *ConnectionClosedEvent)

func (f ConnectionClosedEventHandlerFunc) OnConnectionClosed(ev *ConnectionClosedEvent) {
	f(ev)
}

// PathConnectedEventは、パスがConnectedになった時のイベントです。
type PathConnectedEvent struct {
	Conn      *Conn
	PathID    message.PathID
	Interface message.Interface
}

// PathConnectedEventHandlerは、パスが接続された時のイベントハンドラです。
type PathConnectedEventHandler interface {
	OnPathConnected(ev *PathConnectedEvent)
}

// PathConnectedEventHandlerFuncは、PathConnectedEventHandlerの関数です。
type PathConnectedEventHandlerFunc func(ev *PathConnectedEvent)

func (f PathConnectedEventHandlerFunc) OnPathConnected(ev *PathConnectedEvent) {
	f(ev)
}

// PathErrorEventは、パスがErrorになった時のイベントです。
//
// 他のパスが残っている限り、コネクションは継続します。
type PathErrorEvent struct {
	Conn *Conn
	// Errは *errors.PathError です。
	Err error
}

// PathErrorEventHandlerは、パスでエラーが発生した時のイベントハンドラです。
type PathErrorEventHandler interface {
	OnPathError(ev *PathErrorEvent)
}

// PathErrorEventHandlerFuncは、PathErrorEventHandlerの関数です。
type PathErrorEventHandlerFunc func(ev *PathErrorEvent)

func (f PathErrorEventHandlerFunc) OnPathError(ev *PathErrorEvent) {
	f(ev)
}

// LegacyDataEventは、DATAコマンドでフレーミングされたデータを受信した時のイベントです。
type LegacyDataEvent struct {
	// 送信元のIdentity
	Identity message.Identity
	// 宛先のIdentity
	Peer    message.Identity
	Payload []byte

	RemoteAddr net.Addr
}

// LegacyDataEventHandlerは、DATAコマンドのデータを受信した時のイベントハンドラです。
type LegacyDataEventHandler interface {
	OnLegacyData(ev *LegacyDataEvent)
}

// LegacyDataEventHandlerFuncは、LegacyDataEventHandlerの関数です。
type LegacyDataEventHandlerFunc func(ev *LegacyDataEvent)

func (f LegacyDataEventHandlerFunc) OnLegacyData(ev *LegacyDataEvent) {
	f(ev)
}
