package gorilla

import (
	"net/http"

	gwebsocket "github.com/gorilla/websocket"

	"github.com/aptpod/multipath-go/transport/websocket"
)

var upgrader = gwebsocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Listenは、addrで待ち受け、pathへのリクエストをgorilla/websocketでアップグレードするListenerを生成します。
//
// pathが空の場合は websocket.DefaultPath を使用します。
func Listen(addr, path string) (*websocket.Listener, error) {
	return websocket.NewListener(addr, path, func(w http.ResponseWriter, r *http.Request) (websocket.Conn, error) {
		wsconn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return nil, err
		}
		return New(wsconn), nil
	})
}
