package coder

import (
	"net"
	"net/http"

	cwebsocket "github.com/coder/websocket"

	"github.com/aptpod/multipath-go/transport/websocket"
)

// Listenは、addrで待ち受け、pathへのリクエストをcoder/websocketでアップグレードするListenerを生成します。
func Listen(addr, path string) (*websocket.Listener, error) {
	var l *websocket.Listener
	l, err := websocket.NewListener(addr, path, func(w http.ResponseWriter, r *http.Request) (websocket.Conn, error) {
		wsconn, err := cwebsocket.Accept(w, r, &cwebsocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return nil, err
		}
		remote, err := net.ResolveTCPAddr("tcp", r.RemoteAddr)
		if err != nil {
			return nil, err
		}
		return New(wsconn, l.Addr(), remote), nil
	})
	return l, err
}
