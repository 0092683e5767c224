package coder

import (
	"context"
	"net"
	"net/http"
	"sync"

	cwebsocket "github.com/coder/websocket"

	"github.com/aptpod/multipath-go/errors"
	"github.com/aptpod/multipath-go/transport/websocket"
)

var _ websocket.DialFunc = Dial

// Dialは、WebSocketのコネクションを開きます。
//
// 基盤となるTCPコネクションを捕捉し、Conn.UnderlyingConnから参照できるようにします。
func Dial(ctx context.Context, c websocket.DialConfig) (websocket.Conn, error) {
	var header http.Header
	if c.Token != nil {
		header = http.Header{}
		header.Add(c.Token.Header, c.Token.Token)
	}

	dialContext := c.DialContext
	if dialContext == nil {
		dialContext = (&net.Dialer{}).DialContext
	}
	var (
		mu       sync.Mutex
		captured net.Conn
	)
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if c.TLSConfig != nil {
		tr.TLSClientConfig = c.TLSConfig
	}
	tr.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		mu.Lock()
		captured = conn
		mu.Unlock()
		return conn, nil
	}

	//nolint
	wsconn, _, err := cwebsocket.Dial(ctx, c.URL, &cwebsocket.DialOptions{
		HTTPHeader: header,
		HTTPClient: &http.Client{Transport: tr},
	})
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	if captured == nil {
		return nil, errors.New("coder: underlying connection was not captured")
	}
	return NewWithUnderlyingConn(wsconn, captured), nil
}

// NewDialerは、coder/websocketを使用するDialerを返却します。
func NewDialer(c websocket.DialerConfig) *websocket.Dialer {
	c.DialFunc = Dial
	return websocket.NewDialer(c)
}
