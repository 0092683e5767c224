package gorilla

import (
	"context"
	"net/http"
	"net/http/httputil"

	gwebsocket "github.com/gorilla/websocket"

	"github.com/aptpod/multipath-go/errors"
	"github.com/aptpod/multipath-go/transport/websocket"
)

var _ websocket.DialFunc = Dial

// Dialは、WebSocketのコネクションを開きます。
func Dial(ctx context.Context, c websocket.DialConfig) (websocket.Conn, error) {
	var header http.Header
	if c.Token != nil {
		header = http.Header{}
		header.Add(c.Token.Header, c.Token.Token)
	}
	d := *gwebsocket.DefaultDialer
	d.TLSClientConfig = c.TLSConfig
	if c.DialContext != nil {
		d.NetDialContext = c.DialContext
	}
	//nolint
	wsconn, resp, err := d.DialContext(ctx, c.URL, header)
	if err != nil {
		if resp == nil {
			return nil, err
		}

		dump, _ := httputil.DumpResponse(resp, true)
		return nil, errors.Errorf("dial failed with error response[%s]: %w", dump, err)
	}
	return New(wsconn), nil
}

// NewDialerは、gorilla/websocketを使用するDialerを返却します。
func NewDialer(c websocket.DialerConfig) *websocket.Dialer {
	c.DialFunc = Dial
	return websocket.NewDialer(c)
}
