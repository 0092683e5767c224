package websocket

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/aptpod/multipath-go/errors"
	"github.com/aptpod/multipath-go/transport"
)

// DialConfigは、DialFuncに渡す設定です。
type DialConfig struct {
	// URLは、接続先URLです。
	URL string
	// Tokenは、接続時に認証ヘッダーへ設定するトークンです。
	Token *Token
	// TLSConfigは、TLS設定です。
	TLSConfig *tls.Config

	// DialContextはWebSocketの内部で使用するDialContextです。
	DialContext func(ctx context.Context, network, addr string) (net.Conn, error)
}

// DialFunc はConnを返却する関数です。
type DialFunc func(ctx context.Context, c DialConfig) (Conn, error)

var dialFunc DialFunc

// RegisterDialFuncは、DialerConfig.DialFuncが未指定の場合に使用するDialFuncを登録します。
func RegisterDialFunc(f DialFunc) {
	if dialFunc != nil {
		panic("already registered dialFunc")
	}
	dialFunc = f
}

var defaultDialerConfig = DialerConfig{
	Path:        DefaultPath,
	DialTimeout: 10 * time.Second,
}

// DialerConfigはDialerの設定です。
type DialerConfig struct {
	// DialFuncは、WebSocketの実装です。nilの場合はRegisterDialFuncで登録された関数を使用します。
	DialFunc DialFunc

	// Pathはパスを指定します
	Path string

	// EnableTLSは TLSアクセスするかどうかを設定します。
	EnableTLS bool

	// TokenSourceは、接続時に認証ヘッダーへ設定するトークンを取得します。
	TokenSource TokenSource

	// TLSConfigは、TLS設定です。
	TLSConfig *tls.Config

	// DialTimeoutは、WebSocket接続のタイムアウトです。
	// 0に設定された場合は、デフォルト値(10秒)が使用されます。
	DialTimeout time.Duration
}

// Tokenはトークンを表します。
type Token struct {
	// Tokenはトークン文字列です。
	Token string

	// Headerはヘッダ名を指定します。デフォルトは `Authorization` です。
	Header string
}

// StaticTokenSourceは、静的に設定されたトークンを常に返却するTokenSource実装です。
type StaticTokenSource struct {
	StaticToken *Token
}

// TokenはTokenを返却します。
func (ts *StaticTokenSource) Token() (*Token, error) {
	return ts.StaticToken, nil
}

// TokenSourceは、認証トークンの取得用インターフェースです。
type TokenSource interface {
	Token() (*Token, error)
}

// Dialerは、WebSocketのコネクションをパスとして接続します。
type Dialer struct {
	DialerConfig
}

var _ transport.Dialer = (*Dialer)(nil)

// NewDefaultDialerは、デフォルト設定のDialerを返却します。
func NewDefaultDialer() *Dialer {
	return NewDialer(defaultDialerConfig)
}

// NewDialerは、Dialerを返却します。
func NewDialer(c DialerConfig) *Dialer {
	return &Dialer{DialerConfig: c}
}

// Dialは、WebSocketのコネクションを開きます。
//
// cc.LocalAddress が指定されている場合は、そのアドレスからTCP接続します。
func (d *Dialer) Dial(ctx context.Context, cc transport.DialConfig) (transport.Conn, error) {
	f := d.DialFunc
	if f == nil {
		f = dialFunc
	}
	if f == nil {
		return nil, errors.New("websocket: no DialFunc is registered")
	}
	timeout := d.DialTimeout
	if timeout == 0 {
		timeout = defaultDialerConfig.DialTimeout
	}
	path := d.Path
	if path == "" {
		path = defaultDialerConfig.Path
	}

	schema := "ws"
	if d.EnableTLS {
		schema = "wss"
	}
	wsURL, err := url.Parse(fmt.Sprintf("%s://%s/%s", schema, cc.Address, strings.TrimPrefix(path, "/")))
	if err != nil {
		return nil, errors.Errorf("invalid url: %w", err)
	}

	var tk *Token
	if d.TokenSource != nil {
		tk, err = d.TokenSource.Token()
		if err != nil {
			return nil, errors.Errorf("failed retrieving token: %w", err)
		}
		if tk.Header == "" {
			tk.Header = "Authorization"
		}
	}

	var dialContext func(ctx context.Context, network, addr string) (net.Conn, error)
	if cc.LocalAddress != "" {
		laddr, err := net.ResolveTCPAddr("tcp", cc.LocalAddress)
		if err != nil {
			return nil, err
		}
		nd := &net.Dialer{LocalAddr: laddr}
		dialContext = nd.DialContext
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn, err := f(ctx, DialConfig{
		URL:         wsURL.String(),
		Token:       tk,
		TLSConfig:   d.TLSConfig,
		DialContext: dialContext,
	})
	if err != nil {
		return nil, err
	}
	return NewStream(conn), nil
}
