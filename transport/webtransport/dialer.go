package webtransport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	quic "github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	webtransgo "github.com/quic-go/webtransport-go"

	"github.com/aptpod/multipath-go/errors"
	"github.com/aptpod/multipath-go/transport"
	"github.com/aptpod/multipath-go/transport/websocket"
)

// DefaultPathは、WebTransportのエンドポイントのデフォルトのパスです。
const DefaultPath = "/multipath"

var defaultDialerConfig = DialerConfig{
	Path:      DefaultPath,
	TLSConfig: &tls.Config{},
}

type (
	// Tokenは、接続時に認証ヘッダーへ設定するトークンです。
	Token = websocket.Token
	// TokenSourceは、認証トークンの取得用インターフェースです。
	TokenSource = websocket.TokenSource
	// StaticTokenSourceは、静的に設定されたトークンを常に返却するTokenSource実装です。
	StaticTokenSource = websocket.StaticTokenSource
)

// DialerConfigは、Dialerの設定です。
type DialerConfig struct {
	// Pathはパスを指定します
	Path string

	// TLSConfigは TLSの設定です。
	//
	// TLSConfig.NextProtosは必ず、`h3` に上書きします。
	TLSConfig *tls.Config

	// QUICConfigは、QUICの設定です。DATAGRAMは常に有効にします。
	QUICConfig *quic.Config

	// TokenSourceは、接続時に認証ヘッダーへ設定するトークンを取得します。
	TokenSource TokenSource
}

// Dialerは、WebTransportのセッションを開き、1本の双方向ストリームをパスとして接続します。
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

// Dialは、WebTransportのセッションを開き、1本の双方向ストリームをパスとして返却します。
//
// c.LocalAddress が指定されている場合は、そのアドレスにバインドしたUDPソケットから接続します。
func (d *Dialer) Dial(ctx context.Context, c transport.DialConfig) (transport.Conn, error) {
	path := d.Path
	if path == "" {
		path = defaultDialerConfig.Path
	}
	u, err := url.Parse(fmt.Sprintf("https://%s/%s", c.Address, strings.TrimPrefix(path, "/")))
	if err != nil {
		return nil, errors.Errorf("invalid url: %w", err)
	}

	var header http.Header
	if d.TokenSource != nil {
		tk, err := d.TokenSource.Token()
		if err != nil {
			return nil, errors.Errorf("failed retrieving token: %w", err)
		}
		if tk != nil {
			name := tk.Header
			if name == "" {
				name = "Authorization"
			}
			header = http.Header{}
			header.Add(name, tk.Token)
		}
	}

	dialer := &webtransgo.Dialer{
		TLSClientConfig: d.tlsConfig(),
		QUICConfig:      d.quicConfig(),
	}
	release := func() {
		_ = dialer.Close()
	}
	if c.LocalAddress != "" {
		laddr, err := net.ResolveUDPAddr("udp", c.LocalAddress)
		if err != nil {
			return nil, err
		}
		udpConn, err := net.ListenUDP("udp", laddr)
		if err != nil {
			return nil, err
		}
		tr := &quic.Transport{Conn: udpConn}
		dialer.DialAddr = func(ctx context.Context, addr string, tlsConf *tls.Config, conf *quic.Config) (quic.EarlyConnection, error) {
			raddr, err := net.ResolveUDPAddr("udp", addr)
			if err != nil {
				return nil, err
			}
			return tr.DialEarly(ctx, raddr, tlsConf, conf)
		}
		release = func() {
			_ = dialer.Close()
			_ = tr.Close()
			_ = udpConn.Close()
		}
	}

	_, sess, err := dialer.Dial(ctx, u.String(), header)
	if err != nil {
		release()
		return nil, errors.Errorf("webtransport dialing failed on [%s]: %w", u.String(), err)
	}
	stream, err := sess.OpenStreamSync(ctx)
	if err != nil {
		_ = sess.CloseWithError(0, "")
		release()
		return nil, errors.Errorf("open stream: %w", err)
	}
	return newConn(sess, stream, release), nil
}

func (d *Dialer) tlsConfig() *tls.Config {
	var res *tls.Config
	if d.TLSConfig == nil {
		res = defaultDialerConfig.TLSConfig.Clone()
	} else {
		res = d.TLSConfig.Clone()
	}
	res.NextProtos = []string{http3.NextProtoH3}
	return res
}

func (d *Dialer) quicConfig() *quic.Config {
	var res *quic.Config
	if d.QUICConfig == nil {
		res = &quic.Config{}
	} else {
		res = d.QUICConfig.Clone()
	}
	res.EnableDatagrams = true
	return res
}
