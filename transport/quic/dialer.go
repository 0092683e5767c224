package quic

import (
	"context"
	"crypto/tls"
	"net"

	quic "github.com/quic-go/quic-go"

	"github.com/aptpod/multipath-go/errors"
	"github.com/aptpod/multipath-go/transport"
)

// NextProtoは、ALPNで使用するプロトコル名です。
const NextProto = "multipath"

var defaultDialerConfig = DialerConfig{
	TLSConfig: &tls.Config{
		NextProtos: []string{NextProto},
	},
}

// DialerConfigは、Dialerの設定です。
type DialerConfig struct {
	// TLSConfigは、TLS接続の設定です。
	//
	// TLSConfig.NextProtosは必ず、`multipath` に上書きします。
	TLSConfig *tls.Config

	// QUICConfigは、QUICの設定です。nilの場合はquic-goのデフォルトを使用します。
	QUICConfig *quic.Config
}

// Dialerは、QUICのストリームをパスとして接続します。
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

// Dialは、QUICコネクションを開き、1本の双方向ストリームをパスとして返却します。
//
// c.LocalAddress が指定されている場合は、そのアドレスにバインドしたUDPソケットから接続します。
func (d *Dialer) Dial(ctx context.Context, c transport.DialConfig) (transport.Conn, error) {
	tlsConf := d.tlsConfig()

	if c.LocalAddress == "" {
		conn, err := quic.DialAddr(ctx, c.Address, tlsConf, d.QUICConfig)
		if err != nil {
			return nil, err
		}
		return openStream(ctx, conn, nil)
	}

	laddr, err := net.ResolveUDPAddr("udp", c.LocalAddress)
	if err != nil {
		return nil, err
	}
	raddr, err := net.ResolveUDPAddr("udp", c.Address)
	if err != nil {
		return nil, err
	}
	udpConn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	tr := &quic.Transport{Conn: udpConn}
	release := func() {
		_ = tr.Close()
		_ = udpConn.Close()
	}
	conn, err := tr.Dial(ctx, raddr, tlsConf, d.QUICConfig)
	if err != nil {
		release()
		return nil, err
	}
	return openStream(ctx, conn, release)
}

func (d *Dialer) tlsConfig() *tls.Config {
	if d.TLSConfig == nil {
		return defaultDialerConfig.TLSConfig.Clone()
	}
	res := d.TLSConfig.Clone()
	res.NextProtos = []string{NextProto}
	return res
}

func openStream(ctx context.Context, conn quic.Connection, onClose func()) (transport.Conn, error) {
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "")
		if onClose != nil {
			onClose()
		}
		return nil, errors.Errorf("open stream: %w", err)
	}
	return newConn(conn, stream, onClose), nil
}
