package transport

import "context"

// DialConfigは、パスのソケットを開く際の設定です。
type DialConfig struct {
	// Address は、接続先の "host:port" です。
	Address string
	// LocalAddress は、送信元として使用するローカルの "host:port" です。
	//
	// 空の場合はOSに任せます。ポートを0にすると任意のポートを使用します。
	LocalAddress string
}

// Dialerは、パスのソケットを開くインターフェースです。
type Dialer interface {
	Dial(ctx context.Context, c DialConfig) (Conn, error)
}

type DialerFunc func(ctx context.Context, c DialConfig) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, c DialConfig) (Conn, error) {
	return f(ctx, c)
}
