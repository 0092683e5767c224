package transport

import (
	"context"
	"io"
	"net"

	"github.com/aptpod/multipath-go/errors"
	"github.com/aptpod/multipath-go/transport/metrics"
)

/*
Conn は、マルチパスコネクションの1本のパスを構成するバイトストリームのソケットです。

Read はピアが正常にクローズした場合 io.EOF を返却します。
*/
type Conn interface {
	io.ReadWriteCloser

	// LocalAddr は、ローカル側のアドレスを返却します。
	LocalAddr() net.Addr
	// RemoteAddr は、リモート側のアドレスを返却します。
	RemoteAddr() net.Addr
}

// Listener は、パスのソケットを受け付けるインターフェースです。
type Listener interface {
	// Accept は、次のソケットを受け付けます。
	//
	// Listenerがクローズされた場合は net.ErrClosed を返却します。
	Accept(ctx context.Context) (Conn, error)
	// Close は、受け付けを停止します。
	Close() error
	// Addr は、待ち受けアドレスを返却します。
	Addr() net.Addr
}

// MetricsSupporter は、メトリクス取得機能を持つソケットのインターフェースです。
type MetricsSupporter interface {
	// MetricsProvider は、ソケットのメトリクスを提供するプロバイダーを返します。
	MetricsProvider() metrics.MetricsProvider
}

// MetricsProviderOf は、connがMetricsSupporterを実装していればそのプロバイダーを返却します。
//
// 実装していない場合は何もしないプロバイダーを返却します。
func MetricsProviderOf(conn Conn) metrics.MetricsProvider {
	if s, ok := conn.(MetricsSupporter); ok {
		if p := s.MetricsProvider(); p != nil {
			return p
		}
	}
	return metrics.NewNopMetricsProvider()
}

// IsClosed は、errがソケットの正常な終了を表すかどうかを返却します。
//
// ピアからのEOFとローカルでのクローズがこれに該当します。
func IsClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
